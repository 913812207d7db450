package model

type DeviceRole string

const (
	DeviceRolePC         DeviceRole = "pc"
	DeviceRoleSmartphone DeviceRole = "smartphone"
)

type Verdict string

const (
	VerdictUnresolved Verdict = "unresolved"
	VerdictApproved   Verdict = "approved"
	VerdictDenied     Verdict = "denied"
)

func (v Verdict) Resolved() bool {
	return v == VerdictApproved || v == VerdictDenied
}

func (v Verdict) Approved() bool {
	return v == VerdictApproved
}

type AuditEventType string

const (
	AuditPairingIssued      AuditEventType = "pairing_issued"
	AuditPairingClaimed     AuditEventType = "pairing_claimed"
	AuditPairingRejected    AuditEventType = "pairing_rejected"
	AuditChallengePushed    AuditEventType = "challenge_pushed"
	AuditChallengeDisplaced AuditEventType = "challenge_displaced"
	AuditChallengeApproved  AuditEventType = "challenge_approved"
	AuditChallengeDenied    AuditEventType = "challenge_denied"
	AuditChallengeDrained   AuditEventType = "challenge_drained"
	AuditAwaitTimeout       AuditEventType = "await_timeout"
)
