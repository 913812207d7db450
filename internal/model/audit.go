package model

import (
	"encoding/json"
	"time"
)

type AuditEvent struct {
	ID           string          `db:"id" json:"id"`
	Type         AuditEventType  `db:"event_type" json:"type"`
	PCID         *string         `db:"pc_id" json:"pcId,omitempty"`
	SmartphoneID *string         `db:"smartphone_id" json:"smartphoneId,omitempty"`
	ChallengeID  *string         `db:"challenge_id" json:"challengeId,omitempty"`
	IP           *string         `db:"ip" json:"ip,omitempty"`
	Details      json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}
