package model

import "time"

// Challenge is a read-only snapshot of an in-flight 2FA challenge. The live
// entry, with its resolution signal, stays inside the challenge registry.
type Challenge struct {
	ID             string     `json:"challengeId"`
	SmartphoneID   string     `json:"smartphoneId"`
	PCID           string     `json:"pcId"`
	ComparisonCode string     `json:"comparisonCode"`
	Verdict        Verdict    `json:"verdict"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

type CreateChallengeParams struct {
	SmartphoneID   string
	PCID           string
	ComparisonCode string
}
