package model

import "time"

type PairingTicket struct {
	Code      string    `json:"pairingCode"`
	PCID      string    `json:"pcId"`
	PCName    string    `json:"pcName"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreatePairingTicketParams struct {
	Code   string
	PCID   string
	PCName string
}
