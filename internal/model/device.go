package model

import "time"

// Device is the durable result of a successful pairing claim. PartnerID
// refers back to a Device that references this one, unless a later pairing
// re-bound the partner elsewhere.
type Device struct {
	ID          string     `json:"deviceId"`
	Role        DeviceRole `json:"role"`
	PartnerID   string     `json:"partnerId"`
	DisplayName string     `json:"displayName,omitempty"`
	PairedAt    time.Time  `json:"pairedAt"`
}

func (d *Device) IsPC() bool {
	return d.Role == DeviceRolePC
}

func (d *Device) IsSmartphone() bool {
	return d.Role == DeviceRoleSmartphone
}
