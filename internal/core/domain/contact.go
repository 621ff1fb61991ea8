package domain

import "crypto/ed25519"

// Contact is a known wallet whose vouchers this device accepts.
type Contact struct {
	UID       string            `json:"uid"`
	Name      string            `json:"name"`
	PublicKey ed25519.PublicKey `json:"-"`
}
