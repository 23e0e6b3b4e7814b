package ports

import "time"

// CredentialInspector reads claims carried by a custody session token
type CredentialInspector interface {
	// ExpiresAt returns the token expiry; ok is false when the token carries none
	ExpiresAt(sessionToken string) (expiresAt time.Time, ok bool)
}
