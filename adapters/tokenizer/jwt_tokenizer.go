package tokenizer

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/pinwallet/ports"
)

// SessionClaims are the claims a custody session token may carry
type SessionClaims struct {
	jwt.RegisteredClaims
	AppID string `json:"appId,omitempty"`
}

// JWTInspector reads custody session tokens as JWTs.
// Signatures are not verified; the claims are informational only.
type JWTInspector struct {
	parser *jwt.Parser
}

// NewJWTInspector creates a new inspector
func NewJWTInspector() *JWTInspector {
	return &JWTInspector{parser: jwt.NewParser()}
}

var _ ports.CredentialInspector = (*JWTInspector)(nil)

// Claims parses the token claims
func (j *JWTInspector) Claims(sessionToken string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if _, _, err := j.parser.ParseUnverified(sessionToken, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of the token
func (j *JWTInspector) ExpiresAt(sessionToken string) (time.Time, bool) {
	claims, err := j.Claims(sessionToken)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether the token carries an expiry before now
func Expired(inspector ports.CredentialInspector, sessionToken string, now time.Time) bool {
	exp, ok := inspector.ExpiresAt(sessionToken)
	return ok && !exp.After(now)
}
