package token

import "time"

// Claims are the decoded fields of a bearer token (§3 DATA MODEL, §4.2
// Token Verifier). Immutable once parsed.
type Claims struct {
	Subject     string   `json:"sub"`
	Audience    string   `json:"aud"`
	ID          string   `json:"jti"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Expiry      int64    `json:"exp"`
	NotBefore   int64    `json:"nbf"`
	IssuedAt    int64    `json:"iat"`
}

// ParticipantIdentifier is the token ID, which the core treats as the
// participant identifier (§3 DATA MODEL: "Claims ... token ID (=
// participant identifier)").
func (c Claims) ParticipantIdentifier() string { return c.ID }

// ExpiresAt returns the expiry as a time.Time.
func (c Claims) ExpiresAt() time.Time { return time.Unix(c.Expiry, 0) }

// EffectiveFrom returns the not-before instant as a time.Time.
func (c Claims) EffectiveFrom() time.Time { return time.Unix(c.NotBefore, 0) }

// HasRoles reports whether any of c's roles appears in roles.
func (c Claims) HasRoles(roles []string) bool {
	for _, have := range c.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// HasPermissions reports whether any of c's permissions appears in permissions.
func (c Claims) HasPermissions(permissions []string) bool {
	for _, have := range c.Permissions {
		for _, want := range permissions {
			if have == want {
				return true
			}
		}
	}
	return false
}
