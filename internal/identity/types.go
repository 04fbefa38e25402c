package identity

import "time"

// User mirrors the identity API's user resource.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name,omitempty"`
	Image         string     `json:"image,omitempty"`
	Role          string     `json:"role"`
	EmailVerified *time.Time `json:"emailVerified,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Session mirrors the identity API's session resource. The fingerprint
// hash and mismatch flag are the device-binding state enriched by the
// session adapter on refresh.
type Session struct {
	Token          string    `json:"sessionToken"`
	UserID         string    `json:"userId"`
	ExpiresAt      time.Time `json:"expires"`
	Fingerprint    string    `json:"deviceFingerprint,omitempty"`
	DeviceMismatch bool      `json:"deviceMismatch"`
}

// Account links a user to an external auth provider.
type Account struct {
	UserID            string `json:"userId"`
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"providerAccountId"`
	Type              string `json:"type"`
	AccessToken       string `json:"access_token,omitempty"`
	RefreshToken      string `json:"refresh_token,omitempty"`
	ExpiresAt         int64  `json:"expires_at,omitempty"`
}

// VerificationToken is a one-time token for email verification and
// password reset flows.
type VerificationToken struct {
	Identifier string    `json:"identifier"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires"`
}
