// Package serviceaccount validates HMAC-signed maintenance tokens that
// grant access tiers without an interactive session. Tokens are issued
// out of band to automation that needs to reach protected routes during
// maintenance windows.
//
// Wire format: "<accountId>.<expiresAtEpochMs>.<base64url-hmac>", where
// the signature is HMAC-SHA256(secret, "<accountId>.<expiresAtEpochMs>")
// encoded as URL-safe base64 without padding.
package serviceaccount

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/boostline/boostline/internal/roles"
)

// Verification failures. Callers generally treat every failure the same
// way (no bypass), but tests and logs distinguish them.
var (
	ErrMalformedToken = errors.New("serviceaccount: malformed token")
	ErrTokenExpired   = errors.New("serviceaccount: token expired")
	ErrUnknownAccount = errors.New("serviceaccount: unknown account")
	ErrBadSignature   = errors.New("serviceaccount: signature mismatch")
	ErrNotConfigured  = errors.New("serviceaccount: no accounts configured")
)

// Grant is the result of successful verification.
type Grant struct {
	AccountID string
	Tiers     []roles.Tier
	ExpiresAt time.Time
}

// HasTier reports whether the grant includes a tier at least as high as
// the requirement. A grant for a higher tier covers lower ones.
func (g *Grant) HasTier(tier roles.Tier) bool {
	if g == nil {
		return false
	}
	for _, granted := range g.Tiers {
		if granted >= tier {
			return true
		}
	}
	return false
}

// Verifier checks tokens against the static account list.
type Verifier struct {
	accounts map[string][]roles.Tier
	secret   []byte
	now      func() time.Time
}

// NewVerifier builds a Verifier from loaded accounts and the shared
// secret. An empty account list or secret disables every bypass.
func NewVerifier(accounts []Account, secret string) *Verifier {
	byID := make(map[string][]roles.Tier, len(accounts))
	for _, acc := range accounts {
		tiers := acc.tiers()
		if len(tiers) == 0 {
			continue
		}
		byID[acc.ID] = tiers
	}
	return &Verifier{
		accounts: byID,
		secret:   []byte(secret),
		now:      time.Now,
	}
}

// Verify validates the token and returns the account's grant set.
func (v *Verifier) Verify(token string) (*Grant, error) {
	if len(v.accounts) == 0 || len(v.secret) == 0 {
		return nil, ErrNotConfigured
	}
	parts := strings.Split(token, ".")
	if len(parts) < 3 {
		return nil, ErrMalformedToken
	}
	accountID := parts[0]
	expiresRaw := parts[1]
	signature := parts[2]

	expiresMs, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return nil, ErrMalformedToken
	}
	expiresAt := time.UnixMilli(expiresMs)
	if !expiresAt.After(v.now()) {
		return nil, ErrTokenExpired
	}

	tiers, ok := v.accounts[accountID]
	if !ok {
		return nil, ErrUnknownAccount
	}

	expected := Sign(v.secret, accountID, expiresMs)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrBadSignature
	}

	granted := make([]roles.Tier, len(tiers))
	copy(granted, tiers)
	return &Grant{AccountID: accountID, Tiers: granted, ExpiresAt: expiresAt}, nil
}

// Sign computes the signature segment for an account and expiry. Exposed
// so token issuance tooling and tests share one implementation.
func Sign(secret []byte, accountID string, expiresMs int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(accountID + "." + strconv.FormatInt(expiresMs, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// IssueToken builds a complete wire token. Maintenance tooling only;
// never called on the request path.
func IssueToken(secret []byte, accountID string, expiresAt time.Time) string {
	ms := expiresAt.UnixMilli()
	return accountID + "." + strconv.FormatInt(ms, 10) + "." + Sign(secret, accountID, ms)
}
