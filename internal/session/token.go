// Package session bridges identity-store sessions onto the request
// pipeline. It owns the enriched session token and the device-binding
// state machine evaluated on every refresh.
package session

import (
	"time"

	"github.com/boostline/boostline/internal/fingerprint"
	"github.com/boostline/boostline/internal/roles"
)

// Token is the enriched session state carried between refreshes. It is a
// value; Next returns a new Token instead of mutating in place.
type Token struct {
	SessionToken string
	UserID       string
	Email        string
	Role         roles.Role
	Permissions  []string
	// Fingerprint is the device hash captured at sign-in. Frozen for the
	// token's lifetime once set.
	Fingerprint string
	// DeviceMismatch is raised the first time a refresh observes a
	// fingerprint differing from the stored one. One-way until a fresh
	// sign-in rebinds the token.
	DeviceMismatch bool
	ExpiresAt      time.Time
}

// BindingState describes the device-binding machine: unset -> bound is
// taken when a fingerprint first becomes available, bound -> mismatched
// at most once per token lifetime, and mismatched is terminal.
type BindingState int

const (
	BindingUnset BindingState = iota
	BindingBound
	BindingMismatched
)

// Binding reports the token's current device-binding state.
func (t Token) Binding() BindingState {
	switch {
	case t.DeviceMismatch:
		return BindingMismatched
	case t.Fingerprint != "":
		return BindingBound
	default:
		return BindingUnset
	}
}

// SignInEvent carries the identity resolved during an interactive
// sign-in. Its presence in Next means "rebind": the fresh fingerprint
// becomes the stored one and any prior mismatch is cleared.
type SignInEvent struct {
	SessionToken string
	UserID       string
	Email        string
	Role         roles.Role
	ExpiresAt    time.Time
}

// Next computes the successor token. Pure: the device-mismatch
// transition and role/permission enrichment are decided entirely from
// the inputs.
func Next(prev Token, signIn *SignInEvent, fresh fingerprint.Fingerprint) Token {
	if signIn != nil {
		return Token{
			SessionToken: signIn.SessionToken,
			UserID:       signIn.UserID,
			Email:        signIn.Email,
			Role:         signIn.Role,
			Permissions:  roles.Permissions(signIn.Role),
			Fingerprint:  fresh.Hash,
			ExpiresAt:    signIn.ExpiresAt,
		}
	}

	next := prev
	next.Permissions = roles.Permissions(prev.Role)

	switch prev.Binding() {
	case BindingUnset:
		// No fingerprint was stored at sign-in; adopt the first one seen.
		next.Fingerprint = fresh.Hash
	case BindingBound:
		if fresh.Hash != "" && fresh.Hash != prev.Fingerprint {
			next.DeviceMismatch = true
		}
	case BindingMismatched:
		// Terminal until a new sign-in.
	}
	return next
}
