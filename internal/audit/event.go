// Package audit records access decisions and raw sign-in attempts.
// Delivery is best effort: the pipeline computes its decision first and
// reports it asynchronously, so sink failures and latency never reach
// the request path.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Decision is the pipeline outcome recorded for a request.
type Decision string

const (
	DecisionAllowed     Decision = "allowed"
	DecisionDenied      Decision = "denied"
	DecisionRedirected  Decision = "redirected"
	DecisionRateLimited Decision = "rate_limited"
)

// Reason codes attached to AccessEvents. Rate-limit denials use
// "rate_policy:<name>"; plain allows carry no reason.
const (
	ReasonUnauthenticated  = "unauthenticated"
	ReasonDeviceMismatch   = "device_mismatch"
	ReasonInsufficientRole = "insufficient_role"
	ReasonServiceAccount   = "service_account"
	ReasonRatePolicyPrefix = "rate_policy:"
)

// AccessEvent is the immutable audit record for one request decision.
type AccessEvent struct {
	ID        string    `json:"id"`
	Route     string    `json:"route"`
	Method    string    `json:"method"`
	Decision  Decision  `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	At        time.Time `json:"at"`
}

// NewAccessEvent stamps identity and time onto an event.
func NewAccessEvent(route, method string, decision Decision, reason string) AccessEvent {
	return AccessEvent{
		ID:       uuid.NewString(),
		Route:    route,
		Method:   method,
		Decision: decision,
		Reason:   reason,
		At:       time.Now().UTC(),
	}
}

// SignInAttempt is raw authentication telemetry, recorded regardless of
// outcome.
type SignInAttempt struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Succeeded bool      `json:"succeeded"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	At        time.Time `json:"at"`
}

// NewSignInAttempt stamps identity and time onto an attempt record.
func NewSignInAttempt(email string, succeeded bool) SignInAttempt {
	return SignInAttempt{
		ID:        uuid.NewString(),
		Email:     email,
		Succeeded: succeeded,
		At:        time.Now().UTC(),
	}
}
