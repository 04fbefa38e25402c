package gate

import (
	"strings"
	"time"

	"github.com/boostline/boostline/internal/ratelimit"
	"github.com/boostline/boostline/internal/roles"
)

// RatePolicy budgets requests for a family of paths. Policies are
// evaluated in declaration order and the first match wins; requests
// never consume from more than one policy.
type RatePolicy struct {
	Name     string
	Prefixes []string
	Limit    ratelimit.Limit
}

// TierPolicy requires a tier for a path prefix. First match in
// declaration order wins, so narrower prefixes come first.
type TierPolicy struct {
	Prefix string
	Tier   roles.Tier
}

// Policies is the full static policy set evaluated by the gate.
type Policies struct {
	Rate []RatePolicy
	// Bypass prefixes skip every check after rate limiting: the identity
	// provider's own endpoints and preview rendering.
	Bypass []string
	Page   []TierPolicy
	API    []TierPolicy
}

// DefaultPolicies returns the storefront policy tables.
func DefaultPolicies() Policies {
	return Policies{
		Rate: []RatePolicy{
			{Name: "auth", Prefixes: []string{"/api/auth", "/login", "/register"}, Limit: ratelimit.Limit{Window: time.Minute, Max: 10}},
			{Name: "checkout", Prefixes: []string{"/api/checkout", "/checkout"}, Limit: ratelimit.Limit{Window: time.Minute, Max: 20}},
			{Name: "loyalty", Prefixes: []string{"/api/loyalty", "/loyalty"}, Limit: ratelimit.Limit{Window: time.Minute, Max: 30}},
			{Name: "onboarding", Prefixes: []string{"/api/onboarding", "/onboarding"}, Limit: ratelimit.Limit{Window: time.Minute, Max: 30}},
		},
		Bypass: []string{"/api/auth", "/api/preview"},
		Page: []TierPolicy{
			{Prefix: "/admin/settings", Tier: roles.TierAdmin},
			{Prefix: "/admin/users", Tier: roles.TierAdmin},
			{Prefix: "/admin", Tier: roles.TierOperator},
			{Prefix: "/dashboard", Tier: roles.TierMember},
			{Prefix: "/account", Tier: roles.TierMember},
		},
		API: []TierPolicy{
			{Prefix: "/api/billing", Tier: roles.TierOperator},
			{Prefix: "/api/analytics", Tier: roles.TierOperator},
			{Prefix: "/api/onboarding", Tier: roles.TierOperator},
			{Prefix: "/api/loyalty", Tier: roles.TierMember},
			{Prefix: "/api/checkout", Tier: roles.TierMember},
		},
	}
}

// matchesPrefix is segment-aware: /admin matches /admin and /admin/x but
// not /administration.
func matchesPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func (p Policies) matchRate(path string) *RatePolicy {
	for i := range p.Rate {
		for _, prefix := range p.Rate[i].Prefixes {
			if matchesPrefix(path, prefix) {
				return &p.Rate[i]
			}
		}
	}
	return nil
}

func (p Policies) bypassed(path string) bool {
	for _, prefix := range p.Bypass {
		if matchesPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// matchTier selects the policy list for the route class and returns the
// first match, or nil for a public route.
func (p Policies) matchTier(path string) *TierPolicy {
	table := p.Page
	if isAPIRoute(path) {
		table = p.API
	}
	for i := range table {
		if matchesPrefix(path, table[i].Prefix) {
			return &table[i]
		}
	}
	return nil
}

func isAPIRoute(path string) bool {
	return matchesPrefix(path, "/api")
}
