// Package roles defines the closed role and tier enums used by the
// authorization pipeline, together with their rank tables.
package roles

// Role classifies an authenticated user account.
type Role int

const (
	// RoleUnknown is the zero value; it never satisfies any tier.
	RoleUnknown Role = iota
	// RoleClient is a storefront customer.
	RoleClient
	// RoleFinance is a billing/reconciliation operator.
	RoleFinance
	// RoleAdmin has full console access.
	RoleAdmin
)

// Tier is the coarse access level attached to a route policy.
type Tier int

const (
	// TierMember requires any signed-in user.
	TierMember Tier = iota
	// TierOperator requires finance staff or above.
	TierOperator
	// TierAdmin requires full administrators.
	TierAdmin
)

// Rank tables are total: every Role and every Tier has exactly one rank.
// A requirement is satisfied iff rank(role) >= rank(tier).
var roleRank = map[Role]int{
	RoleClient:  0,
	RoleFinance: 1,
	RoleAdmin:   2,
}

var tierRank = map[Tier]int{
	TierMember:   0,
	TierOperator: 1,
	TierAdmin:    2,
}

// Satisfies reports whether role meets the tier requirement. An unknown
// role has no rank and never satisfies.
func Satisfies(role Role, tier Tier) bool {
	rr, ok := roleRank[role]
	if !ok {
		return false
	}
	tr, ok := tierRank[tier]
	if !ok {
		return false
	}
	return rr >= tr
}

// ParseRole maps a wire string onto a Role. Unrecognized values return
// (RoleUnknown, false) so callers handle them explicitly instead of
// silently granting nothing.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "CLIENT":
		return RoleClient, true
	case "FINANCE":
		return RoleFinance, true
	case "ADMIN":
		return RoleAdmin, true
	default:
		return RoleUnknown, false
	}
}

// ParseTier maps a wire string onto a Tier.
func ParseTier(s string) (Tier, bool) {
	switch s {
	case "member":
		return TierMember, true
	case "operator":
		return TierOperator, true
	case "admin":
		return TierAdmin, true
	default:
		return 0, false
	}
}

// String returns the wire representation of the role.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleFinance:
		return "FINANCE"
	case RoleAdmin:
		return "ADMIN"
	default:
		return "UNKNOWN"
	}
}

// String returns the wire representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierMember:
		return "member"
	case TierOperator:
		return "operator"
	case TierAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Storefront permissions granted by role during session enrichment.
const (
	PermOrdersView    = "orders.view"
	PermCheckoutWrite = "checkout.write"
	PermLoyaltyView   = "loyalty.view"
	PermBillingView   = "billing.view"
	PermAnalyticsView = "analytics.view"
	PermOnboardingRun = "onboarding.run"
	PermAdminWrite    = "admin.write"
)

var rolePermissions = map[Role][]string{
	RoleClient: {
		PermOrdersView,
		PermCheckoutWrite,
		PermLoyaltyView,
	},
	RoleFinance: {
		PermOrdersView,
		PermCheckoutWrite,
		PermLoyaltyView,
		PermBillingView,
		PermAnalyticsView,
		PermOnboardingRun,
	},
	RoleAdmin: {
		PermOrdersView,
		PermCheckoutWrite,
		PermLoyaltyView,
		PermBillingView,
		PermAnalyticsView,
		PermOnboardingRun,
		PermAdminWrite,
	},
}

// Permissions returns the static permission set for a role. The slice is
// a copy; callers may keep or mutate it.
func Permissions(role Role) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
