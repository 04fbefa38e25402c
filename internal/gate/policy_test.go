package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boostline/boostline/internal/roles"
)

func TestMatchesPrefix(t *testing.T) {
	assert.True(t, matchesPrefix("/admin", "/admin"))
	assert.True(t, matchesPrefix("/admin/orders", "/admin"))
	assert.True(t, matchesPrefix("/admin/orders/42", "/admin"))
	assert.False(t, matchesPrefix("/administration", "/admin"))
	assert.False(t, matchesPrefix("/adm", "/admin"))
	assert.False(t, matchesPrefix("/", "/admin"))
}

func TestMatchTierFirstMatchWins(t *testing.T) {
	p := DefaultPolicies()

	tests := []struct {
		path string
		tier roles.Tier
	}{
		{"/admin/settings", roles.TierAdmin},
		{"/admin/settings/branding", roles.TierAdmin},
		{"/admin/users/7", roles.TierAdmin},
		{"/admin", roles.TierOperator},
		{"/admin/orders", roles.TierOperator},
		{"/dashboard", roles.TierMember},
		{"/account/addresses", roles.TierMember},
		{"/api/billing/invoices", roles.TierOperator},
		{"/api/analytics", roles.TierOperator},
		{"/api/onboarding/run", roles.TierOperator},
		{"/api/loyalty/points", roles.TierMember},
		{"/api/checkout", roles.TierMember},
	}
	for _, tt := range tests {
		got := p.matchTier(tt.path)
		require.NotNil(t, got, "path %s", tt.path)
		assert.Equal(t, tt.tier, got.Tier, "path %s", tt.path)
	}
}

func TestMatchTierPublicRoutes(t *testing.T) {
	p := DefaultPolicies()

	for _, path := range []string{"/", "/products/sneakers", "/api/catalog/items", "/login"} {
		assert.Nil(t, p.matchTier(path), "path %s", path)
	}
}

func TestMatchTierSplitsPageAndAPI(t *testing.T) {
	p := DefaultPolicies()

	// A page prefix must not leak into the API table and vice versa.
	assert.Nil(t, p.matchTier("/api/admin/settings"))
	assert.Nil(t, p.matchTier("/billing"))
}

func TestMatchRate(t *testing.T) {
	p := DefaultPolicies()

	auth := p.matchRate("/api/auth/callback")
	require.NotNil(t, auth)
	assert.Equal(t, "auth", auth.Name)
	assert.Equal(t, 10, auth.Limit.Max)

	login := p.matchRate("/login")
	require.NotNil(t, login)
	assert.Equal(t, "auth", login.Name)

	checkout := p.matchRate("/api/checkout/confirm")
	require.NotNil(t, checkout)
	assert.Equal(t, "checkout", checkout.Name)

	assert.Nil(t, p.matchRate("/api/catalog/items"))
	assert.Nil(t, p.matchRate("/loginx"))
}

func TestBypassed(t *testing.T) {
	p := DefaultPolicies()

	assert.True(t, p.bypassed("/api/auth/session"))
	assert.True(t, p.bypassed("/api/preview"))
	assert.False(t, p.bypassed("/api/previews"))
	assert.False(t, p.bypassed("/dashboard"))
}
