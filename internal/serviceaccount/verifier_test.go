package serviceaccount

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/boostline/boostline/internal/roles"
)

const testSecret = "maintenance-secret"

func newTestVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	v := NewVerifier([]Account{
		{ID: "deploy-bot", Tiers: []string{"operator"}},
		{ID: "root-task", Tiers: []string{"admin", "operator"}},
	}, testSecret)
	v.now = func() time.Time { return now }
	return v
}

func TestVerifyValidToken(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	v := newTestVerifier(t, now)

	token := IssueToken([]byte(testSecret), "deploy-bot", now.Add(time.Hour))
	grant, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if grant.AccountID != "deploy-bot" {
		t.Fatalf("account = %s", grant.AccountID)
	}
	if !grant.HasTier(roles.TierOperator) {
		t.Fatalf("expected operator grant")
	}
	if grant.HasTier(roles.TierAdmin) {
		t.Fatalf("operator grant must not cover admin")
	}
}

func TestVerifyHigherTierCoversLower(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	v := newTestVerifier(t, now)
	token := IssueToken([]byte(testSecret), "root-task", now.Add(time.Hour))
	grant, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !grant.HasTier(roles.TierMember) {
		t.Fatalf("admin grant must cover member")
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	v := newTestVerifier(t, now)

	// Correct signature, past expiry: still rejected.
	token := IssueToken([]byte(testSecret), "deploy-bot", now.Add(-time.Second))
	if _, err := v.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyBadSignature(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	v := newTestVerifier(t, now)

	expires := now.Add(time.Hour).UnixMilli()
	forged := "deploy-bot." + strconv.FormatInt(expires, 10) + "." + Sign([]byte("wrong-secret"), "deploy-bot", expires)
	if _, err := v.Verify(forged); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifyUnknownAccount(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	v := newTestVerifier(t, now)

	token := IssueToken([]byte(testSecret), "intruder", now.Add(time.Hour))
	if _, err := v.Verify(token); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	v := newTestVerifier(t, now)

	for _, token := range []string{"", "a.b", "deploy-bot.notanumber.sig"} {
		if _, err := v.Verify(token); err == nil {
			t.Fatalf("token %q verified", token)
		}
	}
}

func TestVerifyUnconfigured(t *testing.T) {
	v := NewVerifier(nil, testSecret)
	if _, err := v.Verify("a.1.b"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	v = NewVerifier([]Account{{ID: "x", Tiers: []string{"member"}}}, "")
	if _, err := v.Verify("a.1.b"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured with empty secret, got %v", err)
	}
}

func TestLoadAccounts(t *testing.T) {
	accounts := LoadAccounts(`[{"id":"deploy-bot","tiers":["operator"]},{"id":"","tiers":["admin"]},{"id":"odd","tiers":["root"]}]`, nil)
	if len(accounts) != 1 {
		t.Fatalf("expected 1 valid account, got %d", len(accounts))
	}
	if accounts[0].ID != "deploy-bot" {
		t.Fatalf("kept account %s", accounts[0].ID)
	}
}

func TestLoadAccountsMalformedJSON(t *testing.T) {
	if accounts := LoadAccounts("{not json", nil); accounts != nil {
		t.Fatalf("malformed config must yield no accounts, got %v", accounts)
	}
	if accounts := LoadAccounts("", nil); accounts != nil {
		t.Fatalf("empty config must yield no accounts")
	}
}
