package gate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/boostline/boostline/internal/audit"
	"github.com/boostline/boostline/internal/ratelimit"
	"github.com/boostline/boostline/internal/roles"
	"github.com/boostline/boostline/internal/serviceaccount"
	"github.com/boostline/boostline/internal/session"
	_ "github.com/boostline/boostline/testing"
)

const gateSecret = "gate-secret"

type stubSessions struct {
	principal *session.Principal
	err       error
}

func (s *stubSessions) Load(ctx context.Context, r *http.Request) (*session.Principal, error) {
	return s.principal, s.err
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []audit.AccessEvent
}

func (m *memoryRecorder) Record(event audit.AccessEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *memoryRecorder) last(t *testing.T) audit.AccessEvent {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		t.Fatalf("no audit events recorded")
	}
	return m.events[len(m.events)-1]
}

func (m *memoryRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type fixture struct {
	gate     *Gate
	recorder *memoryRecorder
	sessions *stubSessions
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	recorder := &memoryRecorder{}
	sessions := &stubSessions{}
	verifier := serviceaccount.NewVerifier([]serviceaccount.Account{
		{ID: "deploy-bot", Tiers: []string{"operator"}},
	}, gateSecret)
	// Pinning the limiter clock keeps every request inside one fixed
	// window, so budget tests cannot race a real window rollover.
	limiter := ratelimit.NewMemoryStore().WithClock(func() time.Time {
		return time.UnixMilli(1_700_000_000_000)
	})
	g := New(Config{
		Policies: DefaultPolicies(),
		Limiter:  limiter,
		Verifier: verifier,
		Sessions: sessions,
		Recorder: recorder,
	})
	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("downstream"))
	})
	return &fixture{gate: g, recorder: recorder, sessions: sessions, handler: g.Middleware(downstream)}
}

func doRequest(f *fixture, method, target string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body["error"]
}

func TestAnonymousAdminPageRedirects(t *testing.T) {
	f := newFixture(t)
	w := doRequest(f, http.MethodGet, "/admin/orders", nil)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?next=%2Fadmin%2Forders" {
		t.Fatalf("location = %q", loc)
	}
	event := f.recorder.last(t)
	if event.Decision != audit.DecisionRedirected || event.Reason != audit.ReasonUnauthenticated {
		t.Fatalf("event = %+v", event)
	}
}

func TestRedirectPreservesQuery(t *testing.T) {
	f := newFixture(t)
	w := doRequest(f, http.MethodGet, "/dashboard?tab=orders&page=2", nil)
	if loc := w.Header().Get("Location"); loc != "/login?next="+"%2Fdashboard%3Ftab%3Dorders%26page%3D2" {
		t.Fatalf("location = %q", loc)
	}
}

func TestClientRoleDeniedOperatorAPI(t *testing.T) {
	f := newFixture(t)
	f.sessions.principal = &session.Principal{
		UserID:      "u1",
		Role:        roles.RoleClient,
		Permissions: roles.Permissions(roles.RoleClient),
	}
	w := doRequest(f, http.MethodGet, "/api/billing/x", nil)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if msg := errorBody(t, w); msg != "Insufficient permissions." {
		t.Fatalf("body = %q", msg)
	}
	event := f.recorder.last(t)
	if event.Reason != audit.ReasonInsufficientRole || event.Subject != "u1" {
		t.Fatalf("event = %+v", event)
	}
}

func TestAuthRatePolicyLimits(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		w := doRequest(f, http.MethodPost, "/api/auth/callback", nil)
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited before budget exhausted", i+1)
		}
	}
	w := doRequest(f, http.MethodPost, "/api/auth/callback", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("11th request: status = %d, want 429", w.Code)
	}
	if msg := errorBody(t, w); msg != "Too many requests." {
		t.Fatalf("body = %q", msg)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	event := f.recorder.last(t)
	if event.Decision != audit.DecisionRateLimited || event.Reason != "rate_policy:auth" {
		t.Fatalf("event = %+v", event)
	}
}

func TestRateLimitKeyedByClient(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		doRequest(f, http.MethodPost, "/login", nil)
	}
	// A different client identifier gets its own budget.
	w := doRequest(f, http.MethodPost, "/login", func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "198.51.100.9")
	})
	if w.Code == http.StatusTooManyRequests {
		t.Fatalf("second client shares first client's bucket")
	}
}

func TestDeviceMismatchBeatsRole(t *testing.T) {
	f := newFixture(t)
	f.sessions.principal = &session.Principal{
		UserID:         "u1",
		Role:           roles.RoleAdmin,
		DeviceMismatch: true,
	}
	w := doRequest(f, http.MethodGet, "/dashboard", nil)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want redirect despite admin role", w.Code)
	}
	event := f.recorder.last(t)
	if event.Reason != audit.ReasonDeviceMismatch {
		t.Fatalf("reason = %q, want device_mismatch", event.Reason)
	}

	// Same failure on an API route surfaces as 401, not 403.
	w = doRequest(f, http.MethodGet, "/api/billing/x", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("API status = %d, want 401", w.Code)
	}
}

func TestServiceAccountBypassesSession(t *testing.T) {
	f := newFixture(t)
	f.sessions.principal = nil
	token := serviceaccount.IssueToken([]byte(gateSecret), "deploy-bot", time.Now().Add(time.Hour))

	w := doRequest(f, http.MethodGet, "/api/analytics/summary", func(r *http.Request) {
		r.Header.Set(MaintenanceHeader, token)
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 pass-through", w.Code)
	}
	event := f.recorder.last(t)
	if event.Reason != audit.ReasonServiceAccount || event.Subject != "deploy-bot" {
		t.Fatalf("event = %+v", event)
	}
}

func TestServiceAccountTokenViaCookie(t *testing.T) {
	f := newFixture(t)
	token := serviceaccount.IssueToken([]byte(gateSecret), "deploy-bot", time.Now().Add(time.Hour))
	w := doRequest(f, http.MethodGet, "/api/analytics/summary", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: MaintenanceCookie, Value: token})
	})
	if w.Code != http.StatusOK {
		t.Fatalf("cookie token: status = %d, want 200", w.Code)
	}
}

func TestInvalidMaintenanceTokenIsSilent(t *testing.T) {
	f := newFixture(t)
	f.sessions.principal = &session.Principal{UserID: "u1", Role: roles.RoleAdmin}
	w := doRequest(f, http.MethodGet, "/admin/orders", func(r *http.Request) {
		r.Header.Set(MaintenanceHeader, "garbage.token.sig")
	})
	// The bad token never produces an error by itself; the session wins.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 via session", w.Code)
	}
}

func TestServiceAccountInsufficientTierFallsThrough(t *testing.T) {
	f := newFixture(t)
	token := serviceaccount.IssueToken([]byte(gateSecret), "deploy-bot", time.Now().Add(time.Hour))
	// deploy-bot grants operator; /admin/settings needs admin.
	w := doRequest(f, http.MethodGet, "/admin/settings", func(r *http.Request) {
		r.Header.Set(MaintenanceHeader, token)
	})
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want redirect (no session, grant too low)", w.Code)
	}
}

func TestBypassPathsSkipAuth(t *testing.T) {
	f := newFixture(t)
	w := doRequest(f, http.MethodGet, "/api/preview/banner", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview: status = %d, want 200", w.Code)
	}
}

func TestPublicRoutePassesThrough(t *testing.T) {
	f := newFixture(t)
	w := doRequest(f, http.MethodGet, "/products/boost-pack", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	event := f.recorder.last(t)
	if event.Decision != audit.DecisionAllowed || event.Reason != "" {
		t.Fatalf("event = %+v", event)
	}
}

func TestAnonymousAPIGets401(t *testing.T) {
	f := newFixture(t)
	w := doRequest(f, http.MethodGet, "/api/checkout/cart", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if msg := errorBody(t, w); msg != "Authentication required." {
		t.Fatalf("body = %q", msg)
	}
}

func TestIdentityFailureFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.sessions.err = errors.New("identity store unreachable")
	w := doRequest(f, http.MethodGet, "/api/loyalty/points", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 when identity store fails", w.Code)
	}
}

func TestExactlyOneEventPerRequest(t *testing.T) {
	f := newFixture(t)
	doRequest(f, http.MethodGet, "/admin/orders", nil)
	doRequest(f, http.MethodGet, "/products/x", nil)
	doRequest(f, http.MethodGet, "/api/billing/x", nil)
	if got := f.recorder.count(); got != 3 {
		t.Fatalf("events = %d, want 3", got)
	}
}

func TestPrefixMatchingIsSegmentAware(t *testing.T) {
	f := newFixture(t)
	// /administration is not under the /admin policy.
	w := doRequest(f, http.MethodGet, "/administration", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for unmatched prefix", w.Code)
	}
}

func TestUnknownClientsShareBucket(t *testing.T) {
	f := newFixture(t)
	noXFF := func(r *http.Request) { r.Header.Del("X-Forwarded-For") }
	for i := 0; i < 10; i++ {
		doRequest(f, http.MethodPost, "/login", noXFF)
	}
	w := doRequest(f, http.MethodPost, "/login", noXFF)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("headerless clients must share the unknown bucket, got %d", w.Code)
	}
}
