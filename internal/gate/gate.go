// Package gate is the edge authorization pipeline. Every inbound
// request passes through it before reaching a page or API route; it
// produces exactly one decision (pass-through, JSON error, or redirect
// to sign-in) and exactly one audit event per request.
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/boostline/boostline/internal/audit"
	"github.com/boostline/boostline/internal/fingerprint"
	"github.com/boostline/boostline/internal/platform/httpx"
	"github.com/boostline/boostline/internal/ratelimit"
	"github.com/boostline/boostline/internal/roles"
	"github.com/boostline/boostline/internal/serviceaccount"
	"github.com/boostline/boostline/internal/session"
)

const (
	// MaintenanceHeader carries a service-account bypass token.
	MaintenanceHeader = "x-maintenance-token"
	// MaintenanceCookie is the cookie fallback for the same token.
	MaintenanceCookie = "maintenance_token"
	// SignInPath is where denied page requests are redirected.
	SignInPath = "/login"
)

// Fixed denial bodies.
const (
	msgUnauthenticated  = "Authentication required."
	msgInsufficientRole = "Insufficient permissions."
	msgRateLimited      = "Too many requests."
)

// SessionSource resolves the request principal, normally the session
// adapter.
type SessionSource interface {
	Load(ctx context.Context, r *http.Request) (*session.Principal, error)
}

// Recorder receives the one audit event per request, normally the audit
// dispatcher.
type Recorder interface {
	Record(event audit.AccessEvent)
}

// DecisionObserver feeds gate outcomes into metrics.
type DecisionObserver interface {
	ObserveDecision(decision, reason string, elapsed time.Duration)
}

// Gate orchestrates the authorization pipeline.
type Gate struct {
	policies Policies
	limiter  ratelimit.Store
	verifier *serviceaccount.Verifier
	sessions SessionSource
	recorder Recorder
	observer DecisionObserver
	logger   *slog.Logger
	now      func() time.Time
}

// Config collects Gate dependencies. Limiter, Verifier, Sessions, and
// Recorder are required; Observer and Logger may be nil.
type Config struct {
	Policies Policies
	Limiter  ratelimit.Store
	Verifier *serviceaccount.Verifier
	Sessions SessionSource
	Recorder Recorder
	Observer DecisionObserver
	Logger   *slog.Logger
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	return &Gate{
		policies: cfg.Policies,
		limiter:  cfg.Limiter,
		verifier: cfg.Verifier,
		sessions: cfg.Sessions,
		recorder: cfg.Recorder,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// ClientIdentifier resolves the rate-limit key for a request: the first
// entry of X-Forwarded-For, falling back to a literal "unknown". All
// unidentifiable clients deliberately share one bucket per policy; the
// limiter fails toward "closed" rather than giving headerless traffic a
// fresh budget each.
func ClientIdentifier(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return "unknown"
}

// Middleware evaluates the pipeline in fixed order: maintenance bypass
// resolution, rate limiting, unconditional pass paths, policy lookup,
// service-account grant, session requirement, device binding, role
// check. Short-circuits at the first decisive step.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := g.now()
		fp := fingerprint.Compute(r)
		path := r.URL.Path

		// 1. Maintenance bypass resolution. Verification failure is
		// silent: the principal stays whatever the session says.
		grant := g.resolveGrant(r)

		// 2. Rate limiting, first matching policy only.
		if policy := g.policies.matchRate(path); policy != nil {
			key := policy.Name + ":" + ClientIdentifier(r)
			res, err := g.limiter.Consume(r.Context(), key, policy.Limit)
			if err != nil {
				// A broken limiter store must not take the site down;
				// the request proceeds unthrottled.
				if g.logger != nil {
					g.logger.Error("rate limit store", slog.Any("error", err))
				}
			} else if !res.OK {
				g.finish(w, r, fp, started, outcome{
					decision: audit.DecisionRateLimited,
					reason:   audit.ReasonRatePolicyPrefix + policy.Name,
					respond: func(w http.ResponseWriter) {
						w.Header().Set("Retry-After", strconv.Itoa(g.retryAfterSeconds(policy.Limit)))
						httpx.JSON(w, http.StatusTooManyRequests, map[string]string{"error": msgRateLimited})
					},
				})
				return
			}
		}

		// 3. Identity provider and preview endpoints skip everything else.
		if g.policies.bypassed(path) {
			g.allow(w, r, next, fp, started, nil)
			return
		}

		// 4. Policy lookup for the route class; no match means public.
		policy := g.policies.matchTier(path)
		if policy == nil {
			g.allow(w, r, next, fp, started, nil)
			return
		}

		// 5. A verified service account granting the tier bypasses
		// session, role, and device checks entirely.
		if grant != nil && grant.HasTier(policy.Tier) {
			g.recorder.Record(g.event(r, fp, audit.DecisionAllowed, audit.ReasonServiceAccount, grant.AccountID))
			g.observe(audit.DecisionAllowed, audit.ReasonServiceAccount, started)
			next.ServeHTTP(w, r)
			return
		}

		// 6. From here a session is mandatory.
		principal := g.loadPrincipal(r)
		if principal == nil {
			g.deny(w, r, fp, started, audit.ReasonUnauthenticated, http.StatusUnauthorized, msgUnauthenticated, "")
			return
		}

		// 7. Device binding precedes the role check: a hijacked session
		// is denied even when its role would have sufficed.
		if principal.DeviceMismatch {
			g.deny(w, r, fp, started, audit.ReasonDeviceMismatch, http.StatusUnauthorized, msgUnauthenticated, principal.UserID)
			return
		}

		// 8. Role check.
		if !roles.Satisfies(principal.Role, policy.Tier) {
			g.deny(w, r, fp, started, audit.ReasonInsufficientRole, http.StatusForbidden, msgInsufficientRole, principal.UserID)
			return
		}

		g.allow(w, r, next, fp, started, principal)
	})
}

type outcome struct {
	decision audit.Decision
	reason   string
	subject  string
	respond  func(w http.ResponseWriter)
}

func (g *Gate) resolveGrant(r *http.Request) *serviceaccount.Grant {
	token := r.Header.Get(MaintenanceHeader)
	if token == "" {
		if cookie, err := r.Cookie(MaintenanceCookie); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		return nil
	}
	grant, err := g.verifier.Verify(token)
	if err != nil {
		if g.logger != nil {
			g.logger.Debug("maintenance token rejected", slog.Any("error", err))
		}
		return nil
	}
	return grant
}

func (g *Gate) loadPrincipal(r *http.Request) *session.Principal {
	principal, err := g.sessions.Load(r.Context(), r)
	if err != nil {
		// Fail closed: an unreachable identity store means nobody is
		// signed in, not everybody.
		if g.logger != nil {
			g.logger.Error("session load", slog.Any("error", err))
		}
		return nil
	}
	return principal
}

func (g *Gate) allow(w http.ResponseWriter, r *http.Request, next http.Handler, fp fingerprint.Fingerprint, started time.Time, principal *session.Principal) {
	subject := ""
	if principal != nil {
		subject = principal.UserID
		r = r.WithContext(session.ContextWithPrincipal(r.Context(), principal))
	}
	g.recorder.Record(g.event(r, fp, audit.DecisionAllowed, "", subject))
	g.observe(audit.DecisionAllowed, "", started)
	next.ServeHTTP(w, r)
}

// deny surfaces the failure per route class: JSON status for API routes,
// a redirect to sign-in preserving the original destination for pages.
func (g *Gate) deny(w http.ResponseWriter, r *http.Request, fp fingerprint.Fingerprint, started time.Time, reason string, apiStatus int, apiMessage, subject string) {
	if isAPIRoute(r.URL.Path) {
		g.finish(w, r, fp, started, outcome{
			decision: audit.DecisionDenied,
			reason:   reason,
			subject:  subject,
			respond: func(w http.ResponseWriter) {
				httpx.JSON(w, apiStatus, map[string]string{"error": apiMessage})
			},
		})
		return
	}
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	location := SignInPath + "?next=" + url.QueryEscape(target)
	g.finish(w, r, fp, started, outcome{
		decision: audit.DecisionRedirected,
		reason:   reason,
		subject:  subject,
		respond: func(w http.ResponseWriter) {
			http.Redirect(w, r, location, http.StatusTemporaryRedirect)
		},
	})
}

func (g *Gate) finish(w http.ResponseWriter, r *http.Request, fp fingerprint.Fingerprint, started time.Time, out outcome) {
	g.recorder.Record(g.event(r, fp, out.decision, out.reason, out.subject))
	g.observe(out.decision, out.reason, started)
	out.respond(w)
}

func (g *Gate) event(r *http.Request, fp fingerprint.Fingerprint, decision audit.Decision, reason, subject string) audit.AccessEvent {
	event := audit.NewAccessEvent(r.URL.Path, r.Method, decision, reason)
	event.Subject = subject
	event.IP = fp.IP
	event.UserAgent = fp.UserAgent
	event.Locale = fp.Locale
	return event
}

func (g *Gate) observe(decision audit.Decision, reason string, started time.Time) {
	if g.observer != nil {
		g.observer.ObserveDecision(string(decision), reason, g.now().Sub(started))
	}
}

// retryAfterSeconds reports time until the current fixed window rolls
// over, rounded up.
func (g *Gate) retryAfterSeconds(limit ratelimit.Limit) int {
	windowMs := limit.Window.Milliseconds()
	if windowMs <= 0 {
		return 1
	}
	remainderMs := windowMs - g.now().UnixMilli()%windowMs
	seconds := (remainderMs + 999) / 1000
	if seconds < 1 {
		seconds = 1
	}
	return int(seconds)
}
