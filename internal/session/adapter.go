package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/boostline/boostline/internal/fingerprint"
	"github.com/boostline/boostline/internal/identity"
	"github.com/boostline/boostline/internal/roles"
)

// Cookie names. Production gets the __Host- prefix so the cookie is
// scoped to the exact host over HTTPS.
const (
	cookieName     = "boostline_session"
	cookieNameProd = "__Host-boostline_session"
	csrfCookie     = "boostline_csrf"
	csrfCookieProd = "__Secure-boostline_csrf"
)

// CookieName returns the session cookie name for the environment.
func CookieName(production bool) string {
	if production {
		return cookieNameProd
	}
	return cookieName
}

// CSRFCookieName returns the CSRF cookie name for the environment.
func CSRFCookieName(production bool) string {
	if production {
		return csrfCookieProd
	}
	return csrfCookie
}

// NewCookie builds the session cookie for a token.
func NewCookie(token string, expiresAt time.Time, production bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName(production),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCSRFCookie builds the CSRF cookie; stricter SameSite than the
// session cookie.
func NewCSRFCookie(value string, production bool) *http.Cookie {
	return &http.Cookie{
		Name:     CSRFCookieName(production),
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   production,
		SameSite: http.SameSiteStrictMode,
	}
}

// Principal is the authenticated actor handed to the gate.
type Principal struct {
	UserID         string
	Email          string
	Role           roles.Role
	Permissions    []string
	DeviceMismatch bool
}

// Store is the slice of the identity client the adapter needs.
type Store interface {
	GetSession(ctx context.Context, token string) (*identity.Session, error)
	GetUser(ctx context.Context, id string) (*identity.User, error)
	CreateSession(ctx context.Context, session identity.Session) (*identity.Session, error)
	UpdateSession(ctx context.Context, session identity.Session) (*identity.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

var _ Store = (*identity.Client)(nil)

// Adapter resolves the request session from the identity store and keeps
// its device-binding enrichment current.
type Adapter struct {
	store      Store
	logger     *slog.Logger
	production bool
	ttl        time.Duration
	now        func() time.Time
}

// NewAdapter constructs an Adapter.
func NewAdapter(store Store, logger *slog.Logger, production bool, ttl time.Duration) *Adapter {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Adapter{
		store:      store,
		logger:     logger,
		production: production,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Load resolves the principal for a request. Absent or expired sessions
// yield (nil, nil). Identity-store failures propagate so the caller
// decides the failure mode; the gate fails closed on them.
//
// Each load is a refresh: the freshly computed fingerprint runs through
// the binding state machine, and any state change (first bind, mismatch
// raised) is persisted back to the identity store so later requests see
// it even if this one is handled elsewhere.
func (a *Adapter) Load(ctx context.Context, r *http.Request) (*Principal, error) {
	cookie, err := r.Cookie(CookieName(a.production))
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	sess, err := a.store.GetSession(ctx, cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if !sess.ExpiresAt.IsZero() && !sess.ExpiresAt.After(a.now()) {
		return nil, nil
	}

	user, err := a.store.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("session: resolve user: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	role, ok := roles.ParseRole(user.Role)
	if !ok && a.logger != nil {
		a.logger.Warn("session user carries unknown role",
			slog.String("user_id", user.ID),
			slog.String("role", user.Role))
	}

	prev := Token{
		SessionToken:   sess.Token,
		UserID:         user.ID,
		Email:          user.Email,
		Role:           role,
		Fingerprint:    sess.Fingerprint,
		DeviceMismatch: sess.DeviceMismatch,
		ExpiresAt:      sess.ExpiresAt,
	}
	next := Next(prev, nil, fingerprint.Compute(r))

	if next.Fingerprint != prev.Fingerprint || next.DeviceMismatch != prev.DeviceMismatch {
		sess.Fingerprint = next.Fingerprint
		sess.DeviceMismatch = next.DeviceMismatch
		if _, err := a.store.UpdateSession(ctx, *sess); err != nil {
			// The in-memory decision already downgraded this request;
			// losing the write only delays when other instances see it.
			if a.logger != nil {
				a.logger.Error("persist device binding", slog.Any("error", err))
			}
		}
	}

	return &Principal{
		UserID:         next.UserID,
		Email:          next.Email,
		Role:           next.Role,
		Permissions:    next.Permissions,
		DeviceMismatch: next.DeviceMismatch,
	}, nil
}

// SignIn creates an identity-store session bound to the request's device
// and returns the enriched token plus the cookie to set. Identity-store
// failures propagate; the auth flow converts them into a failed sign-in.
func (a *Adapter) SignIn(ctx context.Context, user *identity.User, r *http.Request) (Token, *http.Cookie, error) {
	role, _ := roles.ParseRole(user.Role)
	expiresAt := a.now().Add(a.ttl)
	created, err := a.store.CreateSession(ctx, identity.Session{
		UserID:      user.ID,
		ExpiresAt:   expiresAt,
		Fingerprint: fingerprint.Compute(r).Hash,
	})
	if err != nil {
		return Token{}, nil, fmt.Errorf("session: create: %w", err)
	}
	token := Next(Token{}, &SignInEvent{
		SessionToken: created.Token,
		UserID:       user.ID,
		Email:        user.Email,
		Role:         role,
		ExpiresAt:    created.ExpiresAt,
	}, fingerprint.Compute(r))
	return token, NewCookie(created.Token, created.ExpiresAt, a.production), nil
}

// NewCSRF mints a fresh CSRF cookie. Issued next to the session cookie
// on sign-in; handlers compare the submitted token against it.
func (a *Adapter) NewCSRF() *http.Cookie {
	return NewCSRFCookie(uuid.NewString(), a.production)
}

// SignOut invalidates the request's session, if any, and returns an
// expired cookie to clear it client-side.
func (a *Adapter) SignOut(ctx context.Context, r *http.Request) *http.Cookie {
	if cookie, err := r.Cookie(CookieName(a.production)); err == nil && cookie.Value != "" {
		if err := a.store.DeleteSession(ctx, cookie.Value); err != nil && a.logger != nil {
			a.logger.Warn("delete session", slog.Any("error", err))
		}
	}
	expired := NewCookie("", time.Unix(0, 0), a.production)
	expired.MaxAge = -1
	return expired
}
