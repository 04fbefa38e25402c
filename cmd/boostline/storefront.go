package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boostline/boostline/internal/audit"
	"github.com/boostline/boostline/internal/fingerprint"
	"github.com/boostline/boostline/internal/identity"
	"github.com/boostline/boostline/internal/platform/httpx"
	"github.com/boostline/boostline/internal/session"
)

// storefrontHandler serves the routes behind the gate. The real
// storefront (catalog, checkout, operator console) is rendered by the
// web frontend; these handlers are the JSON surfaces it talks to, plus
// a sign-in page stub for redirect targets.
func storefrontHandler(logger *slog.Logger, sessions *session.Adapter, identityClient *identity.Client, dispatcher *audit.Dispatcher) http.Handler {
	r := chi.NewRouter()

	r.Get("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!doctype html><title>Sign in</title><h1>Sign in to Boostline</h1>`))
	})

	// Session finalization after the identity provider has verified
	// credentials. The gate passes /api/auth unconditionally; sign-in
	// attempts are reported as raw telemetry either way.
	r.Post("/api/auth/callback", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Email string `json:"email"`
		}
		if err := httpx.DecodeJSON(r, &payload); err != nil || payload.Email == "" {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		attempt := audit.NewSignInAttempt(payload.Email, false)
		fp := fingerprint.Compute(r)
		attempt.IP = fp.IP
		attempt.UserAgent = fp.UserAgent

		user, err := identityClient.GetUserByEmail(r.Context(), payload.Email)
		if err != nil {
			logger.Error("sign-in lookup", slog.Any("error", err))
			dispatcher.RecordAttempt(attempt)
			httpx.Error(w, http.StatusBadGateway, "Identity store unavailable.")
			return
		}
		if user == nil {
			dispatcher.RecordAttempt(attempt)
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}

		token, cookie, err := sessions.SignIn(r.Context(), user, r)
		if err != nil {
			logger.Error("sign-in", slog.Any("error", err))
			dispatcher.RecordAttempt(attempt)
			httpx.Error(w, http.StatusBadGateway, "Identity store unavailable.")
			return
		}
		attempt.Succeeded = true
		dispatcher.RecordAttempt(attempt)
		http.SetCookie(w, cookie)
		http.SetCookie(w, sessions.NewCSRF())
		httpx.JSON(w, http.StatusOK, map[string]any{
			"subject": token.UserID,
			"role":    token.Role.String(),
		})
	})

	r.Post("/api/auth/signout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, sessions.SignOut(r.Context(), r))
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
	})

	whoami := func(w http.ResponseWriter, r *http.Request) {
		p := session.PrincipalFromContext(r.Context())
		if p == nil {
			httpx.JSON(w, http.StatusOK, map[string]any{"route": r.URL.Path, "subject": nil})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"route":       r.URL.Path,
			"subject":     p.UserID,
			"role":        p.Role.String(),
			"permissions": p.Permissions,
		})
	}

	// Gated surfaces. Authorization already happened at the gate; these
	// only demonstrate what the downstream sees.
	for _, path := range []string{
		"/dashboard", "/account", "/admin/*",
		"/api/billing/*", "/api/analytics/*", "/api/onboarding/*",
		"/api/loyalty/*", "/api/checkout/*",
	} {
		r.Get(path, whoami)
		r.Post(path, whoami)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, httpx.ErrNotFound)
	})

	return r
}
