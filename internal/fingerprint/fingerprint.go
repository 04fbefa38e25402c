// Package fingerprint derives a stable device hash from request metadata.
// The hash binds a session to the client that created it so that token
// reuse from an unexpected device can be detected.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// Fingerprint is the per-request device identity. Hash is empty when
// neither an IP nor a User-Agent could be resolved, in which case
// device-mismatch detection is disabled for the request.
type Fingerprint struct {
	Hash      string
	IP        string
	UserAgent string
	// Locale is the preferred language tag parsed from Accept-Language.
	// It feeds audit records only and is never part of the hash input.
	Locale string
}

// Compute builds the fingerprint for a request. Pure; no state.
func Compute(r *http.Request) Fingerprint {
	fp := Fingerprint{
		IP:        ClientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
		Locale:    locale(r.Header.Get("Accept-Language")),
	}
	if fp.IP == "" && fp.UserAgent == "" {
		return fp
	}
	sum := sha256.Sum256([]byte(fp.UserAgent + ":" + fp.IP + ":" + r.Header.Get("Accept-Language")))
	fp.Hash = hex.EncodeToString(sum[:])
	return fp
}

// ClientIP resolves the client address from proxy headers: first entry of
// X-Forwarded-For, then X-Real-IP, then CF-Connecting-IP. Empty when no
// header identifies the client.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return strings.TrimSpace(r.Header.Get("CF-Connecting-IP"))
}

func locale(acceptLanguage string) string {
	if acceptLanguage == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}
