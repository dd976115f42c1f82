package edge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/cantikdist/edge-intake/internal/telemetry"
)

// IDGenerator supplies opaque per-request trace identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

type traceIDKey struct{}
type nonceKey struct{}
type localeKey struct{}

// TraceID returns the request trace id stored in ctx, if any.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// Nonce returns the per-request CSP nonce stored in ctx, if any.
func Nonce(ctx context.Context) string {
	n, _ := ctx.Value(nonceKey{}).(string)
	return n
}

// Locale returns the resolved locale stored in ctx, if any.
func Locale(ctx context.Context) string {
	l, _ := ctx.Value(localeKey{}).(string)
	return l
}

// TraceMiddleware attaches a trace identifier and a CSP nonce to every
// request, including passthroughs. The nonce scopes inline-script
// allowances in the response CSP header.
func TraceMiddleware(gen IDGenerator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID, err := gen.NewID()
			if err != nil {
				traceID = "unknown"
			}
			nonce := newNonce()

			ctx := context.WithValue(r.Context(), traceIDKey{}, traceID)
			ctx = context.WithValue(ctx, nonceKey{}, nonce)

			w.Header().Set("X-Trace-Id", traceID)
			w.Header().Set("X-CSP-Nonce", nonce)
			w.Header().Set("Content-Security-Policy",
				fmt.Sprintf("script-src 'self' 'nonce-%s'", nonce))

			r.Header.Set("X-Trace-Id", traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Middleware applies the routing decision: redirects non-prefixed page
// paths, records the locale for rewrites, and leaves passthroughs alone.
func (rt *Router) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := rt.Route(r)
			switch decision.Action {
			case Redirect:
				http.SetCookie(w, rt.Cookie(decision.Locale))
				telemetry.ObserveLocaleRedirect(decision.Locale)
				// 307 keeps method and body intact and avoids caching a
				// locale guess permanently.
				http.Redirect(w, r, decision.Target, http.StatusTemporaryRedirect)
				return
			case Rewrite:
				ctx := context.WithValue(r.Context(), localeKey{}, decision.Locale)
				r.Header.Set("X-Locale", decision.Locale)
				w.Header().Set("X-Locale", decision.Locale)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func newNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "fallback-nonce"
	}
	return base64.RawStdEncoding.EncodeToString(b)
}
