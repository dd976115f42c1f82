// Package edge classifies inbound requests, resolves the visitor locale,
// and stamps per-request trace and security headers.
package edge

import (
	"net/http"
	"path"
	"strings"
)

// ActionKind says what the edge does with a request.
type ActionKind int

// Edge actions, first-match-wins during classification.
const (
	Passthrough ActionKind = iota
	Rewrite
	Redirect
)

// Source records where a locale decision came from.
type Source string

// Locale decision sources.
const (
	SourcePath    Source = "path"
	SourceCookie  Source = "cookie"
	SourceHeader  Source = "header"
	SourceDefault Source = "default"
)

// Decision is the per-request routing outcome. Never persisted.
type Decision struct {
	Action ActionKind
	Locale string
	Source Source
	// Target is the locale-prefixed URL for Redirect actions.
	Target string
}

// Config fixes the locale set the router recognizes. It is immutable
// after construction.
type Config struct {
	Supported    []string
	Default      string
	CookieName   string
	CookieMaxAge int
}

// Router is a pure request classifier; all state is the immutable config.
type Router struct {
	cfg       Config
	supported map[string]bool
}

var wellKnownFiles = map[string]bool{
	"/favicon.ico": true,
	"/robots.txt":  true,
	"/sitemap.xml": true,
}

var internalPrefixes = []string{"/_", "/static/", "/assets/", "/api/"}

// New builds a Router for the given locale set.
func New(cfg Config) *Router {
	if cfg.CookieName == "" {
		cfg.CookieName = "locale"
	}
	supported := make(map[string]bool, len(cfg.Supported))
	for _, l := range cfg.Supported {
		supported[strings.ToLower(l)] = true
	}
	return &Router{cfg: cfg, supported: supported}
}

// Route classifies a request. Asset, internal, and API paths pass through
// untouched; locale-prefixed paths rewrite; everything else redirects to
// its locale-prefixed form.
func (rt *Router) Route(r *http.Request) Decision {
	p := r.URL.Path
	if p == "" {
		p = "/"
	}

	if rt.isPassthrough(p) {
		return Decision{Action: Passthrough}
	}

	if locale, ok := rt.pathLocale(p); ok {
		return Decision{Action: Rewrite, Locale: locale, Source: SourcePath}
	}

	locale, source := rt.resolveLocale(r)
	target := "/" + locale
	if p != "/" {
		target += p
	}
	if q := r.URL.RawQuery; q != "" {
		target += "?" + q
	}
	return Decision{Action: Redirect, Locale: locale, Source: source, Target: target}
}

func (rt *Router) isPassthrough(p string) bool {
	if wellKnownFiles[p] || p == "/api" {
		return true
	}
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	// Anything with a file extension is a static asset.
	return path.Ext(p) != ""
}

func (rt *Router) pathLocale(p string) (string, bool) {
	seg := strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	seg = strings.ToLower(seg)
	if rt.supported[seg] {
		return seg, true
	}
	return "", false
}

// resolveLocale applies the precedence cookie > Accept-Language > default.
// Malformed values fall through silently.
func (rt *Router) resolveLocale(r *http.Request) (string, Source) {
	if c, err := r.Cookie(rt.cfg.CookieName); err == nil {
		if locale := strings.ToLower(strings.TrimSpace(c.Value)); rt.supported[locale] {
			return locale, SourceCookie
		}
	}
	if locale, ok := rt.matchAcceptLanguage(r.Header.Get("Accept-Language")); ok {
		return locale, SourceHeader
	}
	return rt.cfg.Default, SourceDefault
}

// matchAcceptLanguage walks the header's language ranges in order and
// returns the first whose primary subtag is supported.
func (rt *Router) matchAcceptLanguage(header string) (string, bool) {
	for _, part := range strings.Split(header, ",") {
		lang := strings.TrimSpace(part)
		if i := strings.IndexByte(lang, ';'); i >= 0 {
			lang = lang[:i]
		}
		if i := strings.IndexByte(lang, '-'); i >= 0 {
			lang = lang[:i]
		}
		lang = strings.ToLower(strings.TrimSpace(lang))
		if rt.supported[lang] {
			return lang, true
		}
	}
	return "", false
}

// Cookie builds the locale persistence cookie for a resolved locale.
func (rt *Router) Cookie(locale string) *http.Cookie {
	return &http.Cookie{
		Name:     rt.cfg.CookieName,
		Value:    locale,
		Path:     "/",
		MaxAge:   rt.cfg.CookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	}
}
