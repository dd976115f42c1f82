package edge

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testRouter() *Router {
	return New(Config{
		Supported:    []string{"id", "en"},
		Default:      "id",
		CookieName:   "locale",
		CookieMaxAge: 31536000,
	})
}

func TestRoutePassthrough(t *testing.T) {
	t.Parallel()

	rt := testRouter()
	for _, path := range []string{
		"/favicon.ico",
		"/robots.txt",
		"/sitemap.xml",
		"/api/leads",
		"/api",
		"/_next/data/page.json",
		"/static/app.css",
		"/assets/logo.png",
		"/images/hero.jpg",
	} {
		r := httptest.NewRequest("GET", path, nil)
		d := rt.Route(r)
		require.Equal(t, Passthrough, d.Action, "path %s", path)
	}
}

func TestRouteLocalePrefixedPathRewrites(t *testing.T) {
	t.Parallel()

	rt := testRouter()
	r := httptest.NewRequest("GET", "/en/about?x=1", nil)
	r.Header.Set("Cookie", "locale=id")
	d := rt.Route(r)
	require.Equal(t, Rewrite, d.Action)
	require.Equal(t, "en", d.Locale)
	require.Equal(t, SourcePath, d.Source)
}

func TestRouteRedirectsWithHeaderLocale(t *testing.T) {
	t.Parallel()

	rt := testRouter()
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Accept-Language", "id-ID")
	d := rt.Route(r)
	require.Equal(t, Redirect, d.Action)
	require.Equal(t, "id", d.Locale)
	require.Equal(t, SourceHeader, d.Source)
	require.Equal(t, "/id", d.Target)
}

func TestRouteCookieBeatsHeader(t *testing.T) {
	t.Parallel()

	rt := testRouter()
	r := httptest.NewRequest("GET", "/products", nil)
	r.Header.Set("Accept-Language", "id-ID")
	r.Header.Set("Cookie", "locale=en")
	d := rt.Route(r)
	require.Equal(t, Redirect, d.Action)
	require.Equal(t, "en", d.Locale)
	require.Equal(t, SourceCookie, d.Source)
	require.Equal(t, "/en/products", d.Target)
}

func TestRoutePreservesPathAndQuery(t *testing.T) {
	t.Parallel()

	rt := testRouter()
	r := httptest.NewRequest("GET", "/products/serum?ref=ig&x=1", nil)
	d := rt.Route(r)
	require.Equal(t, Redirect, d.Action)
	require.Equal(t, "/id/products/serum?ref=ig&x=1", d.Target)
}

func TestRouteMalformedValuesFallThrough(t *testing.T) {
	t.Parallel()

	rt := testRouter()
	r := httptest.NewRequest("GET", "/products", nil)
	r.Header.Set("Cookie", "locale=zz")
	r.Header.Set("Accept-Language", ";;;garbage,fr-FR")
	d := rt.Route(r)
	require.Equal(t, Redirect, d.Action)
	require.Equal(t, "id", d.Locale)
	require.Equal(t, SourceDefault, d.Source)
}

// TestRouteNoRedirectLoop re-routes a redirect target and requires it to
// rewrite, never redirect again.
func TestRouteNoRedirectLoop(t *testing.T) {
	t.Parallel()

	rt := testRouter()
	first := rt.Route(httptest.NewRequest("GET", "/products", nil))
	require.Equal(t, Redirect, first.Action)

	second := rt.Route(httptest.NewRequest("GET", first.Target, nil))
	require.Equal(t, Rewrite, second.Action)
	require.Equal(t, SourcePath, second.Source)
}
