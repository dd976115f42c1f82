package edge

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type staticIDs struct{ id string }

func (g staticIDs) NewID() (string, error) { return g.id, nil }

func TestTraceMiddlewareStampsEveryRequest(t *testing.T) {
	t.Parallel()

	var gotTrace, gotNonce string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = TraceID(r.Context())
		gotNonce = Nonce(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := TraceMiddleware(staticIDs{id: "trace-1"})(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/favicon.ico", nil))

	require.Equal(t, "trace-1", gotTrace)
	require.Equal(t, "trace-1", rec.Header().Get("X-Trace-Id"))
	require.NotEmpty(t, gotNonce)
	require.Equal(t, gotNonce, rec.Header().Get("X-CSP-Nonce"))
	require.Contains(t, rec.Header().Get("Content-Security-Policy"), "nonce-"+gotNonce)
}

func TestLocaleMiddlewareRedirectSetsCookie(t *testing.T) {
	t.Parallel()

	rt := testRouter()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("redirected request must not reach the handler")
	})
	handler := rt.Middleware()(next)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Accept-Language", "id-ID")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	require.Equal(t, "/id", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "locale", cookies[0].Name)
	require.Equal(t, "id", cookies[0].Value)
	require.Equal(t, "/", cookies[0].Path)
	require.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
}

func TestLocaleMiddlewareRewritePassesLocaleDownstream(t *testing.T) {
	t.Parallel()

	rt := testRouter()
	var gotLocale string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocale = Locale(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := rt.Middleware()(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/en/about?x=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "en", gotLocale)
	require.Equal(t, "en", rec.Header().Get("X-Locale"))
}

func TestLocaleMiddlewarePassthroughUntouched(t *testing.T) {
	t.Parallel()

	rt := testRouter()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := rt.Middleware()(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/leads", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Empty(t, rec.Header().Get("X-Locale"))
}
