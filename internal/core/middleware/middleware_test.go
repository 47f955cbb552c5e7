package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thejerf/slogassert"

	mylog "github.com/mohammed-shakir/geofeature-cache/internal/logger"
)

func TestLogging_PropagatesRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen string
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mylog.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/features", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen != "abc123" {
		t.Fatalf("request id in ctx=%q", seen)
	}
	if rr.Header().Get("X-Request-ID") != "abc123" {
		t.Fatalf("response header=%q", rr.Header().Get("X-Request-ID"))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/features", nil))
	if rr.Header().Get("X-Request-ID") == "" || seen == "" || seen == "abc123" {
		t.Fatalf("expected a generated request id, got header=%q ctx=%q", rr.Header().Get("X-Request-ID"), seen)
	}
}

func TestRecover_Returns500(t *testing.T) {
	h := slogassert.New(t, slog.LevelError, nil)
	hdl := Recover(slog.New(h))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	hdl.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/features", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
	h.AssertSomeMessage("panic recovered")
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	hdl := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rr := httptest.NewRecorder()
	hdl.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/features", nil))
	if rr.Code != http.StatusNoContent || called {
		t.Fatalf("preflight status=%d called=%v", rr.Code, called)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing allow-origin")
	}
}
