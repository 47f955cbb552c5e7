package cache

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/config"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/router"
	"github.com/mohammed-shakir/geofeature-cache/internal/provider/geofeatures"
	"github.com/mohammed-shakir/geofeature-cache/internal/scenarios"
)

// end to end: HTTP handler -> cache scenario -> provider client -> fake upstream
func TestCacheScenario_E2E(t *testing.T) {
	var calls int64
	var status atomic.Int64
	status.Store(http.StatusOK)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		if r.URL.Path != geofeatures.Path {
			http.NotFound(w, r)
			return
		}
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"features":[{"id":"a","type":"fault","coordinates":[[0.5,0.5],[0.6,0.6]],"color":"#fff"}],"formations":[{"name":"Monterey"}]}`)
	}))
	defer upstream.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := geofeatures.New(logger, httpclient.NewOutbound(), upstream.URL)
	if err != nil {
		t.Fatalf("geofeatures.New: %v", err)
	}
	cfg := config.Config{CacheMaxEntries: 10, CacheTTL: time.Minute, CachePadFraction: 0.2}
	src, err := newCache(cfg, logger, scenarios.Deps{Provider: client})
	if err != nil {
		t.Fatalf("newCache: %v", err)
	}
	srv := httptest.NewServer(router.HandleFeatures(logger, src))
	defer srv.Close()

	get := func(q string) (int, map[string][]json.RawMessage) {
		t.Helper()
		resp, err := http.Get(srv.URL + "/features?" + q)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()
		var body map[string][]json.RawMessage
		if resp.StatusCode == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
		}
		return resp.StatusCode, body
	}

	code, body := get("minLat=0&minLng=0&maxLat=1&maxLng=1")
	if code != http.StatusOK || len(body["features"]) != 1 || len(body["formations"]) != 1 {
		t.Fatalf("first: code=%d body=%v", code, body)
	}
	if got := string(body["features"][0]); got != `{"id":"a","type":"fault","coordinates":[[0.5,0.5],[0.6,0.6]],"color":"#fff"}` {
		t.Fatalf("feature not served verbatim: %s", got)
	}
	// panned inside the padded entry
	code, body = get("minLat=0.1&minLng=-0.1&maxLat=1.1&maxLng=0.9")
	if code != http.StatusOK || len(body["features"]) != 1 {
		t.Fatalf("second: code=%d body=%v", code, body)
	}
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("upstream calls=%d want 1", n)
	}

	// upstream down: miss degrades to an empty payload and stores nothing
	status.Store(http.StatusInternalServerError)
	code, body = get("minLat=50&minLng=50&maxLat=51&maxLng=51")
	if code != http.StatusOK || len(body["features"]) != 0 || body["features"] == nil {
		t.Fatalf("failure: code=%d body=%v", code, body)
	}
	if ok, n := src.(*Engine).Readiness(); !ok || n != 1 {
		t.Fatalf("readiness=%v entries=%d want 1", ok, n)
	}

	if code, _ := get("minLat=2&minLng=0&maxLat=1&maxLng=1"); code != http.StatusBadRequest {
		t.Fatalf("inverted bounds: code=%d want 400", code)
	}
}
