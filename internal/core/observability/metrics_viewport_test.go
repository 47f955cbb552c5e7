package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestViewportMetrics_LabelsAndIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	SetScenario("cache")

	before := testutil.ToFloat64(viewportResults.WithLabelValues("hit", "cache"))
	IncViewportResult("hit")
	IncViewportResult("miss")
	IncViewportResult("miss")
	IncViewportEviction("capacity")
	SetViewportEntries(7)

	if got := testutil.ToFloat64(viewportResults.WithLabelValues("hit", "cache")); got != before+1 {
		t.Fatalf("hit counter=%v want %v", got, before+1)
	}

	// scrape from a dedicated handler bound to our registry
	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("metrics scrape: %v", err)
	}
	t.Cleanup(func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.Fatalf("close body: %v", cerr)
		}
	})
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	out := string(b)

	for _, want := range []string{
		`viewport_cache_results_total{outcome="miss",scenario="cache"}`,
		`viewport_cache_evictions_total{reason="capacity"}`,
		`viewport_cache_entries 7`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics; got:\n%s", want, out)
		}
	}
}

func TestInit_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	Init(reg, true)
	Init(nil, true)
	Init(reg, false)
}
