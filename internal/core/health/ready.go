package health

import (
	"encoding/json"
	"net/http"
)

type ReadinessReporter interface {
	Readiness() (ready bool, entries int)
}

// Readiness reports the scenario name and, when rr is set, the cache size.
func Readiness(scenario string, rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status   string `json:"status"`
			Scenario string `json:"scenario,omitempty"`
			Entries  *int   `json:"entries,omitempty"`
		}
		ready := true
		out := resp{Scenario: scenario}
		if rr != nil {
			var n int
			ready, n = rr.Readiness()
			out.Entries = &n
		}
		out.Status = "not_ready"
		if ready {
			out.Status = "ready"
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
