package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessHandler serves CheckReadiness: 200 when healthy, 503 otherwise.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, c.CheckReadiness(r.Context()), false)
	}
}

// LivenessHandler serves CheckLiveness: 200 unless unhealthy.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, c.CheckLiveness(r.Context()), true)
	}
}

func writeResponse(w http.ResponseWriter, response Response, degradedOK bool) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case response.Status == StatusHealthy:
		w.WriteHeader(http.StatusOK)
	case response.Status == StatusDegraded && degradedOK:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response)
}
