package server

import (
	"net/http"

	"github.com/florianilch/servicecall/internal/servicecall"
)

// ReadinessChecker reports whether the application can serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

type readiness struct {
	Status string `json:"status"`
	Tokens int    `json:"tokens"`
}

// livenessHandler always answers 200 while the process is up.
func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	}
}

// readinessHandler answers 200 once checker reports ready and 503 before,
// with the number of registered tokens in the body.
func readinessHandler(checker ReadinessChecker, registry *servicecall.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")

		body := readiness{Status: "ready", Tokens: registry.Len()}
		status := http.StatusOK
		if !checker.IsReady() {
			body.Status = "starting"
			status = http.StatusServiceUnavailable
		}
		writeJSON(r.Context(), w, body, status)
	}
}
