package app

import (
	"sync/atomic"

	"github.com/florianilch/servicecall/internal/server"
)

// Health tracks whether the server is ready for traffic.
// All methods are thread-safe.
type Health struct {
	ready atomic.Bool
}

var _ server.ReadinessChecker = (*Health)(nil)

// NewHealth returns a Health that starts out not ready.
func NewHealth() *Health {
	return &Health{}
}

// SetReady updates the readiness state.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady implements server.ReadinessChecker.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}
