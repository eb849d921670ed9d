package servicecall

import (
	"time"

	"github.com/florianilch/servicecall/internal/transport"
)

// Observer receives notifications about token refreshes and outbound calls,
// e.g. to record metrics. Implementations must be safe for concurrent use.
type Observer interface {
	// TokenRefreshed is called once per network refresh of a token.
	TokenRefreshed(ok bool, elapsed time.Duration)
	// RequestCompleted is called after each outbound call, upload or download.
	RequestCompleted(operation string, res *transport.Result)
}

type nopObserver struct{}

func (nopObserver) TokenRefreshed(bool, time.Duration)         {}
func (nopObserver) RequestCompleted(string, *transport.Result) {}

// Option configures a Registry or a Dispatcher.
type Option func(*options)

type options struct {
	now      func() time.Time
	observer Observer
}

func newOptions(opts []Option) options {
	o := options{
		now:      time.Now,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces time.Now, letting tests move time forward.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}
