// Package simsession provides the simulator-handle lifecycle described by
// spec.md §5's SimSession (component C15): exactly one Session is alive at
// a time for a given facade, since the simulator it wraps is a stateful
// external process that cannot be shared across concurrent callers. A
// process-backed Facade (simfacade/process.go) holds one long-lived
// subprocess conversation across every (regime, variant, scenario) triple
// rather than re-executing per triple, so cmd/dss opens one Session for
// the life of a whole command invocation; the invariant this package
// guards — "at most one handle active" — is exercised at whatever
// granularity the caller chooses.
package simsession

import (
	"context"

	"github.com/SavinovAleksandr/dss/metrics"
	"github.com/SavinovAleksandr/dss/simfacade"
)

// Session owns one simfacade.Facade for as long as the caller keeps it
// open; cmd/dss keeps one open for a whole command invocation.
type Session struct {
	Facade simfacade.Facade

	metrics *metrics.Registry
	closed  bool
}

// Open wraps an already-constructed Facade in a Session and marks it
// active in the supplied metrics registry (dss_active_sim_sessions),
// matching the "exactly one simulator handle alive at a time" invariant
// in spec.md §5.
func Open(facade simfacade.Facade, reg *metrics.Registry) *Session {
	if reg != nil {
		reg.ActiveSessions.Inc()
	}
	return &Session{Facade: facade, metrics: reg}
}

// Close releases the underlying facade and decrements the active-session
// gauge. Safe to call multiple times.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	return s.Facade.Close()
}

// WithLogEvents subscribes to the session's facade log sink for the
// duration of fn and guarantees the unsubscribe runs on every exit path
// (spec.md §6.2 "Event sink"; §9 "scoped acquisition with guaranteed
// release"), grounded on the teacher's consistent defer-based cleanup in
// job.go.
func WithLogEvents(ctx context.Context, s *Session, fn func(<-chan simfacade.LogEvent) error) error {
	ch, unsubscribe := s.Facade.Subscribe()
	defer unsubscribe()
	return fn(ch)
}
