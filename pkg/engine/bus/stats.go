package bus

import (
	"sync"

	"github.com/pathscout/pathscout/pkg/metrics"
)

// ScanCounters holds the per-category telemetry the Policy Engine samples
// once per tuning interval.
type ScanCounters struct {
	TotalRequests int
	Timeouts      int
	Connection    int
	RequestErrors int
	Status403     int
	Status429     int
	Other         int
}

// Stats is the handler backing the stats commands: it owns per-scan
// counters and is safe for concurrent Snapshot reads while Run processes
// commands from a single goroutine.
type Stats struct {
	handler *Handler
	metrics *metrics.Registry

	mu      sync.RWMutex
	perScan map[string]*ScanCounters
}

// NewStats creates a Stats handler with its own command queue.
func NewStats() *Stats {
	return &Stats{
		handler: NewHandler(),
		perScan: make(map[string]*ScanCounters),
	}
}

// Handler exposes the underlying command queue so callers can Send/Sync.
func (s *Stats) Handler() *Handler {
	return s.handler
}

// AttachMetrics wires a Prometheus registry into the handler so every
// counter command it processes also updates the corresponding exported
// instrument. Optional: a Stats with no attached Registry behaves exactly
// as before --metrics-addr existed.
func (s *Stats) AttachMetrics(r *metrics.Registry) {
	s.metrics = r
}

func (s *Stats) counters(scanID string) *ScanCounters {
	c, ok := s.perScan[scanID]
	if !ok {
		c = &ScanCounters{}
		s.perScan[scanID] = c
	}
	return c
}

// Run drains the command queue until it observes Exit. It is meant to be
// launched as its own goroutine; all per-scan mutation happens only here,
// each under the write lock, while Snapshot (called from other
// goroutines) takes the read lock.
func (s *Stats) Run() {
	for cmd := range s.handler.Commands() {
		switch c := cmd.(type) {
		case AddRequest:
			s.mu.Lock()
			s.counters(c.ScanID).TotalRequests++
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.RequestsTotal.Inc()
			}
		case AddError:
			s.mu.Lock()
			counters := s.counters(c.ScanID)
			var kind string
			switch c.Kind {
			case ErrorTimeout:
				counters.Timeouts++
				kind = "timeout"
			case ErrorConnection:
				counters.Connection++
				kind = "connection"
			case ErrorRequest:
				counters.RequestErrors++
				kind = "request"
			default:
				counters.Other++
				kind = "other"
			}
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.ErrorsTotal.WithLabelValues(kind).Inc()
			}
		case AddStatus:
			s.mu.Lock()
			counters := s.counters(c.ScanID)
			switch c.Code {
			case 403:
				counters.Status403++
			case 429:
				counters.Status429++
			}
			s.mu.Unlock()
		case Sync:
			c.Reply <- true
		case Exit:
			s.handler.MarkDone()
			return
		}
	}
}

// IncActiveScans and DecActiveScans track the number of directory scans
// currently Running for the pathscout_scans_active gauge. They are safe to
// call even when no Registry is attached. Unlike the counter commands
// above, these are called directly rather than routed through Run's
// command queue: a Scanner's Running window spans its own goroutine's
// lifetime and has no natural bus command to piggyback on.
func (s *Stats) IncActiveScans() {
	if s.metrics != nil {
		s.metrics.ScansActive.Inc()
	}
}

func (s *Stats) DecActiveScans() {
	if s.metrics != nil {
		s.metrics.ScansActive.Dec()
	}
}

// Snapshot returns a copy of the counters accumulated for scanID so far.
func (s *Stats) Snapshot(scanID string) ScanCounters {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.perScan[scanID]
	if !ok {
		return ScanCounters{}
	}
	return *c
}
