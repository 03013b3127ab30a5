// Package scan defines the Scan record: the arena-owned, identity-stable
// handle the Scan Manager uses to track a single directory or file scan.
// Components share a Scan through the *Scan pointers the Scan Manager hands
// out; every mutable field is an atomic or guarded by the Scan's mutex.
package scan

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pathscout/pathscout/pkg/config"
)

// Type distinguishes a scan that enumerates a wordlist against one base URL
// (Directory) from a single-request verification of one URL (File).
type Type int

const (
	Directory Type = iota
	File
)

// Order records whether a scan was one of the initial targets or was
// discovered later via recursion or link extraction.
type Order int

const (
	Initial Order = iota
	Latest
)

// Status is a Scan's lifecycle state.
type Status int

const (
	NotStarted Status = iota
	Running
	Complete
	Cancelled
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Complete:
		return "Complete"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Scan is one tracked scan. All mutable fields are behind either an atomic
// or the embedded mutex; Scan values are always accessed through a
// pointer held by the Scan Manager's registry.
type Scan struct {
	// ID is a stable 128-bit identifier, immutable for the Scan's
	// lifetime.
	ID string

	// URL is the original, unnormalized URL this scan targets.
	URL string

	// NormalizedURL is URL canonicalized for uniqueness checks: trailing
	// slash added, host lowercased.
	NormalizedURL string

	Type  Type
	Order Order

	// Depth is the number of non-empty path segments in NormalizedURL,
	// used by the Scan Manager to enforce the configured recursion depth
	// limit.
	Depth int

	// NumRequests is the expected request count (the wordlist length for a
	// directory scan, 1 for a file scan). It is set when the scan starts and
	// is not decremented; Cancel and CancelScan return it unchanged.
	NumRequests atomic.Int64

	OutputLevel config.OutputLevel

	mu     sync.Mutex
	status Status

	// cancel, when non-nil, cancels the context governing this scan's
	// in-flight requests; it is the Go analogue of aborting a spawned
	// task handle.
	cancel context.CancelFunc
}

// New creates a Scan with a fresh UUID for the given URL, normalizing it
// for uniqueness comparisons.
func New(rawURL string, t Type, order Order, level config.OutputLevel) *Scan {
	normalized := Normalize(rawURL)
	return &Scan{
		ID:            uuid.NewString(),
		URL:           rawURL,
		NormalizedURL: normalized,
		Type:          t,
		Order:         order,
		Depth:         PathDepth(normalized),
		OutputLevel:   level,
		status:        NotStarted,
	}
}

// PathDepth counts the non-empty path segments of a URL, used to enforce
// the configured recursion depth limit.
func PathDepth(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	depth := 0
	for _, s := range segments {
		if s != "" {
			depth++
		}
	}
	return depth
}

// Normalize canonicalizes a URL for uniqueness comparisons: it lowercases
// the host and port, and ensures a trailing slash on the path.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Host = strings.ToLower(u.Host)
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	return u.String()
}

// Status returns the scan's current lifecycle state.
func (s *Scan) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus transitions the scan to a new status.
func (s *Scan) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SetCancel stores the cancellation function for this scan's governing
// context, called by whatever spawns the scan's goroutine.
func (s *Scan) SetCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// Abort cancels the scan's context (if one is set) and transitions it to
// Cancelled.
func (s *Scan) Abort() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.status = Cancelled
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
