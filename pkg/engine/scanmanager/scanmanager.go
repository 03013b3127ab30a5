// Package scanmanager implements the Scan Manager: the concurrent registry
// of every scan the engine knows about, the deny list, the cooperative
// pause barrier, and the recursion decision that wires the Link Extractor
// and Requester back into new scans.
package scanmanager

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pathscout/pathscout/pkg/config"
	"github.com/pathscout/pathscout/pkg/engine/response"
	"github.com/pathscout/pathscout/pkg/engine/scan"
)

// SleepDuration is the poll interval used by callers spinning on the pause
// flag while another goroutine occupies the interactive barrier.
const SleepDuration = 500 * time.Millisecond

// ErrDeniedAtStartup is returned by ValidateInitialTarget when an initial
// target passed to the engine matches the deny list: the engine must refuse to
// start rather than silently skip the target.
type ErrDeniedAtStartup struct {
	URL     string
	Pattern string
}

func (e *ErrDeniedAtStartup) Error() string {
	return fmt.Sprintf("the regex '%s' matches %s; the scan will never start", e.Pattern, e.URL)
}

// NewDirectoryScanFunc is invoked whenever TryRecursion discovers a new
// directory worth scanning. It is supplied at construction, the same way
// the interactive pause menu is an external callback: the Scan Manager
// itself never spawns goroutines directly.
type NewDirectoryScanFunc func(s *scan.Scan)

// Manager tracks every Scan the engine has registered, enforces the deny
// list and recursion depth limit, and arbitrates the single-entry
// interactive pause barrier.
type Manager struct {
	mu              sync.RWMutex
	scans           []*scan.Scan
	byNormalizedURL map[string]*scan.Scan

	denyList []string

	maxDepth        int
	recursionOn     bool
	onNewDirectory  NewDirectoryScanFunc

	paused             atomic.Bool
	interactiveBarrier atomic.Int32

	dedupMu   sync.Mutex
	dedupSeen map[string]struct{}
}

// New creates a Manager. maxDepth of 0 means unbounded recursion;
// recursionOn false makes TryRecursion a no-op.
func New(maxDepth int, recursionOn bool, denyList []string, onNewDirectory NewDirectoryScanFunc) *Manager {
	return &Manager{
		byNormalizedURL: make(map[string]*scan.Scan),
		denyList:        denyList,
		maxDepth:        maxDepth,
		recursionOn:     recursionOn,
		onNewDirectory:  onNewDirectory,
		dedupSeen:       make(map[string]struct{}),
	}
}

// ShouldReport reports whether r's (URL, method) pair has not already been
// reported, atomically marking it as seen in the same call. This is the
// single-writer lock around the response set: a request that loses the
// race against a concurrent duplicate sees false and must not report r.
func (m *Manager) ShouldReport(r *response.Response) bool {
	key := dedupKey(r.DedupKey())

	m.dedupMu.Lock()
	defer m.dedupMu.Unlock()

	if _, seen := m.dedupSeen[key]; seen {
		return false
	}
	m.dedupSeen[key] = struct{}{}
	return true
}

// SeedDedup pre-populates the response set from a resumed run's
// previously-recorded (URL, method) pairs, so a completed scan's hits are
// not reported again after resume.
func (m *Manager) SeedDedup(urls, methods []string) {
	m.dedupMu.Lock()
	defer m.dedupMu.Unlock()

	for i, u := range urls {
		method := "GET"
		if i < len(methods) && methods[i] != "" {
			method = methods[i]
		}
		m.dedupSeen[dedupKey(u, method)] = struct{}{}
	}
}

func dedupKey(url, method string) string {
	return method + " " + url
}

// ValidateInitialTarget checks a starting URL against the deny list before
// any scan begins, returning ErrDeniedAtStartup if it matches.
func (m *Manager) ValidateInitialTarget(rawURL string) error {
	normalized := scan.Normalize(rawURL)
	if pattern, denied := m.matchesDenyList(normalized); denied {
		return &ErrDeniedAtStartup{URL: rawURL, Pattern: pattern}
	}
	return nil
}

// Register adds url to the registry if it is not already present,
// returning (true, newScan) if it was newly created or (false, existing)
// if a scan for that normalized URL already exists.
func (m *Manager) Register(rawURL string, t scan.Type, order scan.Order, level config.OutputLevel) (bool, *scan.Scan) {
	normalized := scan.Normalize(rawURL)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byNormalizedURL[normalized]; ok {
		return false, existing
	}

	s := scan.New(rawURL, t, order, level)
	m.scans = append(m.scans, s)
	m.byNormalizedURL[normalized] = s
	return true, s
}

// Dispatch invokes the new-directory callback for s if one was supplied at
// construction. File-type scans (single-URL fetches discovered by the
// Link Extractor) use the same callback as newly recursed directories;
// the callback's owner tells the two apart via s.Type.
func (m *Manager) Dispatch(s *scan.Scan) {
	if m.onNewDirectory != nil {
		m.onNewDirectory(s)
	}
}

func (m *Manager) matchesDenyList(normalizedURL string) (string, bool) {
	for _, pattern := range m.denyList {
		if pattern == normalizedURL {
			return pattern, true
		}
		if re, err := regexp.Compile(pattern); err == nil && re.MatchString(normalizedURL) {
			return pattern, true
		}
	}
	return "", false
}

// TryRecursion inspects a just-fetched response and, if recursion is
// enabled, decides whether it names a new directory worth scanning. It
// checks the recursion depth limit and the deny list before registering
// the child scan and invoking the new-directory callback.
func (m *Manager) TryRecursion(r *response.Response, parentDepth int) {
	if !m.recursionOn {
		return
	}

	childURL := directoryURLOf(r.URL)
	normalized := scan.Normalize(childURL)

	if m.maxDepth > 0 && scan.PathDepth(normalized) > m.maxDepth {
		return
	}

	if _, denied := m.matchesDenyList(normalized); denied {
		return
	}

	isNew, s := m.Register(childURL, scan.Directory, scan.Latest, config.OutputDefault)
	if !isNew {
		return
	}

	if m.onNewDirectory != nil {
		m.onNewDirectory(s)
	}
}

// directoryURLOf returns rawURL with a trailing slash, the form a
// directory-like URL takes once recognized.
func directoryURLOf(rawURL string) string {
	if len(rawURL) == 0 || rawURL[len(rawURL)-1] == '/' {
		return rawURL
	}
	return rawURL + "/"
}

// Cancel aborts the scans at the given registry indices, returning the
// sum of their NumRequests values at the time of cancellation.
// NumRequests is each scan's expected request count and is not reduced as
// requests are issued, so the sum includes requests already sent.
func (m *Manager) Cancel(indices []int) int64 {
	m.mu.RLock()
	targets := make([]*scan.Scan, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(m.scans) {
			continue
		}
		targets = append(targets, m.scans[idx])
	}
	m.mu.RUnlock()

	var remaining int64
	for _, s := range targets {
		remaining += s.NumRequests.Load()
		s.Abort()
	}
	return remaining
}

// CancelScan aborts a single scan directly and returns its NumRequests
// value (its expected request count, issued requests included), used by
// AutoBail.
func (m *Manager) CancelScan(s *scan.Scan) int64 {
	remaining := s.NumRequests.Load()
	s.Abort()
	return remaining
}

// Pause is the cooperative pause barrier. The first caller to arrive
// (the interactive barrier CAS from 0 to 1) is expected to run
// getUserInput and clear the paused flag when the user is done; every
// other concurrent caller spins at SleepDuration intervals until the flag
// clears.
func (m *Manager) Pause(getUserInput func()) {
	if !m.paused.Load() {
		return
	}

	if m.interactiveBarrier.CompareAndSwap(0, 1) {
		defer m.interactiveBarrier.Store(0)
		if getUserInput != nil {
			getUserInput()
		}
		return
	}

	for m.paused.Load() {
		time.Sleep(SleepDuration)
	}
}

// SetPaused sets or clears the global pause flag.
func (m *Manager) SetPaused(paused bool) {
	m.paused.Store(paused)
}

// Paused reports whether the global pause flag is currently set.
func (m *Manager) Paused() bool {
	return m.paused.Load()
}

// GetActiveScans returns every scan currently Running.
func (m *Manager) GetActiveScans() []*scan.Scan {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []*scan.Scan
	for _, s := range m.scans {
		if s.Status() == scan.Running {
			active = append(active, s)
		}
	}
	return active
}

// HasActiveScans reports whether any scan is currently Running.
func (m *Manager) HasActiveScans() bool {
	return len(m.GetActiveScans()) > 0
}

// GetScanByURL looks up a scan by its original (non-normalized) URL.
func (m *Manager) GetScanByURL(rawURL string) (*scan.Scan, bool) {
	normalized := scan.Normalize(rawURL)

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byNormalizedURL[normalized]
	return s, ok
}

// All returns a snapshot of every registered scan, in registration order.
func (m *Manager) All() []*scan.Scan {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*scan.Scan, len(m.scans))
	copy(out, m.scans)
	return out
}
