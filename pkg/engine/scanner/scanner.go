// Package scanner implements the Scanner: it drives a single directory
// scan end to end, from acquiring a Dynamic Semaphore permit through
// wildcard heuristics and bounded-concurrency wordlist iteration.
package scanner

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pathscout/pathscout/pkg/config"
	"github.com/pathscout/pathscout/pkg/engine/bus"
	"github.com/pathscout/pathscout/pkg/engine/filters"
	"github.com/pathscout/pathscout/pkg/engine/policy"
	"github.com/pathscout/pathscout/pkg/engine/requester"
	"github.com/pathscout/pathscout/pkg/engine/scan"
	"github.com/pathscout/pathscout/pkg/engine/scanmanager"
	"github.com/pathscout/pathscout/pkg/engine/semaphore"
	"github.com/pathscout/pathscout/pkg/engine/wildcard"
	"github.com/pathscout/pathscout/pkg/internal/utils"
	"github.com/pathscout/pathscout/pkg/logging"
)

// Scanner drives directory scans, bounding how many run concurrently via
// a shared Dynamic Semaphore and dispatching each scan's wordlist with a
// bounded-concurrency errgroup.
type Scanner struct {
	cfg         *config.Config
	sem         *semaphore.Semaphore
	scanManager *scanmanager.Manager
	pipeline    *filters.Pipeline
	stats       *bus.Stats
	reporter    requester.Reporter
	log         logging.Logger
	wordlist    []string
	prober      wildcard.Prober
}

// New constructs a Scanner. sem bounds the number of directory scans that
// may run concurrently (the engine's "scan_limit").
func New(cfg *config.Config, sem *semaphore.Semaphore, sm *scanmanager.Manager, pipeline *filters.Pipeline, stats *bus.Stats, reporter requester.Reporter, log logging.Logger, wordlist []string, prober wildcard.Prober) *Scanner {
	return &Scanner{
		cfg:         cfg,
		sem:         sem,
		scanManager: sm,
		pipeline:    pipeline,
		stats:       stats,
		reporter:    reporter,
		log:         logging.Component(log, "scanner"),
		wordlist:    wordlist,
		prober:      prober,
	}
}

// Scan runs s's full lifecycle: acquire a permit, run wildcard heuristics,
// iterate the wordlist with bounded concurrency, then mark the scan
// Complete and release its permit. It is safe to run as its own
// goroutine; it returns only once the scan has finished or its context
// was cancelled.
func (sc *Scanner) Scan(ctx context.Context, target *scan.Scan) error {
	if target.Type == scan.File {
		return sc.fetchFile(ctx, target)
	}

	permit, err := sc.sem.Acquire()
	if err != nil {
		target.SetStatus(scan.Cancelled)
		return err
	}
	defer permit.Release()

	scanCtx, cancel := context.WithCancel(ctx)
	target.SetCancel(cancel)
	defer cancel()

	target.SetStatus(scan.Running)
	sc.stats.IncActiveScans()
	defer sc.stats.DecActiveScans()

	wildcardFilters, err := wildcard.Probe(scanCtx, target.URL, sc.methodOrDefault(), sc.cfg.DontFilter, sc.prober)
	if err != nil {
		sc.log.WithError(err).Warnf("wildcard probe failed for %s", utils.SanitizeForLog(target.URL))
	}
	for _, f := range wildcardFilters {
		sc.pipeline.Add(f)
	}

	req := requester.New(sc.cfg, sc.pipeline, sc.scanManager, sc.stats, sc.reporter, sc.log, target.ID, target.URL)

	pd := policy.NewData(sc.cfg.Policy, sc.cfg.Timeout)
	target.NumRequests.Store(int64(len(sc.wordlist)))

	if sc.cfg.RateLimit > 0 {
		req.SetRateLimiter(requester.NewRateLimiter(sc.cfg.RateLimit))
	}
	defer req.StopRateLimiter()

	if sc.cfg.ExtractLinks && target.Order == scan.Initial {
		req.FetchRobotsTxt(scanCtx)
	}

	if sc.cfg.Policy != config.PolicyDefault {
		go RunPolicyLoop(scanCtx, pd, sc.stats, sc.scanManager, target, req)
	}

	threads := sc.cfg.Threads
	if threads < 1 {
		threads = 1
	}

	group, groupCtx := errgroup.WithContext(scanCtx)
	group.SetLimit(threads)

	for _, word := range sc.wordlist {
		word := word
		group.Go(func() error {
			if sc.scanManager.Paused() {
				sc.scanManager.Pause(nil)
			}

			select {
			case <-groupCtx.Done():
				return nil
			default:
			}

			if err := req.Request(groupCtx, word, target.Depth); err != nil {
				sc.log.WithError(err).Debugf("word %q failed", word)
			}
			return nil
		})
	}

	_ = group.Wait()

	if target.Status() != scan.Cancelled {
		target.SetStatus(scan.Complete)
	}

	return nil
}

// fetchFile retrieves a single Link-Extractor-discovered URL directly,
// skipping the wordlist loop and wildcard probe that only apply to
// directory scans. It shares the directory requester's filter pipeline
// and reporter so a linked file is subject to the same filtering, dedup,
// and reporting rules as any wordlist hit. The deny list is not consulted
// for the file's URL.
func (sc *Scanner) fetchFile(ctx context.Context, target *scan.Scan) error {
	target.SetStatus(scan.Running)
	defer func() {
		if target.Status() != scan.Cancelled {
			target.SetStatus(scan.Complete)
		}
	}()

	req := requester.New(sc.cfg, sc.pipeline, sc.scanManager, sc.stats, sc.reporter, sc.log, target.ID, target.URL)
	target.NumRequests.Store(1)

	if err := req.FetchExact(ctx, target.URL); err != nil {
		sc.log.WithError(err).Debugf("file fetch failed for %s", utils.SanitizeForLog(target.URL))
		return err
	}
	return nil
}

func (sc *Scanner) methodOrDefault() string {
	if sc.cfg.Method == "" {
		return "GET"
	}
	return sc.cfg.Method
}

// RunPolicyLoop periodically samples stats for scanID and applies the
// configured Policy Engine's AutoTune/AutoBail decision. It runs until
// ctx is cancelled or the scan completes.
func RunPolicyLoop(ctx context.Context, pd *policy.Data, stats *bus.Stats, sm *scanmanager.Manager, target *scan.Scan, req *requester.Requester) {
	if pd.Policy() == config.PolicyDefault {
		return
	}

	start := time.Now()
	ticker := time.NewTicker(pd.WaitTime())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if target.Status() != scan.Running {
				return
			}
			if pd.CoolingDown() {
				continue
			}

			snap := stats.Snapshot(target.ID)
			trigger := policy.Evaluate(policy.Snapshot{
				TotalRequests: snap.TotalRequests,
				Timeouts:      snap.Timeouts,
				Connection:    snap.Connection,
				RequestErrors: snap.RequestErrors,
				Status403:     snap.Status403,
				Status429:     snap.Status429,
				Other:         snap.Other,
			})

			if trigger == policy.NoTrigger {
				continue
			}

			switch pd.Policy() {
			case config.PolicyAutoBail:
				sm.CancelScan(target)
				return
			case config.PolicyAutoTune:
				applyAutoTune(pd, snap, time.Since(start), req)
				pd.BeginCooldown()
				go func() {
					time.Sleep(pd.WaitTime())
					pd.EndCooldown()
				}()
			}
		}
	}
}

func applyAutoTune(pd *policy.Data, snap bus.ScanCounters, elapsed time.Duration, req *requester.Requester) {
	totalErrors := snap.Timeouts + snap.Connection + snap.RequestErrors + snap.Other

	if !pd.HeapBuilt() {
		rate := snap.TotalRequests
		if secs := elapsed.Seconds(); secs > 1 {
			rate = int(float64(snap.TotalRequests) / secs)
		}
		if rate < 1 {
			rate = 1
		}
		pd.SeedFromMeasuredRate(rate)
	} else if pd.RecordInterval(totalErrors) {
		pd.AdjustDown()
	} else {
		pd.AdjustUp(pd.UpStreak())
	}

	if req == nil {
		return
	}

	if pd.RemoveLimit() {
		req.SetRateLimiter(nil)
		return
	}

	req.SetRateLimiter(requester.NewRateLimiter(pd.Limit()))
}
