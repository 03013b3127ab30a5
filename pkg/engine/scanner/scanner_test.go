package scanner

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pathscout/pathscout/pkg/config"
	"github.com/pathscout/pathscout/pkg/engine/bus"
	"github.com/pathscout/pathscout/pkg/engine/filters"
	"github.com/pathscout/pathscout/pkg/engine/policy"
	"github.com/pathscout/pathscout/pkg/engine/response"
	"github.com/pathscout/pathscout/pkg/engine/scan"
	"github.com/pathscout/pathscout/pkg/engine/scanmanager"
	"github.com/pathscout/pathscout/pkg/engine/semaphore"
	"github.com/pathscout/pathscout/pkg/logging"
)

type collectingReporter struct {
	reports []*response.Response
}

func (c *collectingReporter) Report(r *response.Response) {
	c.reports = append(c.reports, r)
}

func TestScannerRunsWordlistAndCompletes(t *testing.T) {
	srv := httptest.NewServer(nil)
	defer srv.Close()

	cfg := config.Default()
	cfg.Threads = 2
	cfg.Timeout = 2
	cfg.DontFilter = true

	sem := semaphore.New(1)
	sm := scanmanager.New(0, false, nil, nil)
	pipeline := filters.New()
	statsH := bus.NewStats()
	go statsH.Run()
	defer statsH.Handler().Send(bus.Exit{})

	reporter := &collectingReporter{}

	sc := New(cfg, sem, sm, pipeline, statsH, reporter, logging.New(logrus.ErrorLevel), []string{"a", "b", "c"}, fakeProber)

	target := scan.New(srv.URL, scan.Directory, scan.Initial, config.OutputDefault)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sc.Scan(ctx, target); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if target.Status() != scan.Complete {
		t.Fatalf("Status = %v, want Complete", target.Status())
	}
	if sem.AvailablePermits() != 1 {
		t.Fatalf("AvailablePermits = %d, want 1 (permit released)", sem.AvailablePermits())
	}
}

func TestMethodOrDefault(t *testing.T) {
	sc := &Scanner{cfg: config.Default()}
	if got := sc.methodOrDefault(); got != "GET" {
		t.Fatalf("methodOrDefault = %q, want GET", got)
	}

	sc.cfg.Method = "POST"
	if got := sc.methodOrDefault(); got != "POST" {
		t.Fatalf("methodOrDefault = %q, want POST", got)
	}
}

func fakeProber(ctx context.Context, url string) (int, int64, error) {
	return 404, 0, nil
}

// TestRunPolicyLoopAutoBailsOnStatus403Flood is the literal S3 scenario:
// once 45 or more responses have come back 403 and they make up 90% or
// more of all requests, AutoBail cancels the scan outright.
func TestRunPolicyLoopAutoBailsOnStatus403Flood(t *testing.T) {
	sm := scanmanager.New(0, false, nil, nil)
	statsH := bus.NewStats()
	go statsH.Run()
	defer statsH.Handler().Send(bus.Exit{})

	target := scan.New("http://example.com/", scan.Directory, scan.Initial, config.OutputDefault)
	target.SetStatus(scan.Running)

	for i := 0; i < 50; i++ {
		statsH.Handler().Send(bus.AddRequest{ScanID: target.ID})
	}
	for i := 0; i < 46; i++ {
		statsH.Handler().Send(bus.AddStatus{ScanID: target.ID, Code: 403})
	}
	statsH.Handler().Sync()

	pd := policy.NewData(config.PolicyAutoBail, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		RunPolicyLoop(ctx, pd, statsH, sm, target, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("RunPolicyLoop did not return after AutoBail should have triggered")
	}

	if target.Status() != scan.Cancelled {
		t.Fatalf("Status = %v, want Cancelled", target.Status())
	}
}
