package bus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pathscout/pathscout/pkg/metrics"
)

func TestSyncFlushesPriorCommands(t *testing.T) {
	s := NewStats()
	go s.Run()
	defer s.Handler().Send(Exit{})

	for i := 0; i < 50; i++ {
		s.Handler().Send(AddRequest{ScanID: "scan-1"})
	}
	s.Handler().Sync()

	got := s.Snapshot("scan-1")
	if got.TotalRequests != 50 {
		t.Fatalf("TotalRequests = %d, want 50 after Sync", got.TotalRequests)
	}
}

func TestAddErrorCountsByKind(t *testing.T) {
	s := NewStats()
	go s.Run()
	defer s.Handler().Send(Exit{})

	s.Handler().Send(AddError{ScanID: "scan-1", Kind: ErrorTimeout})
	s.Handler().Send(AddError{ScanID: "scan-1", Kind: ErrorTimeout})
	s.Handler().Send(AddError{ScanID: "scan-1", Kind: ErrorConnection})
	s.Handler().Sync()

	got := s.Snapshot("scan-1")
	if got.Timeouts != 2 {
		t.Fatalf("Timeouts = %d, want 2", got.Timeouts)
	}
	if got.Connection != 1 {
		t.Fatalf("Connection = %d, want 1", got.Connection)
	}
}

func TestAddStatusTracks403And429(t *testing.T) {
	s := NewStats()
	go s.Run()
	defer s.Handler().Send(Exit{})

	s.Handler().Send(AddStatus{ScanID: "scan-1", Code: 403})
	s.Handler().Send(AddStatus{ScanID: "scan-1", Code: 429})
	s.Handler().Send(AddStatus{ScanID: "scan-1", Code: 429})
	s.Handler().Sync()

	got := s.Snapshot("scan-1")
	if got.Status403 != 1 || got.Status429 != 2 {
		t.Fatalf("got %+v, want Status403=1 Status429=2", got)
	}
}

func TestExitStopsRunLoop(t *testing.T) {
	s := NewStats()
	go s.Run()

	s.Handler().Send(Exit{})
	<-s.Handler().Done()
}

func TestAttachMetricsUpdatesRegistryOnCounterCommands(t *testing.T) {
	s := NewStats()
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	s.AttachMetrics(reg)

	go s.Run()
	defer s.Handler().Send(Exit{})

	s.IncActiveScans()
	s.Handler().Send(AddRequest{ScanID: "scan-1"})
	s.Handler().Send(AddRequest{ScanID: "scan-1"})
	s.Handler().Send(AddError{ScanID: "scan-1", Kind: ErrorTimeout})
	s.Handler().Sync()
	s.DecActiveScans()

	if got := testutil.ToFloat64(reg.RequestsTotal); got != 2 {
		t.Fatalf("RequestsTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(reg.ScansActive); got != 0 {
		t.Fatalf("ScansActive = %v, want 0 after inc+dec", got)
	}
}

func TestSnapshotOfUnknownScanIsZero(t *testing.T) {
	s := NewStats()
	go s.Run()
	defer s.Handler().Send(Exit{})

	got := s.Snapshot("never-seen")
	if got.TotalRequests != 0 {
		t.Fatalf("expected zero-value counters, got %+v", got)
	}
}
