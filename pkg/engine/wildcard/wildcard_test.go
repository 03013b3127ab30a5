package wildcard

import (
	"context"
	"testing"

	"github.com/pathscout/pathscout/pkg/engine/filters"
	"github.com/pathscout/pathscout/pkg/engine/response"
)

func TestProbeDontFilterReturnsDisabledFilter(t *testing.T) {
	got, err := Probe(context.Background(), "http://example.com", "GET", true, nil)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d filters, want 1", len(got))
	}

	r := &response.Response{Method: "GET", ContentLength: 0}
	if got[0].ShouldFilter(r) {
		t.Fatal("disabled wildcard filter should never match")
	}
}

func TestProbeSameSizeProducesStaticFilter(t *testing.T) {
	prober := func(ctx context.Context, url string) (int, int64, error) {
		return 404, 1337, nil
	}

	got, err := Probe(context.Background(), "http://example.com", "GET", false, prober)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d filters, want 1", len(got))
	}

	r := &response.Response{Method: "GET", ContentLength: 1337}
	if !got[0].ShouldFilter(r) {
		t.Fatal("expected static wildcard filter to match same-size response")
	}
}

func TestProbeZeroLengthProducesZeroLengthFilter(t *testing.T) {
	prober := func(ctx context.Context, url string) (int, int64, error) {
		return 200, 0, nil
	}

	got, err := Probe(context.Background(), "http://example.com", "GET", false, prober)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d filters, want 1", len(got))
	}

	r := &response.Response{Method: "GET", ContentLength: 0}
	if !got[0].ShouldFilter(r) {
		t.Fatal("expected zero-length wildcard filter to match zero-length response")
	}
}

func TestProbeAllFailuresProducesNoFilters(t *testing.T) {
	prober := func(ctx context.Context, url string) (int, int64, error) {
		return 0, 0, context.DeadlineExceeded
	}

	got, err := Probe(context.Background(), "http://example.com", "GET", false, prober)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d filters, want 0", len(got))
	}
}

// TestProbeDynamicDeltaMatchesFullURLPathLength confirms the delta derived
// from a nested directory's probes reconciles with filters.PathLength,
// the same full-URL-path basis the resulting Wildcard filter matches
// against (not the bare probe segment, which for a nested baseURL would
// disagree with the filter's own measurement).
func TestProbeDynamicDeltaMatchesFullURLPathLength(t *testing.T) {
	const offset = 100
	prober := func(ctx context.Context, url string) (int, int64, error) {
		return 404, filters.PathLength(url) + offset, nil
	}

	got, err := Probe(context.Background(), "http://example.com/deeply/nested", "GET", false, prober)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d filters, want 1", len(got))
	}

	respURL := "http://example.com/deeply/nested/some-other-path"
	r := &response.Response{
		Method:        "GET",
		URL:           respURL,
		ContentLength: filters.PathLength(respURL) + offset,
	}
	if !got[0].ShouldFilter(r) {
		t.Fatal("expected dynamic wildcard filter derived from nested-directory probes to match a same-pattern response")
	}
}

func TestConnectivityReportsFailure(t *testing.T) {
	prober := func(ctx context.Context, url string) (int, int64, error) {
		return 0, 0, context.DeadlineExceeded
	}
	if Connectivity(context.Background(), "http://example.com", prober) {
		t.Fatal("expected Connectivity to report failure")
	}
}

func TestConnectivityReportsSuccess(t *testing.T) {
	prober := func(ctx context.Context, url string) (int, int64, error) {
		return 200, 10, nil
	}
	if !Connectivity(context.Background(), "http://example.com", prober) {
		t.Fatal("expected Connectivity to report success")
	}
}
