package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pathscout/pathscout/pkg/config"
	"github.com/pathscout/pathscout/pkg/engine/scan"
	"github.com/pathscout/pathscout/pkg/engine/scanmanager"
)

// TestResumeSelectsIncompleteScansOnly is the literal S4 scenario: scan A
// is Complete, scan B is NotStarted; resume should treat only B as a
// fresh initial target, while A's prior responses stay in the dedup set.
func TestResumeSelectsIncompleteScansOnly(t *testing.T) {
	doc := &Document{
		Scans: []ScanRecord{
			{ID: "a", URL: "http://example.com/A", Status: "Complete"},
			{ID: "b", URL: "http://example.com/B", Status: "NotStarted"},
		},
		Responses: []ResponseRecord{
			{URL: "http://example.com/A/js/css", Status: 200},
		},
	}

	plan := Resume(doc)

	if len(plan.FreshTargets) != 1 || plan.FreshTargets[0] != "http://example.com/B" {
		t.Fatalf("FreshTargets = %v, want only B", plan.FreshTargets)
	}
	if len(plan.CompletedURLs) != 1 || plan.CompletedURLs[0] != "http://example.com/A" {
		t.Fatalf("CompletedURLs = %v, want only A", plan.CompletedURLs)
	}
	if len(plan.DedupResponses) != 1 || plan.DedupResponses[0].URL != "http://example.com/A/js/css" {
		t.Fatalf("DedupResponses = %v, want A's prior response preserved", plan.DedupResponses)
	}
}

// TestSaveAndLoadRoundTrip is invariant 6: serialize-then-deserialize
// yields a state semantically equal to the original.
func TestSaveAndLoadRoundTrip(t *testing.T) {
	sm := scanmanager.New(0, false, nil, nil)
	sm.Register("http://example.com/", scan.Directory, scan.Initial, config.OutputDefault)

	doc := BuildDocument(sm, config.Default(), nil, Statistics{TotalRequests: 5})

	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, Save(path, doc))

	loaded, err := Load(path)
	require.NoError(t, err)

	require.Len(t, loaded.Scans, 1)
	require.Equal(t, doc.Scans[0].URL, loaded.Scans[0].URL)
	require.Equal(t, doc.Scans[0].Status, loaded.Scans[0].Status)
	require.Equal(t, 5, loaded.Statistics.TotalRequests)
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := os.WriteFile(path, []byte(`{"scans":[],"some_future_key":{"a":1}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Scans) != 0 {
		t.Fatalf("loaded %d scans, want 0", len(doc.Scans))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/state.json"); err == nil {
		t.Fatal("expected error loading nonexistent file")
	}
}
