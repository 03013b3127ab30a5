// Package state implements serialization and resume of full scan state to
// a single JSON document.
package state

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/pathscout/pathscout/pkg/config"
	"github.com/pathscout/pathscout/pkg/engine/response"
	"github.com/pathscout/pathscout/pkg/engine/scan"
	"github.com/pathscout/pathscout/pkg/engine/scanmanager"
)

// ScanRecord is the serialized form of a scan.Scan.
type ScanRecord struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	NormalizedURL string `json:"normalized_url"`
	ScanType      string `json:"scan_type"`
	Status        string `json:"status"`
	NumRequests   int64  `json:"num_requests"`
}

// ResponseRecord is the serialized form of a response.Response.
type ResponseRecord struct {
	URL           string      `json:"url"`
	Method        string      `json:"method"`
	Path          string      `json:"path"`
	Wildcard      bool        `json:"wildcard"`
	Status        int         `json:"status"`
	ContentLength int64       `json:"content_length"`
	LineCount     int         `json:"line_count"`
	WordCount     int         `json:"word_count"`
	Headers       http.Header `json:"headers"`
	Extension     string      `json:"extension"`
}

// Statistics is the serialized request/error tallies across the whole
// run.
type Statistics struct {
	TotalRequests int            `json:"total_requests"`
	ErrorsByKind  map[string]int `json:"errors_by_kind"`
}

// Document is the top-level persisted JSON document.
type Document struct {
	Scans      []ScanRecord     `json:"scans"`
	Config     *config.Config   `json:"config"`
	Responses  []ResponseRecord `json:"responses"`
	Statistics Statistics       `json:"statistics"`
}

// BuildDocument snapshots the current scan registry, configuration, and
// reported responses into a Document ready for serialization.
func BuildDocument(sm *scanmanager.Manager, cfg *config.Config, responses []*response.Response, stats Statistics) *Document {
	doc := &Document{
		Config:     cfg,
		Statistics: stats,
	}

	for _, s := range sm.All() {
		doc.Scans = append(doc.Scans, ScanRecord{
			ID:            s.ID,
			URL:           s.URL,
			NormalizedURL: s.NormalizedURL,
			ScanType:      scanTypeName(s.Type),
			Status:        s.Status().String(),
			NumRequests:   s.NumRequests.Load(),
		})
	}

	for _, r := range responses {
		doc.Responses = append(doc.Responses, ResponseRecord{
			URL:           r.URL,
			Method:        r.Method,
			Path:          r.URL,
			Wildcard:      r.Wildcard,
			Status:        r.StatusCode,
			ContentLength: r.ContentLength,
			LineCount:     r.LineCount,
			WordCount:     r.WordCount,
			Headers:       r.Headers,
			Extension:     r.Extension,
		})
	}

	return doc
}

func scanTypeName(t scan.Type) string {
	if t == scan.Directory {
		return "Directory"
	}
	return "File"
}

// Save writes doc as pretty-printed JSON to path.
func Save(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshaling document: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("state: writing %s: %w", path, err)
	}

	return nil
}

// Load reads and parses a persisted Document from path. Unknown JSON keys
// are ignored automatically by encoding/json, keeping this version-
// tolerant across releases.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("state: reading %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("state: parsing %s: %w", path, err)
	}

	return &doc, nil
}

// ResumePlan is the outcome of applying resume semantics to a loaded
// Document: which scans are already Complete (and should seed the dedup
// set with their prior responses) versus which URLs should be treated as
// fresh initial targets.
type ResumePlan struct {
	// CompletedURLs are scans whose prior responses should be loaded into
	// the dedup set and progress display, but not re-scanned.
	CompletedURLs []string

	// FreshTargets are every non-Complete scan's URL, to be registered
	// again as if newly supplied on the command line.
	FreshTargets []string

	// DedupResponses are the previously-recorded responses belonging to
	// completed scans, to seed the in-memory dedup set.
	DedupResponses []ResponseRecord
}

// Resume applies resume semantics to a loaded Document: scans marked
// Complete keep their responses in the dedup set but are not rescanned;
// every other scan's URL becomes a fresh initial target, with its
// in-memory status reset to NotStarted.
func Resume(doc *Document) ResumePlan {
	plan := ResumePlan{}

	completed := make(map[string]bool)
	for _, s := range doc.Scans {
		if s.Status == "Complete" {
			completed[s.URL] = true
			plan.CompletedURLs = append(plan.CompletedURLs, s.URL)
		} else {
			plan.FreshTargets = append(plan.FreshTargets, s.URL)
		}
	}

	for _, r := range doc.Responses {
		if completed[r.URL] {
			plan.DedupResponses = append(plan.DedupResponses, r)
			continue
		}
		// a response whose exact scan URL isn't found but whose path is
		// nested under a completed scan's URL still belongs to the
		// completed subtree's dedup set.
		for url := range completed {
			if len(r.URL) > len(url) && r.URL[:len(url)] == url {
				plan.DedupResponses = append(plan.DedupResponses, r)
				break
			}
		}
	}

	return plan
}
