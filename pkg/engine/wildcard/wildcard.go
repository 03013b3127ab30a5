// Package wildcard implements the connectivity probe and wildcard/soft-404
// heuristic run once per new directory target, before its wordlist scan
// begins.
package wildcard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pathscout/pathscout/pkg/engine/filters"
)

// probeCount is the number of randomly generated nonexistent paths probed
// per new directory. The source this engine was derived from leaves the
// exact count unspecified; three gives enough samples to distinguish a
// consistent dynamic-size pattern from coincidence without tripling probe
// traffic the way four would.
const probeCount = 3

// Prober fetches a single URL and reports its status code and body
// length, the minimal surface the heuristic needs from the Requester's
// HTTP client.
type Prober func(ctx context.Context, url string) (statusCode int, contentLength int64, err error)

// Probe issues probeCount requests for randomly generated, near-certainly
// nonexistent paths under baseURL and derives zero or more Wildcard
// filters from the responses. method is recorded on every derived filter
// so it only matches same-method responses.
//
// If dontFilter is set, a single disabled Wildcard filter is returned
// instead of probing at all: the filter is still constructed (matching
// the always-present Wildcard entry in the pipeline) but short-circuits
// to false.
func Probe(ctx context.Context, baseURL, method string, dontFilter bool, probe Prober) ([]filters.Filter, error) {
	if dontFilter {
		return []filters.Filter{filters.NewWildcardDisabled(method)}, nil
	}

	type sample struct {
		url           string
		contentLength int64
	}

	samples := make([]sample, 0, probeCount)
	for i := 0; i < probeCount; i++ {
		p := randomPath()
		url := strings.TrimSuffix(baseURL, "/") + "/" + p

		_, length, err := probe(ctx, url)
		if err != nil {
			continue
		}
		samples = append(samples, sample{url: url, contentLength: length})
	}

	if len(samples) == 0 {
		return nil, nil
	}

	var out []filters.Filter

	allZero := true
	allSameSize := true
	first := samples[0].contentLength
	for _, s := range samples {
		if s.contentLength != 0 {
			allZero = false
		}
		if s.contentLength != first {
			allSameSize = false
		}
	}

	switch {
	case allZero:
		out = append(out, filters.NewWildcardZeroLength(method))
	case allSameSize:
		out = append(out, filters.NewWildcardStatic(first, method))
	default:
		if delta, ok := consistentPathLengthDelta(samples); ok {
			out = append(out, filters.NewWildcardDynamic(delta, method))
		}
	}

	return out, nil
}

// consistentPathLengthDelta reports whether every sample's content length
// minus its URL path length (per filters.PathLength, the same basis the
// dynamic Wildcard filter matches against) is the same constant,
// indicating the server reflects the requested path length back into its
// response body (a common custom-404 pattern).
func consistentPathLengthDelta(samples []struct {
	url           string
	contentLength int64
}) (int64, bool) {
	if len(samples) == 0 {
		return 0, false
	}

	delta := samples[0].contentLength - filters.PathLength(samples[0].url)
	for _, s := range samples[1:] {
		if s.contentLength-filters.PathLength(s.url) != delta {
			return 0, false
		}
	}
	return delta, true
}

// randomPath generates an unpredictable path segment unlikely to exist on
// any real server.
func randomPath() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("pathscout-wildcard-probe-%x", b)
	}
	return hex.EncodeToString(b[:])
}

// Connectivity issues a single request against target and reports whether
// the target should be treated as reachable. A failed connectivity probe
// means the engine should classify the target as dead and omit it from
// scanning.
func Connectivity(ctx context.Context, target string, probe Prober) bool {
	_, _, err := probe(ctx, target)
	return err == nil
}
