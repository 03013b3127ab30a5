// Package filters implements the response filter pipeline: an ordered,
// append-only set of predicates evaluated against every fetched Response.
// A response is filtered out (dropped from reporting) if any filter in the
// pipeline matches it.
package filters

import (
	"math"
	"regexp"
	"sync"

	"github.com/pathscout/pathscout/pkg/engine/response"
	"github.com/pathscout/pathscout/pkg/engine/signature"
)

// sentinelZeroLength marks a Wildcard filter's Size field as "match only
// zero-length responses", used when both wildcard probes came back empty.
// It must stay distinct from noDynamicOffset: both fields can be compared
// against it on the same filter, and a collision makes the zero-length
// branch unreachable.
const sentinelZeroLength = math.MinInt64

// noDynamicOffset marks a Wildcard filter's Size or Dynamic field as unset.
const noDynamicOffset = -1

// Filter is the tagged-union predicate evaluated against a Response. Every
// variant constructor below returns a Filter with its Kind already set;
// callers should not construct a Filter literal directly.
type Filter struct {
	Kind Kind

	// StatusCode / Size / Lines / Words payloads.
	IntValue int64

	// Regex payload: the compiled pattern plus its raw source (used for
	// equality, since regexp.Regexp has no useful Equal method).
	RegexSource    string
	CompiledRegex  *regexp.Regexp

	// Similarity payload.
	SimilaritySig       signature.Signature
	SimilarityThreshold int
	SimilarityURL       string

	// Wildcard payload.
	WildcardSize    int64
	WildcardDynamic int64
	WildcardMethod  string
	WildcardDisabled bool
}

// Kind identifies a Filter's variant.
type Kind int

const (
	StatusCode Kind = iota
	Size
	Lines
	Words
	Regex
	Similarity
	Wildcard
)

// NewStatusCode returns a filter that drops responses with exactly the
// given status code.
func NewStatusCode(code int) Filter {
	return Filter{Kind: StatusCode, IntValue: int64(code)}
}

// NewSize returns a filter that drops responses with exactly the given
// content length.
func NewSize(bytes int64) Filter {
	return Filter{Kind: Size, IntValue: bytes}
}

// NewLines returns a filter that drops responses with exactly n lines.
func NewLines(n int) Filter {
	return Filter{Kind: Lines, IntValue: int64(n)}
}

// NewWords returns a filter that drops responses with exactly n words.
func NewWords(n int) Filter {
	return Filter{Kind: Words, IntValue: int64(n)}
}

// NewRegex compiles pattern and returns a filter that drops responses
// whose body, header names, or header values match it.
func NewRegex(pattern string) (Filter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Filter{}, err
	}
	return Filter{Kind: Regex, RegexSource: pattern, CompiledRegex: re}, nil
}

// NewSimilarity returns a filter that drops responses whose body is at
// least thresholdPercent similar to the signature computed from a
// previously-fetched reference response.
func NewSimilarity(sig signature.Signature, thresholdPercent int, originalURL string) Filter {
	return Filter{
		Kind:                Similarity,
		SimilaritySig:       sig,
		SimilarityThreshold: thresholdPercent,
		SimilarityURL:       originalURL,
	}
}

// NewWildcardDisabled returns a Wildcard filter that always evaluates to
// false, for use when --dont-filter was configured; it is still
// constructed (not omitted) so that its presence in the pipeline mirrors
// a normal run.
func NewWildcardDisabled(method string) Filter {
	return Filter{
		Kind:             Wildcard,
		WildcardSize:     sentinelZeroLength,
		WildcardDynamic:  noDynamicOffset,
		WildcardMethod:   method,
		WildcardDisabled: true,
	}
}

// NewWildcardStatic returns a Wildcard filter matching responses whose
// content length equals size for the given method.
func NewWildcardStatic(size int64, method string) Filter {
	return Filter{Kind: Wildcard, WildcardSize: size, WildcardDynamic: noDynamicOffset, WildcardMethod: method}
}

// NewWildcardZeroLength returns a Wildcard filter matching any
// zero-length response for the given method.
func NewWildcardZeroLength(method string) Filter {
	return Filter{Kind: Wildcard, WildcardSize: sentinelZeroLength, WildcardDynamic: noDynamicOffset, WildcardMethod: method}
}

// NewWildcardDynamic returns a Wildcard filter matching responses whose
// content length equals the requested path's length plus a fixed offset.
func NewWildcardDynamic(offset int64, method string) Filter {
	return Filter{Kind: Wildcard, WildcardSize: noDynamicOffset, WildcardDynamic: offset, WildcardMethod: method}
}

// ShouldFilter reports whether f matches r and therefore r should be
// dropped from reporting. It is pure and side-effect-free.
func (f Filter) ShouldFilter(r *response.Response) bool {
	switch f.Kind {
	case StatusCode:
		return int64(r.StatusCode) == f.IntValue
	case Size:
		return r.ContentLength == f.IntValue
	case Lines:
		return int64(r.LineCount) == f.IntValue
	case Words:
		return int64(r.WordCount) == f.IntValue
	case Regex:
		if f.CompiledRegex.Match(r.Body) {
			return true
		}
		for name, values := range r.Headers {
			if f.CompiledRegex.MatchString(name) {
				return true
			}
			for _, v := range values {
				if f.CompiledRegex.MatchString(v) {
					return true
				}
			}
		}
		return false
	case Similarity:
		return f.similarityMatches(r)
	case Wildcard:
		return f.wildcardMatches(r)
	default:
		return false
	}
}

func (f Filter) similarityMatches(r *response.Response) bool {
	other := signature.New(r.Body)

	switch f.SimilaritySig.Kind {
	case signature.Fuzzy:
		if other.Kind != signature.Fuzzy {
			other = signature.Signature{Kind: signature.Fuzzy, Hash: signature.FuzzyHash(r.Body)}
		}
		score := signature.CompareFuzzy(f.SimilaritySig.Hash, other.Hash)
		return score >= f.SimilarityThreshold
	case signature.MinHash:
		if other.Kind != signature.MinHash {
			other = signature.Signature{Kind: signature.MinHash, Vector: signature.MinHashSketch(r.Body)}
		}
		score := signature.JaccardSimilarity(f.SimilaritySig.Vector, other.Vector)
		return int(score*100) >= f.SimilarityThreshold
	default:
		return false
	}
}

func (f Filter) wildcardMatches(r *response.Response) bool {
	if f.WildcardDisabled {
		return false
	}

	if r.Method != f.WildcardMethod {
		return false
	}

	if f.WildcardSize != noDynamicOffset {
		if f.WildcardSize == sentinelZeroLength {
			return r.ContentLength == 0
		}
		return r.ContentLength == f.WildcardSize
	}

	if f.WildcardDynamic != noDynamicOffset {
		return PathLength(r.URL)+f.WildcardDynamic == r.ContentLength
	}

	return false
}

// PathLength returns the byte length of rawURL's path component (including
// its leading slash, excluding scheme and authority), the basis both the
// dynamic Wildcard filter and the probe that derives it measure against.
func PathLength(rawURL string) int64 {
	u := rawURL
	if idx := indexAfterAuthority(u); idx >= 0 {
		u = u[idx:]
	}
	for i := 0; i < len(u); i++ {
		if u[i] == '?' || u[i] == '#' {
			u = u[:i]
			break
		}
	}
	return int64(len(u))
}

// indexAfterAuthority finds where the path component starts in a URL of
// the form scheme://authority/path, returning -1 if not found.
func indexAfterAuthority(u string) int {
	schemeEnd := -1
	for i := 0; i+2 < len(u); i++ {
		if u[i] == ':' && u[i+1] == '/' && u[i+2] == '/' {
			schemeEnd = i + 3
			break
		}
	}
	if schemeEnd == -1 {
		return -1
	}
	for i := schemeEnd; i < len(u); i++ {
		if u[i] == '/' {
			return i
		}
	}
	return len(u)
}

// Equal reports whether two filters are the same variant with the same
// payload. Regex filters compare by raw source only; Similarity filters
// compare every field.
func (f Filter) Equal(other Filter) bool {
	if f.Kind != other.Kind {
		return false
	}

	switch f.Kind {
	case StatusCode, Size, Lines, Words:
		return f.IntValue == other.IntValue
	case Regex:
		return f.RegexSource == other.RegexSource
	case Similarity:
		return f.SimilarityThreshold == other.SimilarityThreshold &&
			f.SimilarityURL == other.SimilarityURL &&
			f.SimilaritySig.Kind == other.SimilaritySig.Kind &&
			f.SimilaritySig.Hash == other.SimilaritySig.Hash &&
			equalUint16(f.SimilaritySig.Vector, other.SimilaritySig.Vector)
	case Wildcard:
		return f.WildcardSize == other.WildcardSize &&
			f.WildcardDynamic == other.WildcardDynamic &&
			f.WildcardMethod == other.WildcardMethod &&
			f.WildcardDisabled == other.WildcardDisabled
	default:
		return false
	}
}

func equalUint16(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Pipeline is the ordered, append-only vector of filters protected by a
// read/write lock: evaluation is reader-heavy, mutation is rare.
type Pipeline struct {
	mu      sync.RWMutex
	filters []Filter
}

// New returns an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Add appends f to the pipeline.
func (p *Pipeline) Add(f Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters = append(p.filters, f)
}

// ShouldFilter reports whether any filter in the pipeline matches r.
func (p *Pipeline) ShouldFilter(r *response.Response) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, f := range p.filters {
		if f.ShouldFilter(r) {
			return true
		}
	}
	return false
}

// All returns a snapshot copy of the pipeline's filters, in order.
func (p *Pipeline) All() []Filter {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Filter, len(p.filters))
	copy(out, p.filters)
	return out
}

// Len reports the number of filters currently in the pipeline.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.filters)
}

// Remove deletes the filters at the given 1-based indices. Index 0 and
// any index outside [1, Len()] are skipped silently. The remaining
// filters preserve their relative order.
func (p *Pipeline) Remove(indices []int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	toRemove := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 1 || idx > len(p.filters) {
			continue
		}
		toRemove[idx-1] = true
	}
	if len(toRemove) == 0 {
		return
	}

	kept := p.filters[:0:0]
	for i, f := range p.filters {
		if !toRemove[i] {
			kept = append(kept, f)
		}
	}
	p.filters = kept
}
