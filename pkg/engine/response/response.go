// Package response defines the Response record shared by the filter
// pipeline, the link extractor, and output reporting.
package response

import (
	"net/http"
	"path"
	"strings"
)

// Response is one fetched HTTP response, trimmed and counted for use by
// the filter pipeline and reporters.
type Response struct {
	// URL is the final URL after following redirects, if enabled.
	URL string

	// Method is the HTTP method used for the request that produced this
	// response.
	Method string

	// StatusCode is the HTTP status code.
	StatusCode int

	// ContentLength is the byte count of Body (post-truncation).
	ContentLength int64

	// LineCount and WordCount are computed from Body.
	LineCount int
	WordCount int

	// Headers is case-insensitively keyed, mirroring net/http.Header's
	// canonicalization. As a map it keeps no order: the order of header
	// names seen when iterating is not defined.
	Headers http.Header

	// Body holds the (possibly truncated) response body text.
	Body []byte

	// Truncated is set when Body was cut short of the true response size.
	Truncated bool

	// Extension is inferred from the URL path, without its leading dot,
	// or empty if the path has none.
	Extension string

	// Wildcard is carried through to reports and saved state. The engine
	// does not set it: a response a Wildcard filter matches is dropped by
	// the filter pipeline, so every reported response has Wildcard false.
	Wildcard bool
}

// New builds a Response from a fetched body, computing content length,
// line/word counts, and the inferred extension.
func New(url, method string, status int, headers http.Header, body []byte, truncated bool) *Response {
	r := &Response{
		URL:           url,
		Method:        method,
		StatusCode:    status,
		ContentLength: int64(len(body)),
		Headers:       headers,
		Body:          body,
		Truncated:     truncated,
		Extension:     extensionOf(url),
	}
	r.LineCount, r.WordCount = countLinesAndWords(body)
	return r
}

func extensionOf(rawURL string) string {
	p := rawURL
	if idx := strings.IndexAny(p, "?#"); idx >= 0 {
		p = p[:idx]
	}
	if idx := strings.Index(p, "://"); idx >= 0 {
		rest := p[idx+3:]
		p = ""
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			p = rest[slash:]
		}
	}
	ext := path.Ext(p)
	return strings.TrimPrefix(ext, ".")
}

func countLinesAndWords(body []byte) (lines, words int) {
	if len(body) == 0 {
		return 0, 0
	}

	lines = strings.Count(string(body), "\n") + 1
	words = len(strings.Fields(string(body)))
	return lines, words
}

// DedupKey returns the (URL, method) pair this response is deduplicated
// by, per the invariant that a response is reported at most once per
// distinct pair.
func (r *Response) DedupKey() (string, string) {
	return r.URL, r.Method
}
