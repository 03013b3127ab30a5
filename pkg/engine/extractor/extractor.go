// Package extractor implements the Link Extractor: regex-based scanning of
// response bodies and robots.txt documents for candidate paths to feed
// back into the Scan Manager. It deliberately does not parse HTML/DOM;
// the engine this was built for treats bodies as raw text and scans them
// for URL-shaped substrings, which is both faster and resilient to
// malformed markup.
package extractor

import (
	"net/url"
	"regexp"
	"strings"
)

// absoluteURLPattern matches scheme://authority/path-shaped substrings.
var absoluteURLPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"'<>]+`)

// quotedPathPattern matches single- or double-quoted strings containing a
// slash anywhere, e.g. href="/assets/app.js"; FromResponseBody keeps only
// the matches that start with a leading slash.
var quotedPathPattern = regexp.MustCompile(`["']([^"'\s]*?/[^"'\s]*?)["']`)

// robotsLinePattern matches `Allow:` / `Disallow:` directive lines.
var robotsLinePattern = regexp.MustCompile(`(?i)^\s*(allow|disallow)\s*:\s*(\S+)`)

// Candidate is one link discovered by an extraction pass, already
// resolved to an absolute URL against the scan's own authority.
type Candidate struct {
	URL string
}

// FromResponseBody extracts candidate links from a response body: absolute
// URLs matching the current scan's authority, and quoted paths starting
// with "/". Absolute URLs whose authority differs from baseURL's are
// discarded, since they point at a different target entirely.
func FromResponseBody(body []byte, baseURL string) []Candidate {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []Candidate

	text := string(body)

	for _, m := range absoluteURLPattern.FindAllString(text, -1) {
		u, err := url.Parse(strings.TrimRight(m, `.,;:)]}>`))
		if err != nil {
			continue
		}
		if !strings.EqualFold(u.Host, base.Host) {
			continue
		}
		resolved := u.String()
		if !seen[resolved] {
			seen[resolved] = true
			out = append(out, Candidate{URL: resolved})
		}
	}

	for _, m := range quotedPathPattern.FindAllStringSubmatch(text, -1) {
		p := m[1]
		if !strings.HasPrefix(p, "/") {
			continue
		}
		resolved := base.ResolveReference(&url.URL{Path: p}).String()
		if !seen[resolved] {
			seen[resolved] = true
			out = append(out, Candidate{URL: resolved})
		}
	}

	return out
}

// FromRobotsTxt extracts Allow/Disallow paths from a robots.txt body,
// resolved against baseURL.
func FromRobotsTxt(body []byte, baseURL string) []Candidate {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var out []Candidate
	seen := make(map[string]bool)

	lines := strings.Split(string(body), "\n")
	for _, line := range lines {
		m := robotsLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		path := m[2]
		if path == "" {
			continue
		}
		resolved := base.ResolveReference(&url.URL{Path: path}).String()
		if !seen[resolved] {
			seen[resolved] = true
			out = append(out, Candidate{URL: resolved})
		}
	}

	return out
}

// IsDirectoryLike reports whether a fetched candidate looks like a
// directory rather than a single file, based on the response's status
// code and whether its final URL ends in a trailing slash: a 2xx on a
// trailing-slash URL, or any redirect, is treated as a directory.
func IsDirectoryLike(finalURL string, statusCode int) bool {
	if strings.HasSuffix(finalURL, "/") {
		return statusCode >= 200 && statusCode < 400
	}
	return statusCode >= 300 && statusCode < 400
}
