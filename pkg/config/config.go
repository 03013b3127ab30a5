// Package config holds the runtime configuration shared by every engine
// component. Parsing command-line flags, printing the banner, and the
// interactive TUI menu are collaborators of this package but are not
// implemented here; this package only defines the shape of configuration
// and how it is loaded from a TOML file on disk.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// OutputLevel controls how much the CLI logs about a run beyond the
// discovered responses themselves.
type OutputLevel int

const (
	// OutputDefault logs the startup summary line.
	OutputDefault OutputLevel = iota
	// OutputQuiet suppresses the startup summary line.
	OutputQuiet
	// OutputSilent suppresses everything except discovered responses.
	OutputSilent
)

// RequesterPolicy selects how the Policy Engine reacts to elevated error
// rates for a directory scan.
type RequesterPolicy int

const (
	// PolicyDefault performs no adaptive behavior.
	PolicyDefault RequesterPolicy = iota
	// PolicyAutoTune adjusts the per-scan rate limit using the limit heap.
	PolicyAutoTune
	// PolicyAutoBail cancels a scan outright when error thresholds trip.
	PolicyAutoBail
)

// DefaultResponseSizeLimit is the default cap (in bytes) placed on a
// captured response body before it is truncated, matching the CLI's
// documented default of 4 MiB.
const DefaultResponseSizeLimit = 4 * 1024 * 1024

// Config is the full set of runtime knobs read by the engine. A CLI flag
// parser and/or a TOML config file populate this struct; CLI flags always
// take precedence over file-sourced values, a merge this package does not
// perform itself (it is the flag-parsing collaborator's responsibility).
type Config struct {
	// Targets are the starting URLs supplied via --url or --stdin.
	Targets []string `toml:"urls"`

	// Wordlist is the path to the newline-delimited wordlist file.
	Wordlist string `toml:"wordlist"`

	// Threads bounds the number of concurrent in-flight requests per scan.
	Threads int `toml:"threads"`

	// ScanLimit bounds the number of concurrently running directory scans.
	ScanLimit int `toml:"scan_limit"`

	// Depth is the maximum recursion depth; 0 means unbounded.
	Depth int `toml:"depth"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `toml:"timeout"`

	// ResponseSizeLimit caps how many bytes of a response body are kept.
	ResponseSizeLimit int64 `toml:"response_size_limit"`

	// Extensions are appended (as `word.ext`) to every candidate word.
	Extensions []string `toml:"extensions"`

	// Headers are added verbatim to every outgoing request.
	Headers map[string]string `toml:"headers"`

	// Queries are added as URL query parameters to every outgoing request.
	Queries map[string]string `toml:"queries"`

	// Method is the HTTP method used for probing (default GET).
	Method string `toml:"method"`

	// Proxy is an optional forward proxy URL for all scan traffic.
	Proxy string `toml:"proxy"`

	// ReplayProxy is an optional separate proxy that only interesting
	// (reported) responses are replayed through.
	ReplayProxy string `toml:"replay_proxy"`

	// ReplayCodes restricts which status codes get replayed; empty means
	// replay everything that is reported.
	ReplayCodes []int `toml:"replay_codes"`

	// StatusCodes restricts which status codes are considered for
	// reporting at all; empty means no restriction.
	StatusCodes []int `toml:"status_codes"`

	// FilterStatus, FilterSize, FilterLines, FilterWords, FilterRegex seed
	// the filter pipeline at startup.
	FilterStatus []int    `toml:"filter_status"`
	FilterSize   []int64  `toml:"filter_size"`
	FilterLines  []int    `toml:"filter_lines"`
	FilterWords  []int    `toml:"filter_words"`
	FilterRegex  []string `toml:"filter_regex"`

	// FilterSimilarTo is a URL whose response body is fetched once at
	// startup and used to seed a SimilarityFilter.
	FilterSimilarTo string `toml:"filter_similar_to"`

	// DontFilter disables the automatic wildcard filter (but not other
	// configured filters).
	DontFilter bool `toml:"dont_filter"`

	// DenyList holds URL-prefix or regex patterns that may never be
	// scanned, including via recursion.
	DenyList []string `toml:"dont_scan"`

	// ExtractLinks enables the Link Extractor against response bodies and
	// robots.txt.
	ExtractLinks bool `toml:"extract_links"`

	// NoRecursion disables automatic recursion into discovered
	// directories.
	NoRecursion bool `toml:"no_recursion"`

	// AddSlash appends a trailing slash to every directory-like candidate.
	AddSlash bool `toml:"add_slash"`

	// RateLimit is a hard cap (in requests/second) that AutoTune may never
	// exceed; 0 means unset.
	RateLimit int `toml:"rate_limit"`

	// Policy selects the Policy Engine behavior.
	Policy RequesterPolicy `toml:"-"`

	// TimeLimit, when non-zero, bounds total run time.
	TimeLimit time.Duration `toml:"time_limit"`

	// Output is the path to write discovered responses to, in addition to
	// stdout.
	Output string `toml:"output"`

	// JSON switches the output format to one JSON object per line.
	JSON bool `toml:"json"`

	// ResumeFrom is a path to a previously persisted state file.
	ResumeFrom string `toml:"resume_from"`

	// DebugLog is a path that, when set, receives all log output at debug
	// level in place of stderr.
	DebugLog string `toml:"debug_log"`

	// OutputLevel controls whether the startup summary line is logged.
	OutputLevel OutputLevel `toml:"-"`

	// Verbosity is the repeated -v count (0-4).
	Verbosity int `toml:"-"`

	// FollowRedirects controls whether the HTTP client follows redirects.
	FollowRedirects bool `toml:"follow_redirects"`

	// UserAgent overrides the default User-Agent header.
	UserAgent string `toml:"user_agent"`
}

// Default returns a Config populated with the engine's documented defaults.
func Default() *Config {
	return &Config{
		Threads:           50,
		ScanLimit:         0,
		Depth:             4,
		Timeout:           7,
		ResponseSizeLimit: DefaultResponseSizeLimit,
		Method:            "GET",
		Policy:            PolicyDefault,
		UserAgent:         "pathscout",
	}
}

// LoadTOML reads a TOML configuration file from path and overlays its
// values onto a copy of the engine's defaults. Unknown keys are ignored so
// that older config files remain loadable against newer releases.
func LoadTOML(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	return cfg, nil
}

// Validate performs the pre-scan sanity checks that must cause an immediate,
// non-zero exit before any network traffic is sent: a missing or empty
// wordlist, or no targets at all.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("config: at least one target URL is required")
	}

	if c.Wordlist == "" {
		return fmt.Errorf("config: a wordlist is required")
	}

	info, err := os.Stat(c.Wordlist)
	if err != nil {
		return fmt.Errorf("config: wordlist %s: %w", c.Wordlist, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: wordlist %s is a directory", c.Wordlist)
	}
	if info.Size() == 0 {
		return fmt.Errorf("config: wordlist %s is empty", c.Wordlist)
	}

	return nil
}
