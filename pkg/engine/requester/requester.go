// Package requester implements the Requester: it builds and sends each
// candidate request for one wordlist word against one directory, honoring
// the rate limiter and filter pipeline, then hands the response off to
// recursion, link extraction, and reporting.
package requester

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pathscout/pathscout/pkg/config"
	"github.com/pathscout/pathscout/pkg/engine/bus"
	"github.com/pathscout/pathscout/pkg/engine/extractor"
	"github.com/pathscout/pathscout/pkg/engine/filters"
	"github.com/pathscout/pathscout/pkg/engine/response"
	"github.com/pathscout/pathscout/pkg/engine/scan"
	"github.com/pathscout/pathscout/pkg/engine/scanmanager"
	"github.com/pathscout/pathscout/pkg/internal/utils"
	"github.com/pathscout/pathscout/pkg/logging"
)

// Reporter receives every Response that survives the filter pipeline, the
// collaborator that turns them into terminal/file output.
type Reporter interface {
	Report(r *response.Response)
}

// Requester performs candidate requests for a single directory scan. One
// Requester is constructed per active directory scan so that its rate
// limiter, if any, is scoped to that scan alone.
type Requester struct {
	client      *http.Client
	cfg         *config.Config
	pipeline    *filters.Pipeline
	scanManager *scanmanager.Manager
	stats       *bus.Stats
	reporter    Reporter
	log         logging.Logger

	scanID       string
	baseURL      string
	extractLinks bool
	recursion    bool

	// limiter is accessed from the scan's own goroutine pool (Acquire) and,
	// when AutoTune is active, from the policy loop's goroutine (SetRateLimiter),
	// so it is swapped atomically rather than guarded by a mutex.
	limiter atomic.Pointer[RateLimiter]
}

// New constructs a Requester for one directory scan.
func New(cfg *config.Config, pipeline *filters.Pipeline, sm *scanmanager.Manager, stats *bus.Stats, reporter Reporter, log logging.Logger, scanID, baseURL string) *Requester {
	transport := &http.Transport{
		Proxy: proxyFunc(cfg.Proxy),
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Requester{
		client:       client,
		cfg:          cfg,
		pipeline:     pipeline,
		scanManager:  sm,
		stats:        stats,
		reporter:     reporter,
		log:          logging.Component(log, "requester"),
		scanID:       scanID,
		baseURL:      baseURL,
		extractLinks: cfg.ExtractLinks,
		recursion:    !cfg.NoRecursion,
	}
}

func proxyFunc(proxy string) func(*http.Request) (*url.URL, error) {
	if proxy == "" {
		return nil
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return nil
	}
	return http.ProxyURL(u)
}

// SetRateLimiter installs or replaces the Requester's shared rate limiter;
// passing nil (the AutoTune "remove limit" transition) disables rate
// limiting unless cfg.RateLimit is set. A configured RateLimit is a cap:
// nil is replaced by a limiter at that rate, and a faster limiter is
// lowered to it.
func (req *Requester) SetRateLimiter(rl *RateLimiter) {
	if limit := req.cfg.RateLimit; limit > 0 {
		if rl == nil {
			rl = NewRateLimiter(limit)
		} else if rl.max > limit {
			rl.SetLimit(limit)
		}
	}
	if old := req.limiter.Swap(rl); old != nil {
		old.Stop()
	}
}

// StopRateLimiter stops whatever rate limiter is currently installed, if
// any. Callers that may have replaced the limiter one or more times
// (AutoTune) should defer this once, rather than holding onto and
// stopping an individual *RateLimiter themselves.
func (req *Requester) StopRateLimiter() {
	if rl := req.limiter.Load(); rl != nil {
		rl.Stop()
	}
}

// candidateURLs builds the set of URLs to request for word against the
// Requester's base directory: the bare word plus one per configured
// extension, with an optional trailing slash.
func candidateURLs(baseURL, word string, extensions []string, addSlash bool) []string {
	join := func(w string) string {
		u := strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(w, "/")
		if addSlash && !strings.HasSuffix(u, "/") {
			u += "/"
		}
		return u
	}

	urls := []string{join(word)}
	for _, ext := range extensions {
		ext = strings.TrimPrefix(ext, ".")
		urls = append(urls, join(word+"."+ext))
	}
	return urls
}

// Request sends one request per candidate URL derived from word, applying
// the rate limiter, recursion, filter pipeline, status-code allow list,
// link extraction, and reporting, in that order.
func (req *Requester) Request(ctx context.Context, word string, depth int) error {
	for _, candidate := range candidateURLs(req.baseURL, word, req.cfg.Extensions, req.cfg.AddSlash) {
		if err := req.requestOne(ctx, candidate, depth); err != nil {
			req.log.WithError(err).Debugf("request failed: %s", utils.SanitizeForLog(candidate))
		}
	}
	return nil
}

// FetchExact requests target verbatim, with none of candidateURLs'
// extension/trailing-slash expansion. It is used for single-URL fetches
// discovered by the Link Extractor, where the candidate is already
// complete.
func (req *Requester) FetchExact(ctx context.Context, target string) error {
	return req.requestOne(ctx, target, scan.PathDepth(target))
}

func (req *Requester) requestOne(ctx context.Context, target string, depth int) error {
	if rl := req.limiter.Load(); rl != nil {
		rl.Acquire()
	}

	method := req.cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("requester: building request: %w", err)
	}

	for k, v := range req.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.cfg.UserAgent)
	}

	if len(req.cfg.Queries) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.cfg.Queries {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	req.stats.Handler().Send(bus.AddRequest{ScanID: req.scanID})

	httpResp, err := req.client.Do(httpReq)
	if err != nil {
		req.recordError(err)
		return err
	}
	defer httpResp.Body.Close()

	req.stats.Handler().Send(bus.AddStatus{ScanID: req.scanID, Code: httpResp.StatusCode})

	body, truncated, err := readLimited(httpResp.Body, req.cfg.ResponseSizeLimit)
	if err != nil {
		req.recordError(err)
		return err
	}

	resp := response.New(httpResp.Request.URL.String(), method, httpResp.StatusCode, httpResp.Header, body, truncated)

	if req.recursion {
		req.scanManager.TryRecursion(resp, depth)
	}

	if req.pipeline.ShouldFilter(resp) {
		return nil
	}

	if len(req.cfg.StatusCodes) > 0 {
		allowed := false
		for _, code := range req.cfg.StatusCodes {
			if code == resp.StatusCode {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil
		}
	}

	if req.extractLinks && (resp.StatusCode < 300 || resp.StatusCode >= 400) {
		req.extractAndEnqueue(resp)
	}

	if req.reporter != nil && req.scanManager.ShouldReport(resp) {
		req.reporter.Report(resp)
	}

	return nil
}

func (req *Requester) extractAndEnqueue(resp *response.Response) {
	for _, cand := range extractor.FromResponseBody(resp.Body, req.baseURL) {
		req.enqueueCandidate(cand.URL)
	}
}

func (req *Requester) enqueueCandidate(candidateURL string) {
	isNew, s := req.scanManager.Register(candidateURL, scan.File, scan.Latest, req.cfg.OutputLevel)
	if !isNew {
		return
	}
	req.scanManager.Dispatch(s)
}

func (req *Requester) recordError(err error) {
	kind := bus.ErrorOther

	switch {
	case isTimeout(err):
		kind = bus.ErrorTimeout
	case isConnectionError(err):
		kind = bus.ErrorConnection
	}

	req.stats.Handler().Send(bus.AddError{ScanID: req.scanID, Kind: kind})
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok {
		return t.Timeout()
	}
	return strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline exceeded")
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "EOF")
}

// readLimited reads at most limit bytes from r, reporting whether the
// stream had more data beyond that point.
func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		limit = config.DefaultResponseSizeLimit
	}

	limited := io.LimitReader(r, limit+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, false, fmt.Errorf("requester: reading body: %w", err)
	}

	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

// FetchRobotsTxt fetches and parses /robots.txt for the scan's authority
// and registers and dispatches each Allow/Disallow path it lists as a file
// scan. It returns nothing; any fetch failure or non-200 status is ignored.
func (req *Requester) FetchRobotsTxt(ctx context.Context) {
	robotsURL := strings.TrimSuffix(req.baseURL, "/") + "/robots.txt"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return
	}

	httpResp, err := req.client.Do(httpReq)
	if err != nil {
		return
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, config.DefaultResponseSizeLimit))
	if err != nil {
		return
	}

	for _, cand := range extractor.FromRobotsTxt(body, req.baseURL) {
		req.enqueueCandidate(cand.URL)
	}
}
