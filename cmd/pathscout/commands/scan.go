package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pathscout/pathscout/pkg/config"
	"github.com/pathscout/pathscout/pkg/engine/bus"
	"github.com/pathscout/pathscout/pkg/engine/filters"
	"github.com/pathscout/pathscout/pkg/engine/scan"
	"github.com/pathscout/pathscout/pkg/engine/scanmanager"
	"github.com/pathscout/pathscout/pkg/engine/scanner"
	"github.com/pathscout/pathscout/pkg/engine/semaphore"
	"github.com/pathscout/pathscout/pkg/engine/signature"
	"github.com/pathscout/pathscout/pkg/engine/state"
	"github.com/pathscout/pathscout/pkg/logging"
	"github.com/pathscout/pathscout/pkg/metrics"
	"github.com/pathscout/pathscout/pkg/output"
)

// scanFlags holds the CLI flags, bound directly to cobra/pflag so that CLI
// flags always override a loaded config file. Most fields map onto a
// config.Config field; configFile and metricsAddr are CLI-only, and
// Config.FollowRedirects and Config.UserAgent have no flag.
type scanFlags struct {
	urls              []string
	stdin             bool
	wordlist          string
	threads           int
	scanLimit         int
	depth             int
	timeout           int
	responseSizeLimit int64
	extensions        []string
	headers           []string
	queries           []string
	method            string
	proxy             string
	replayProxy       string
	replayCodes       []int
	statusCodes       []int
	filterStatus      []int
	filterSize        []int64
	filterLines       []int
	filterWords       []int
	filterRegex       []string
	filterSimilarTo   string
	dontFilter        bool
	dontScan          []string
	extractLinks      bool
	noRecursion       bool
	addSlash          bool
	rateLimit         int
	autoTune          bool
	autoBail          bool
	timeLimit         time.Duration
	output            string
	json              bool
	resumeFrom        string
	debugLog          string
	silent            bool
	quiet             bool
	verbosity         int
	configFile        string
	metricsAddr       string
}

func newScanCmd() *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "pathscout",
		Short: "High-concurrency web content discovery",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&flags.urls, "url", "u", nil, "target URL (repeatable)")
	f.BoolVar(&flags.stdin, "stdin", false, "read target URLs from stdin")
	f.StringVarP(&flags.wordlist, "wordlist", "w", "", "path to wordlist")
	f.IntVarP(&flags.threads, "threads", "t", 0, "concurrent requests per scan")
	f.IntVar(&flags.scanLimit, "scan-limit", 0, "concurrent directory scans")
	f.IntVar(&flags.depth, "depth", 0, "maximum recursion depth (0 keeps the config file's depth, or the default of 4)")
	f.IntVar(&flags.timeout, "timeout", 0, "per-request timeout in seconds")
	f.Int64Var(&flags.responseSizeLimit, "response-size-limit", 0, "response body cap in bytes")
	f.StringArrayVarP(&flags.extensions, "extensions", "x", nil, "extensions to append to each word")
	f.StringArrayVarP(&flags.headers, "headers", "H", nil, "header k:v (repeatable)")
	f.StringArrayVarP(&flags.queries, "queries", "Q", nil, "query k=v (repeatable)")
	f.StringVar(&flags.method, "method", "", "HTTP method used to probe each candidate (default GET)")
	f.StringVar(&flags.proxy, "proxy", "", "forward proxy URL")
	f.StringVar(&flags.replayProxy, "replay-proxy", "", "replay proxy URL for reported responses")
	f.IntSliceVar(&flags.replayCodes, "replay-codes", nil, "status codes to replay")
	f.IntSliceVarP(&flags.statusCodes, "status-codes", "s", nil, "only consider these status codes")
	f.IntSliceVarP(&flags.filterStatus, "filter-status", "C", nil, "filter out status codes")
	f.Int64SliceVarP(&flags.filterSize, "filter-size", "S", nil, "filter out content lengths")
	f.IntSliceVarP(&flags.filterLines, "filter-lines", "N", nil, "filter out line counts")
	f.IntSliceVarP(&flags.filterWords, "filter-words", "W", nil, "filter out word counts")
	f.StringArrayVarP(&flags.filterRegex, "filter-regex", "X", nil, "filter out regex matches")
	f.StringVar(&flags.filterSimilarTo, "filter-similar-to", "", "seed a similarity filter from this URL")
	f.BoolVarP(&flags.dontFilter, "dont-filter", "D", false, "disable automatic wildcard filtering")
	f.StringArrayVar(&flags.dontScan, "dont-scan", nil, "deny list entry, URL or regex (repeatable)")
	f.BoolVar(&flags.extractLinks, "extract-links", false, "extract links from response bodies and robots.txt")
	f.BoolVarP(&flags.noRecursion, "no-recursion", "n", false, "disable automatic recursion")
	f.BoolVarP(&flags.addSlash, "add-slash", "f", false, "append a trailing slash to directory-like candidates")
	f.IntVar(&flags.rateLimit, "rate-limit", 0, "hard cap on requests/second")
	f.BoolVar(&flags.autoTune, "auto-tune", false, "enable AutoTune policy")
	f.BoolVar(&flags.autoBail, "auto-bail", false, "enable AutoBail policy")
	f.DurationVar(&flags.timeLimit, "time-limit", 0, "bound total run time")
	f.StringVarP(&flags.output, "output", "o", "", "write discovered responses to this file too")
	f.BoolVar(&flags.json, "json", false, "emit one JSON object per response line")
	f.StringVar(&flags.resumeFrom, "resume-from", "", "resume from a previously persisted state file")
	f.StringVar(&flags.debugLog, "debug-log", "", "write verbose debug logging to this file")
	f.BoolVar(&flags.silent, "silent", false, "suppress everything except discovered responses")
	f.BoolVar(&flags.quiet, "quiet", false, "suppress the startup summary line")
	f.CountVarP(&flags.verbosity, "verbose", "v", "increase logging verbosity (repeatable, 0-4)")
	f.StringVar(&flags.configFile, "config", "", "TOML configuration file")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled if empty)")

	return cmd
}

func runScan(cmd *cobra.Command, flags *scanFlags) error {
	cfg, dedupSeed, err := buildConfig(flags)
	if err != nil {
		return err
	}

	if flags.stdin {
		urls, err := readLinesFromStdin()
		if err != nil {
			return fmt.Errorf("reading targets from stdin: %w", err)
		}
		cfg.Targets = append(cfg.Targets, urls...)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level := logging.VerbosityToLevel(flags.verbosity)
	var log logging.Logger
	if cfg.JSON {
		log = logging.NewJSON(level)
	} else {
		log = logging.New(level)
	}

	if cfg.DebugLog != "" {
		debugFile, err := os.OpenFile(cfg.DebugLog, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("opening debug log: %w", err)
		}
		defer debugFile.Close()
		root := log.WithFields(logrus.Fields{}).Logger
		root.SetOutput(debugFile)
		root.SetLevel(logrus.DebugLevel)
	}

	wordlist, err := readWordlist(cfg.Wordlist)
	if err != nil {
		return err
	}

	if cfg.OutputLevel == config.OutputDefault {
		log.WithFields(logrus.Fields{
			"targets": len(cfg.Targets),
			"words":   len(wordlist),
			"threads": cfg.Threads,
			"policy":  cfg.Policy,
		}).Info("starting scan")
	}

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	if cfg.FilterSimilarTo != "" {
		f, err := fetchSimilarityFilter(cfg)
		if err != nil {
			log.WithError(err).Warnf("could not seed similarity filter from %s", cfg.FilterSimilarTo)
		} else {
			pipeline.Add(f)
		}
	}

	scanLimit := cfg.ScanLimit
	if scanLimit < 1 {
		scanLimit = len(cfg.Targets)
		if scanLimit < 1 {
			scanLimit = 1
		}
	}
	sem := semaphore.New(scanLimit)
	defer sem.Close()

	statsHandler := bus.NewStats()
	go statsHandler.Run()
	defer statsHandler.Handler().Send(bus.Exit{})

	if flags.metricsAddr != "" {
		registry := metrics.NewRegistry(nil)
		statsHandler.AttachMetrics(registry)

		metricsSrv := &http.Server{Addr: flags.metricsAddr, Handler: registry.Handler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("metrics server stopped unexpectedly")
			}
		}()
		defer metricsSrv.Close()
	}

	dest := io.Writer(os.Stdout)
	noColor := cfg.JSON || !output.IsTerminal(os.Stdout)
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			log.WithError(err).Warn("could not open output file; continuing to stdout only")
		} else {
			defer f.Close()
			dest = io.MultiWriter(os.Stdout, f)
			noColor = true
		}
	}
	out := output.New(dest, cfg.JSON, noColor)

	client := &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}
	prober := func(ctx context.Context, url string) (int, int64, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return 0, 0, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, 0, err
		}
		defer resp.Body.Close()
		n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, cfg.ResponseSizeLimit))
		if err != nil {
			return 0, 0, err
		}
		return resp.StatusCode, n, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TimeLimit > 0 {
		timer := time.AfterFunc(cfg.TimeLimit, cancel)
		defer timer.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	group, groupCtx := errgroup.WithContext(ctx)

	// onNewDirectory is the Scan Manager's external collaborator for
	// recursion: a newly discovered directory is dispatched onto the same
	// bounded errgroup as the initial targets.
	var sc *scanner.Scanner
	onNewDirectory := func(s *scan.Scan) {
		group.Go(func() error {
			return sc.Scan(groupCtx, s)
		})
	}

	sm := scanmanager.New(cfg.Depth, !cfg.NoRecursion, cfg.DenyList, onNewDirectory)

	if len(dedupSeed) > 0 {
		urls := make([]string, len(dedupSeed))
		methods := make([]string, len(dedupSeed))
		for i, r := range dedupSeed {
			urls[i] = r.URL
			methods[i] = r.Method
		}
		sm.SeedDedup(urls, methods)
	}

	for _, target := range cfg.Targets {
		if err := sm.ValidateInitialTarget(target); err != nil {
			return err
		}
	}

	sc = scanner.New(cfg, sem, sm, pipeline, statsHandler, out, log, wordlist, prober)

	for _, target := range cfg.Targets {
		_, s := sm.Register(target, scan.Directory, scan.Initial, cfg.OutputLevel)
		s := s
		group.Go(func() error {
			return sc.Scan(groupCtx, s)
		})
	}

	var runErr *multierror.Error
	if err := group.Wait(); err != nil {
		runErr = multierror.Append(runErr, err)
	}

	return runErr.ErrorOrNil()
}

func buildConfig(flags *scanFlags) (*config.Config, []state.ResponseRecord, error) {
	var cfg *config.Config
	var err error
	var resumeTargets []string
	var dedupSeed []state.ResponseRecord

	switch {
	case flags.resumeFrom != "":
		cfg, resumeTargets, dedupSeed, err = loadResumeConfig(flags.resumeFrom)
		if err != nil {
			return nil, nil, err
		}
	case flags.configFile != "":
		cfg, err = config.LoadTOML(flags.configFile)
		if err != nil {
			return nil, nil, err
		}
	default:
		cfg = config.Default()
	}

	if len(flags.urls) > 0 {
		cfg.Targets = flags.urls
	} else if resumeTargets != nil {
		cfg.Targets = resumeTargets
	}
	if flags.wordlist != "" {
		cfg.Wordlist = flags.wordlist
	}
	if flags.threads > 0 {
		cfg.Threads = flags.threads
	}
	if flags.scanLimit > 0 {
		cfg.ScanLimit = flags.scanLimit
	}
	if flags.depth > 0 {
		cfg.Depth = flags.depth
	}
	if flags.timeout > 0 {
		cfg.Timeout = flags.timeout
	}
	if flags.responseSizeLimit > 0 {
		cfg.ResponseSizeLimit = flags.responseSizeLimit
	}
	if len(flags.extensions) > 0 {
		cfg.Extensions = flags.extensions
	}
	if flags.method != "" {
		cfg.Method = flags.method
	}
	cfg.Headers = mergeKV(cfg.Headers, flags.headers, ":")
	cfg.Queries = mergeKV(cfg.Queries, flags.queries, "=")
	if flags.proxy != "" {
		cfg.Proxy = flags.proxy
	}
	if flags.replayProxy != "" {
		cfg.ReplayProxy = flags.replayProxy
	}
	if len(flags.replayCodes) > 0 {
		cfg.ReplayCodes = flags.replayCodes
	}
	if len(flags.statusCodes) > 0 {
		cfg.StatusCodes = flags.statusCodes
	}
	if len(flags.filterStatus) > 0 {
		cfg.FilterStatus = flags.filterStatus
	}
	if len(flags.filterSize) > 0 {
		cfg.FilterSize = flags.filterSize
	}
	if len(flags.filterLines) > 0 {
		cfg.FilterLines = flags.filterLines
	}
	if len(flags.filterWords) > 0 {
		cfg.FilterWords = flags.filterWords
	}
	if len(flags.filterRegex) > 0 {
		cfg.FilterRegex = flags.filterRegex
	}
	if flags.filterSimilarTo != "" {
		cfg.FilterSimilarTo = flags.filterSimilarTo
	}
	cfg.DontFilter = cfg.DontFilter || flags.dontFilter
	if len(flags.dontScan) > 0 {
		cfg.DenyList = flags.dontScan
	}
	cfg.ExtractLinks = cfg.ExtractLinks || flags.extractLinks
	cfg.NoRecursion = cfg.NoRecursion || flags.noRecursion
	cfg.AddSlash = cfg.AddSlash || flags.addSlash
	if flags.rateLimit > 0 {
		cfg.RateLimit = flags.rateLimit
	}
	if flags.autoTune {
		cfg.Policy = config.PolicyAutoTune
	} else if flags.autoBail {
		cfg.Policy = config.PolicyAutoBail
	}
	if flags.timeLimit > 0 {
		cfg.TimeLimit = flags.timeLimit
	}
	if flags.output != "" {
		cfg.Output = flags.output
	}
	cfg.JSON = cfg.JSON || flags.json
	if flags.resumeFrom != "" {
		cfg.ResumeFrom = flags.resumeFrom
	}
	if flags.debugLog != "" {
		cfg.DebugLog = flags.debugLog
	}
	cfg.Verbosity = flags.verbosity

	switch {
	case flags.silent:
		cfg.OutputLevel = config.OutputSilent
	case flags.quiet:
		cfg.OutputLevel = config.OutputQuiet
	}

	return cfg, dedupSeed, nil
}

// loadResumeConfig loads a previously persisted state document and applies
// resume semantics: its embedded Config becomes the new base (still
// subject to every flag override above), its non-Complete scans become
// the initial target list, and its completed scans' prior responses seed
// the dedup set so they aren't reported a second time.
func loadResumeConfig(path string) (*config.Config, []string, []state.ResponseRecord, error) {
	doc, err := state.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg := config.Default()
	if doc.Config != nil {
		cfg = doc.Config
	}
	cfg.ResumeFrom = path

	plan := state.Resume(doc)
	return cfg, plan.FreshTargets, plan.DedupResponses, nil
}

func mergeKV(base map[string]string, pairs []string, sep string) map[string]string {
	if len(pairs) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]string)
	}
	for _, p := range pairs {
		kv := strings.SplitN(p, sep, 2)
		if len(kv) != 2 {
			continue
		}
		base[kv[0]] = kv[1]
	}
	return base
}

func readWordlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wordlist: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}

func readLinesFromStdin() ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// similarityFilterThreshold is the default percentage similarity that
// marks a response as a near-duplicate of --filter-similar-to's body.
const similarityFilterThreshold = 95

func fetchSimilarityFilter(cfg *config.Config) (filters.Filter, error) {
	client := &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}
	resp, err := client.Get(cfg.FilterSimilarTo)
	if err != nil {
		return filters.Filter{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, cfg.ResponseSizeLimit))
	if err != nil {
		return filters.Filter{}, err
	}

	sig := signature.New(body)
	return filters.NewSimilarity(sig, similarityFilterThreshold, cfg.FilterSimilarTo), nil
}

func buildPipeline(cfg *config.Config) (*filters.Pipeline, error) {
	p := filters.New()

	for _, c := range cfg.FilterStatus {
		p.Add(filters.NewStatusCode(c))
	}
	for _, sz := range cfg.FilterSize {
		p.Add(filters.NewSize(sz))
	}
	for _, n := range cfg.FilterLines {
		p.Add(filters.NewLines(n))
	}
	for _, n := range cfg.FilterWords {
		p.Add(filters.NewWords(n))
	}
	for _, pattern := range cfg.FilterRegex {
		f, err := filters.NewRegex(pattern)
		if err != nil {
			logrus.WithError(err).Warnf("skipping invalid filter regex %q", pattern)
			continue
		}
		p.Add(f)
	}

	return p, nil
}

