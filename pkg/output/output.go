// Package output implements response reporting: one line per discovered
// response, either a human-readable colorized summary or a single JSON
// object.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/pathscout/pathscout/pkg/engine/response"
)

// IsTerminal reports whether w is a terminal fatih/color can safely
// colorize, used by the CLI layer to decide whether to pass noColor=true
// to New (e.g. when --output or --json redirects to a file, or stdout
// itself has been piped elsewhere).
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// jsonLine is the wire format for --json mode.
type jsonLine struct {
	Type          string      `json:"type"`
	URL           string      `json:"url"`
	Path          string      `json:"path"`
	Wildcard      bool        `json:"wildcard"`
	Status        int         `json:"status"`
	ContentLength int64       `json:"content_length"`
	LineCount     int         `json:"line_count"`
	WordCount     int         `json:"word_count"`
	Headers       http.Header `json:"headers"`
	Extension     string      `json:"extension"`
	Truncated     bool        `json:"truncated"`
}

// statusColor picks the fatih/color attribute used for a response's
// status-code class (2xx/3xx/4xx/5xx) in human-readable mode. When
// noColor is set (output isn't a terminal) it returns a Color with
// coloring disabled so Sprintf still works but emits plain text.
func statusColor(status int, noColor bool) *color.Color {
	var c *color.Color
	switch {
	case status >= 200 && status < 300:
		c = color.New(color.FgGreen)
	case status >= 300 && status < 400:
		c = color.New(color.FgCyan)
	case status >= 400 && status < 500:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgRed)
	}
	if noColor {
		c.DisableColor()
	}
	return c
}

// Writer is a Reporter that serializes reported responses, one line per
// response, to an underlying io.Writer. It is safe for concurrent use;
// reports from multiple Requesters are expected to race.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	json    bool
	noColor bool
}

// New creates a Writer. When json is true, every report is emitted as a
// single JSON object line instead of the human-readable summary. noColor
// disables status-code colorization, which callers should set whenever w
// is not a terminal (see IsTerminal) since escape codes in a redirected
// file or --json stream are just noise.
func New(w io.Writer, json, noColor bool) *Writer {
	return &Writer{w: w, json: json, noColor: noColor}
}

// Report implements requester.Reporter.
func (o *Writer) Report(r *response.Response) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.json {
		o.writeJSON(r)
		return
	}
	o.writeHuman(r)
}

func (o *Writer) writeJSON(r *response.Response) {
	line := jsonLine{
		Type:          "response",
		URL:           r.URL,
		Path:          r.URL,
		Wildcard:      r.Wildcard,
		Status:        r.StatusCode,
		ContentLength: r.ContentLength,
		LineCount:     r.LineCount,
		WordCount:     r.WordCount,
		Headers:       r.Headers,
		Extension:     r.Extension,
		Truncated:     r.Truncated,
	}

	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	fmt.Fprintln(o.w, string(data))
}

func (o *Writer) writeHuman(r *response.Response) {
	suffix := ""
	if r.Truncated {
		suffix = " [truncated to size limit]"
	}

	statusText := statusColor(r.StatusCode, o.noColor).Sprintf("%d", r.StatusCode)

	fmt.Fprintf(o.w, "%s %s %d %d %d %s%s\n",
		statusText, r.Method, r.ContentLength, r.LineCount, r.WordCount, r.URL, suffix)
}
