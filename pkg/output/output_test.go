package output

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/pathscout/pathscout/pkg/engine/response"
)

// TestJSONReportMatchesTruncatedSizeLimit is the literal S6 scenario: a
// 2048-byte body truncated to a 1024-byte limit should report
// content_length=1024 and truncated=true.
func TestJSONReportMatchesTruncatedSizeLimit(t *testing.T) {
	body := bytes.Repeat([]byte("a"), 1024)
	r := response.New("http://example.com/big", "GET", 200, http.Header{}, body, true)

	var buf bytes.Buffer
	w := New(&buf, true, true)
	w.Report(r)

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}

	if got["truncated"] != true {
		t.Fatalf("truncated = %v, want true", got["truncated"])
	}
	if int(got["content_length"].(float64)) != 1024 {
		t.Fatalf("content_length = %v, want 1024", got["content_length"])
	}
	if got["type"] != "response" {
		t.Fatalf("type = %v, want response", got["type"])
	}
}

func TestHumanReadableReportContainsFields(t *testing.T) {
	r := response.New("http://example.com/admin", "GET", 200, http.Header{}, []byte("hi there\nworld"), false)

	var buf bytes.Buffer
	w := New(&buf, false, true)
	w.Report(r)

	line := buf.String()
	if !strings.Contains(line, "GET") {
		t.Fatalf("line %q missing method", line)
	}
	if !strings.Contains(line, "http://example.com/admin") {
		t.Fatalf("line %q missing URL", line)
	}
}

func TestHumanReadableReportNoColorOmitsEscapeCodes(t *testing.T) {
	r := response.New("http://example.com/admin", "GET", 200, http.Header{}, []byte("hi"), false)

	var buf bytes.Buffer
	w := New(&buf, false, true)
	w.Report(r)

	if strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("line %q contains an escape code despite noColor", buf.String())
	}
}

func TestHumanReadableReportMarksTruncation(t *testing.T) {
	r := response.New("http://example.com/big", "GET", 200, http.Header{}, []byte("x"), true)

	var buf bytes.Buffer
	w := New(&buf, false, true)
	w.Report(r)

	if !strings.Contains(buf.String(), "truncated to size limit") {
		t.Fatalf("line %q missing truncation marker", buf.String())
	}
}
