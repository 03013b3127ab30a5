package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistryExportsInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RequestsTotal.Inc()
	r.RequestsTotal.Inc()
	r.ScansActive.Inc()
	r.ErrorsTotal.WithLabelValues("timeout").Inc()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 64*1024)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])

	for _, want := range []string{
		"pathscout_requests_total",
		"pathscout_scans_active",
		`pathscout_errors_total{kind="timeout"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q in:\n%s", want, body)
		}
	}
}

func TestNewRegistryDefaultsWhenNil(t *testing.T) {
	r := NewRegistry(nil)
	if r.reg == nil {
		t.Fatal("NewRegistry(nil) left reg nil")
	}
	r.RequestsTotal.Inc()
}
