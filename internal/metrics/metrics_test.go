package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.Entry(OriginLocal, map[string]int{"domain": 3, "ip_cidr": 2})
	r.Entry(OriginLocal, map[string]int{"domain": 1})
	r.Entry(OriginRemote, nil)
	r.LineWarning("UNKNOWN_KIND")
	r.LineWarning("UNKNOWN_KIND")
	r.Download("asn", 100, nil)
	r.Download("asn", 0, errors.New("boom"))
	r.ASNNetworks("ipv4", 42)

	if got := testutil.ToFloat64(r.entries.WithLabelValues(OriginLocal)); got != 2 {
		t.Fatalf("local entries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.rules.WithLabelValues("domain")); got != 4 {
		t.Fatalf("domain rules = %v, want 4", got)
	}
	if got := testutil.ToFloat64(r.lineWarnings.WithLabelValues("UNKNOWN_KIND")); got != 2 {
		t.Fatalf("warnings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.downloads.WithLabelValues("asn", "error")); got != 1 {
		t.Fatalf("failed downloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.downloadSize.WithLabelValues("asn")); got != 100 {
		t.Fatalf("download bytes = %v, want 100", got)
	}
	if got := testutil.ToFloat64(r.asnNetworks.WithLabelValues("ipv4")); got != 42 {
		t.Fatalf("asn networks = %v, want 42", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Entry(OriginLocal, map[string]int{"domain": 1})
	r.LineWarning("FORMAT_ERROR")
	r.Download("x", 1, nil)
	r.ASNNetworks("ipv6", 1)
	r.Finish(time.Now(), true)
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Entry(OriginRemote, map[string]int{"process_name": 1})
	r.Finish(time.Now().Add(-time.Second), true)

	path := filepath.Join(t.TempDir(), "singbox_ruleset.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`singbox_ruleset_entries_total{origin="remote"} 1`,
		`singbox_ruleset_rules_total{field="process_name"} 1`,
		"singbox_ruleset_last_success_timestamp_seconds",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}
