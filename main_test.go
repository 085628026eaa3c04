package main

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/senshinya/singbox-ruleset/internal/config"
	"github.com/senshinya/singbox-ruleset/internal/fetcher"
)

type zipFile struct {
	name, content string
}

func buildZip(t *testing.T, files ...zipFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(f.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const clashRoot = "ios_rule_script-master/rule/Clash/"

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	asnZip := buildZip(t,
		zipFile{"GeoLite2-ASN-CSV_20240102/GeoLite2-ASN-Blocks-IPv4.csv",
			"network,autonomous_system_number,autonomous_system_organization\n17.0.0.0/8,714,APPLE-ENGINEERING\n"},
		zipFile{"GeoLite2-ASN-CSV_20240102/GeoLite2-ASN-Blocks-IPv6.csv",
			"network,autonomous_system_number,autonomous_system_organization\n2620:149::/32,714,APPLE-ENGINEERING\n"},
	)
	rulesZip := buildZip(t,
		zipFile{clashRoot + "Apple/Apple.yaml", "payload:\n  - DOMAIN,ignored.example\n"},
		zipFile{clashRoot + "Apple/Apple_Classical.yaml",
			"# NAME: Apple\npayload:\n  - DOMAIN-SUFFIX,apple.com\n  - IP-ASN,714,no-resolve\n  - PROCESS-NAME,Music\n  - FINAL,DIRECT\n"},
		zipFile{clashRoot + "CGB/CGB.yaml", "payload:\n  - DOMAIN,cgb.example\n"},
		zipFile{clashRoot + "Cloud/AWS/AWS.yaml", "payload:\n  - IP-CIDR,3.5.140.0/22\n"},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/asn", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("license_key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write(asnZip)
	})
	mux.HandleFunc("/master.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(rulesZip)
	})
	mux.HandleFunc("/Extra.list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "# extra\nDOMAIN-KEYWORD,tracker\nUSER-AGENT,Foo*\n")
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func testConfig(t *testing.T, ts *httptest.Server) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.OutputDir = filepath.Join(dir, "rule")
	cfg.WorkDir = filepath.Join(dir, "work")
	cfg.MetricsFile = filepath.Join(dir, "ruleset.prom")
	cfg.MaxMindKey = "secret"
	cfg.ASN.URL = ts.URL + "/asn?license_key=" + fetcher.LicenseKeyPlaceholder
	cfg.Source.URL = ts.URL + "/master.zip"
	cfg.Extra = map[string]string{"Extra": ts.URL + "/Extra.list"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRun(t *testing.T) {
	ts := newUpstream(t)
	cfg := testConfig(t, ts)

	// Leftovers from an earlier run are removed.
	if err := os.MkdirAll(filepath.Join(cfg.OutputDir, "Stale"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := run(context.Background(), cfg, discard()); err != nil {
		t.Fatalf("run: %v", err)
	}

	apple := readFile(t, filepath.Join(cfg.OutputDir, "Apple", "Apple.json"))
	wantApple := `{
  "rules": [
    {
      "domain_suffix": [
        "apple.com"
      ],
      "ip_cidr": [
        "17.0.0.0/8",
        "2620:149::/32"
      ]
    },
    {
      "process_name": [
        "Music"
      ]
    }
  ],
  "version": 2
}
`
	if apple != wantApple {
		t.Errorf("Apple.json =\n%s\nwant\n%s", apple, wantApple)
	}

	aws := readFile(t, filepath.Join(cfg.OutputDir, "AWS", "AWS.json"))
	if !strings.Contains(aws, `"3.5.140.0/22"`) {
		t.Errorf("AWS.json = %s", aws)
	}
	extra := readFile(t, filepath.Join(cfg.OutputDir, "Extra", "Extra.json"))
	if !strings.Contains(extra, `"domain_keyword"`) || strings.Contains(extra, "Foo") {
		t.Errorf("Extra.json = %s", extra)
	}
	if !strings.Contains(readFile(t, filepath.Join(cfg.OutputDir, "Extra", "README.md")), "# Extra") {
		t.Error("Extra README missing title")
	}

	for _, name := range []string{"CGB", "Cloud", "Stale"} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s: want absent, stat err = %v", name, err)
		}
	}

	index := readFile(t, filepath.Join(cfg.OutputDir, "index.json"))
	for _, name := range []string{"Apple", "AWS", "Extra"} {
		if !strings.Contains(index, `"`+name+`": "https://cdn.jsdelivr.net/gh/senshinya/singbox_ruleset@main/rule/`+name+`/`+name+`.srs"`) {
			t.Errorf("index.json missing %s:\n%s", name, index)
		}
	}

	for _, name := range []string{"asn.zip", "asn", "ios_rule_script.zip", "ios_rule_script"} {
		if _, err := os.Stat(filepath.Join(cfg.WorkDir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("work/%s not cleaned, stat err = %v", name, err)
		}
	}

	prom := readFile(t, cfg.MetricsFile)
	for _, want := range []string{
		`singbox_ruleset_entries_total{origin="local"} 2`,
		`singbox_ruleset_entries_total{origin="remote"} 1`,
		`singbox_ruleset_asn_networks{family="ipv4"} 1`,
		`singbox_ruleset_downloads_total{result="ok",target="asn"} 1`,
		`singbox_ruleset_line_warnings_total{code="UNKNOWN_KIND"} 1`,
		"singbox_ruleset_last_success_timestamp_seconds",
	} {
		if !strings.Contains(prom, want) {
			t.Errorf("metrics missing %q:\n%s", want, prom)
		}
	}
}

func TestRun_KeepWork(t *testing.T) {
	ts := newUpstream(t)
	cfg := testConfig(t, ts)
	cfg.KeepWork = true

	if err := run(context.Background(), cfg, discard()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, name := range []string{"asn.zip", filepath.Join("asn", "GeoLite2-ASN-Blocks-IPv6.csv"), "ios_rule_script.zip"} {
		if _, err := os.Stat(filepath.Join(cfg.WorkDir, name)); err != nil {
			t.Errorf("work/%s: %v", name, err)
		}
	}
}

func TestRun_LocalInputs(t *testing.T) {
	dir := t.TempDir()
	v4 := filepath.Join(dir, "v4.csv")
	v6 := filepath.Join(dir, "v6.csv")
	if err := os.WriteFile(v4, []byte("network,asn\n1.1.1.0/24,13335\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(v6, []byte("network,asn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(filepath.Join(src, "Clash", "Cloudflare"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "Clash", "Cloudflare", "Cloudflare.yaml"), []byte("payload:\n  - IP-ASN,13335\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.OutputDir = filepath.Join(dir, "rule")
	cfg.ASN.IPv4CSV = v4
	cfg.ASN.IPv6CSV = v6
	cfg.Source = config.SourceConfig{Dir: src, Root: "Clash"}

	if err := run(context.Background(), cfg, discard()); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := readFile(t, filepath.Join(cfg.OutputDir, "Cloudflare", "Cloudflare.json"))
	if !strings.Contains(got, `"1.1.1.0/24"`) {
		t.Fatalf("Cloudflare.json = %s", got)
	}
}

func TestRun_ASNDownloadFails(t *testing.T) {
	ts := newUpstream(t)
	cfg := testConfig(t, ts)
	cfg.MaxMindKey = "wrong"

	err := run(context.Background(), cfg, discard())
	var te *fetcher.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d", te.Status)
	}
	if strings.Contains(err.Error(), "wrong") {
		t.Fatalf("license key leaked: %v", err)
	}

	prom := readFile(t, cfg.MetricsFile)
	if !strings.Contains(prom, `singbox_ruleset_downloads_total{result="error",target="asn"} 1`) {
		t.Errorf("metrics:\n%s", prom)
	}
	if !strings.Contains(prom, "\nsingbox_ruleset_last_success_timestamp_seconds 0\n") {
		t.Errorf("failed run recorded success:\n%s", prom)
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	t.Setenv(config.EnvMaxMindKey, "key")
	t.Setenv(config.EnvOutputDir, "env-out")

	cfg, err := loadConfig("", "flag-out", "run.prom", true)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.OutputDir != "flag-out" || cfg.MetricsFile != "run.prom" || !cfg.KeepWork {
		t.Fatalf("cfg = %+v", cfg)
	}

	cfg, err = loadConfig("", "", "", false)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.OutputDir != "env-out" || cfg.KeepWork {
		t.Fatalf("cfg = %+v", cfg)
	}
}
