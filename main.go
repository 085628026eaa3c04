// sing-box Ruleset Generator
// Converts blackmatrix7 Clash and Surge rule lists into sing-box source rule sets
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/senshinya/singbox-ruleset/internal/asn"
	"github.com/senshinya/singbox-ruleset/internal/config"
	"github.com/senshinya/singbox-ruleset/internal/converter"
	"github.com/senshinya/singbox-ruleset/internal/fetcher"
	"github.com/senshinya/singbox-ruleset/internal/metrics"
	"github.com/senshinya/singbox-ruleset/internal/translator"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Config file (.yaml, .yml or .toml, optional)")
	output := flag.String("output", "", "Output directory (overrides output_dir)")
	metricsFile := flag.String("metrics-file", "", "Write run metrics to this textfile (overrides metrics_file)")
	keepWork := flag.Bool("keep-work", false, "Keep downloaded archives and extracted files")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := loadConfig(*configPath, *output, *metricsFile, *keepWork)
	if err != nil {
		logger.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("Run failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig(path, output, metricsFile string, keepWork bool) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if output != "" {
		cfg.OutputDir = output
	}
	if metricsFile != "" {
		cfg.MetricsFile = metricsFile
	}
	if keepWork {
		cfg.KeepWork = true
	}
	return cfg, cfg.Validate()
}

// run executes one generation pass. Entries written before a failure stay in
// the output directory.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) (err error) {
	start := time.Now()
	rec := metrics.New()
	defer func() {
		rec.Finish(start, err == nil)
		if cfg.MetricsFile == "" {
			return
		}
		if werr := rec.WriteTextfile(cfg.MetricsFile); werr != nil {
			logger.Warn("Failed to write metrics", "path", cfg.MetricsFile, "err", werr)
		}
	}()

	if err := prepareOutput(cfg.OutputDir, logger); err != nil {
		return err
	}

	ws, err := newWorkspace(cfg.WorkDir)
	if err != nil {
		return err
	}
	defer func() {
		if cfg.KeepWork {
			logger.Info("Keeping work directory", "path", ws.dir)
			return
		}
		if cerr := ws.cleanup(); cerr != nil {
			logger.Warn("Failed to clean work directory", "path", ws.dir, "err", cerr)
		}
	}()

	f := fetcher.NewFetcher(time.Duration(cfg.HTTPTimeout), cfg.UserAgent, logger.With("component", "fetcher"))

	index, err := loadASN(ctx, cfg, f, ws, rec, logger)
	if err != nil {
		return err
	}
	rec.ASNNetworks(asn.IPv4.String(), index.Blocks(asn.IPv4))
	rec.ASNNetworks(asn.IPv6.String(), index.Blocks(asn.IPv6))
	logger.Info("ASN tables loaded",
		"ipv4_asns", index.Len(asn.IPv4), "ipv4_blocks", index.Blocks(asn.IPv4),
		"ipv6_asns", index.Len(asn.IPv6), "ipv6_blocks", index.Blocks(asn.IPv6))

	root, err := prepareRules(ctx, cfg, f, ws, rec, logger)
	if err != nil {
		return err
	}

	entries, err := translator.Discover(root, cfg.Source.Skip, cfg.Source.Unwrap)
	if err != nil {
		return err
	}
	logger.Info("Discovered rule entries", "root", root, "count", len(entries))

	conv := converter.NewConverter(index, logger.With("component", "converter"))
	tr := translator.New(conv, f, rec, logger.With("component", "translator"), translator.Options{
		OutputDir: cfg.OutputDir,
		Links:     translator.Links{Repo: cfg.Publish.Repo, Branch: cfg.Publish.Branch},
	})
	if err := tr.TranslateLocal(ctx, entries); err != nil {
		return err
	}
	if err := tr.TranslateExtra(ctx, cfg.Extra); err != nil {
		return err
	}
	if err := tr.WriteIndex(); err != nil {
		return err
	}

	logger.Info("Done", "rule_sets", len(tr.Written()), "output", cfg.OutputDir, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// prepareOutput starts every run from an empty output directory.
func prepareOutput(dir string, logger *slog.Logger) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		logger.Warn("Output directory exists, deleting", "path", dir)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove output directory: %w", err)
		}
	case err == nil:
		return fmt.Errorf("output path %s is not a directory", dir)
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// workspace holds downloaded archives and their extracted contents.
type workspace struct {
	dir     string
	temp    bool
	created []string
}

func newWorkspace(dir string) (*workspace, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "singbox-ruleset-")
		if err != nil {
			return nil, err
		}
		return &workspace{dir: tmp, temp: true}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &workspace{dir: dir}, nil
}

// path returns a path inside the workspace and marks it for cleanup.
func (w *workspace) path(name string) string {
	p := filepath.Join(w.dir, name)
	w.created = append(w.created, p)
	return p
}

func (w *workspace) cleanup() error {
	if w.temp {
		return os.RemoveAll(w.dir)
	}
	var errs []error
	for _, p := range w.created {
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func loadASN(ctx context.Context, cfg config.Config, f *fetcher.Fetcher, ws *workspace, rec *metrics.Recorder, logger *slog.Logger) (*asn.Index, error) {
	switch {
	case cfg.ASN.MMDB != "":
		logger.Info("Loading ASN database", "path", cfg.ASN.MMDB)
		return asn.LoadMMDB(cfg.ASN.MMDB)
	case cfg.ASN.IPv4CSV != "":
		logger.Info("Loading ASN tables", "ipv4", cfg.ASN.IPv4CSV, "ipv6", cfg.ASN.IPv6CSV)
		return asn.LoadCSV(cfg.ASN.IPv4CSV, cfg.ASN.IPv6CSV)
	}

	url := fetcher.ASNDownloadURL(cfg.ASN.URL, cfg.MaxMindKey)
	zipPath := ws.path("asn.zip")
	logger.Info("Downloading ASN tables", "url", fetcher.RedactURL(url))
	n, err := f.DownloadFile(ctx, url, zipPath)
	rec.Download("asn", n, err)
	if err != nil {
		return nil, fmt.Errorf("download ASN tables: %w", err)
	}

	dest := ws.path("asn")
	if _, err := fetcher.ExtractFile(zipPath, dest, true); err != nil {
		return nil, fmt.Errorf("extract ASN tables: %w", err)
	}
	return asn.LoadCSV(filepath.Join(dest, asn.IPv4TableName), filepath.Join(dest, asn.IPv6TableName))
}

// prepareRules returns the directory holding one subdirectory per rule entry.
func prepareRules(ctx context.Context, cfg config.Config, f *fetcher.Fetcher, ws *workspace, rec *metrics.Recorder, logger *slog.Logger) (string, error) {
	if cfg.Source.Dir != "" {
		return filepath.Join(cfg.Source.Dir, cfg.Source.Root), nil
	}

	zipPath := ws.path("ios_rule_script.zip")
	logger.Info("Downloading rule archive", "url", cfg.Source.URL)
	n, err := f.DownloadFile(ctx, cfg.Source.URL, zipPath)
	rec.Download("rules", n, err)
	if err != nil {
		return "", fmt.Errorf("download rule archive: %w", err)
	}

	dest := ws.path("ios_rule_script")
	files, err := fetcher.ExtractFile(zipPath, dest, false)
	if err != nil {
		return "", fmt.Errorf("extract rule archive: %w", err)
	}
	logger.Debug("Rule archive extracted", "files", len(files))
	return filepath.Join(dest, cfg.Source.Root), nil
}
