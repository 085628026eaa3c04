// Package translator converts every rule source of a run into a sing-box
// rule set and its description page.
package translator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/senshinya/singbox-ruleset/internal/converter"
	"github.com/senshinya/singbox-ruleset/internal/metrics"
)

// TextFetcher downloads a remote rule list.
type TextFetcher interface {
	GetText(ctx context.Context, rawURL string) (string, error)
}

// Options configures a Translator.
type Options struct {
	OutputDir string
	Links     Links
}

// Translator writes one output directory per rule source.
type Translator struct {
	conv      *converter.Converter
	fetcher   TextFetcher
	metrics   *metrics.Recorder
	logger    *slog.Logger
	outputDir string
	links     Links
	written   map[string]string
}

// New creates a Translator. fetcher is only needed for TranslateExtra and
// rec may be nil.
func New(conv *converter.Converter, fetcher TextFetcher, rec *metrics.Recorder, logger *slog.Logger, opts Options) *Translator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Translator{
		conv:      conv,
		fetcher:   fetcher,
		metrics:   rec,
		logger:    logger,
		outputDir: opts.OutputDir,
		links:     opts.Links,
		written:   make(map[string]string),
	}
}

// TranslateLocal converts the entries of the extracted rule tree in order.
// The first failure stops the run; entries already written stay on disk.
func (t *Translator) TranslateLocal(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, err := SourceFile(e)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name, err)
		}
		if err := t.translate(e.Name, string(data), converter.FormatClassical, metrics.OriginLocal); err != nil {
			return err
		}
	}
	t.logger.Info("Finished translating Clash rules", "entries", len(entries))
	return nil
}

// TranslateExtra downloads and converts the configured Surge lists, in name
// order. A failed download stops the run.
func (t *Translator) TranslateExtra(ctx context.Context, extras map[string]string) error {
	if len(extras) == 0 {
		return nil
	}
	if t.fetcher == nil {
		return fmt.Errorf("no fetcher configured for %d extra sources", len(extras))
	}
	t.logger.Info("Translating extra Surge rules", "count", len(extras))

	names := make([]string, 0, len(extras))
	for name := range extras {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := t.fetcher.GetText(ctx, extras[name])
		t.metrics.Download("extra", len(text), err)
		if err != nil {
			return fmt.Errorf("download %s: %w", name, err)
		}
		t.logger.Info("Extra rule downloaded", "name", name, "bytes", len(text))
		if err := t.translate(name, text, converter.FormatList, metrics.OriginRemote); err != nil {
			return err
		}
	}
	return nil
}

func (t *Translator) translate(name, content string, format converter.Format, origin string) error {
	res := t.conv.Convert(name, content, format)
	for _, w := range res.Warnings {
		t.metrics.LineWarning(w.Code)
	}

	if _, dup := t.written[name]; dup {
		t.logger.Warn("Entry written twice, overwriting", "name", name)
	}
	if err := writeArtifacts(filepath.Join(t.outputDir, name), name, res.RuleSet, t.links); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	t.written[name] = t.links.CDN(name)

	sizes := make(map[string]int)
	for _, k := range []converter.RuleKind{
		converter.RuleDomain,
		converter.RuleDomainSuffix,
		converter.RuleDomainKeyword,
		converter.RuleIPCIDR,
		converter.RuleProcessName,
	} {
		sizes[k.String()] = res.RuleSet.Count(k)
	}
	t.metrics.Entry(origin, sizes)

	t.logger.Debug("Translated", "name", name, "format", format, "groups", len(res.RuleSet.Rules), "warnings", len(res.Warnings))
	return nil
}

// Written returns the names of the entries written so far, sorted.
func (t *Translator) Written() []string {
	names := make([]string, 0, len(t.written))
	for name := range t.written {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteIndex writes index.json into the output directory.
func (t *Translator) WriteIndex() error {
	if err := os.MkdirAll(t.outputDir, 0o755); err != nil {
		return err
	}
	return writeIndex(filepath.Join(t.outputDir, indexName), t.written)
}
