// Package converter translates Clash/Surge rule lists into sing-box rule-set records.
package converter

import (
	"io"
	"log/slog"
)

// ASNExpander resolves an autonomous system number into CIDR blocks.
type ASNExpander interface {
	Expand(asn uint32) []string
}

// Converter handles rule conversion
type Converter struct {
	asn    ASNExpander
	logger *slog.Logger
}

// NewConverter creates a new Converter. A nil expander expands every ASN to nothing.
func NewConverter(asn ASNExpander, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Converter{
		asn:    asn,
		logger: logger,
	}
}

// Result is the outcome of converting one rule source.
type Result struct {
	RuleSet  RuleSet
	Warnings []*LineError
}

// Convert parses upstream content and normalizes it into a sing-box rule set.
func (c *Converter) Convert(source, content string, format Format) Result {
	acc, warnings := c.Parse(source, content, format)
	return Result{
		RuleSet:  Normalize(acc),
		Warnings: warnings,
	}
}
