// Package converter translates Clash/Surge rule lists into sing-box rule-set records.
package converter

import (
	"fmt"
	"sort"
	"strings"
)

// RuleKind represents the type of a rule.
type RuleKind int

const (
	RuleDomain RuleKind = iota
	RuleDomainSuffix
	RuleDomainKeyword
	RuleIPCIDR
	RuleIPASN
	RuleProcessName
)

func (k RuleKind) String() string {
	switch k {
	case RuleDomain:
		return "domain"
	case RuleDomainSuffix:
		return "domain_suffix"
	case RuleDomainKeyword:
		return "domain_keyword"
	case RuleIPCIDR:
		return "ip_cidr"
	case RuleIPASN:
		return "ip_asn"
	case RuleProcessName:
		return "process_name"
	default:
		return "unknown"
	}
}

// Format selects the line grammar of a rule source.
type Format int

const (
	// FormatClassical is a Clash rule-provider document: a "payload:" header
	// followed by "- TYPE,VALUE" items.
	FormatClassical Format = iota
	// FormatList is a Surge rule list: one "TYPE,VALUE" per line, "#" comments.
	FormatList
)

func (f Format) String() string {
	switch f {
	case FormatClassical:
		return "classical"
	case FormatList:
		return "list"
	default:
		return "unknown"
	}
}

// Rule represents a parsed rule line.
type Rule struct {
	Kind  RuleKind
	Value string
	ASN   uint32 // only for RuleIPASN
}

// Line error codes.
const (
	CodeFormat      = "FORMAT_ERROR"
	CodeUnknownKind = "UNKNOWN_KIND"
)

// LineError describes a rule line that was skipped.
type LineError struct {
	Source string
	Line   int // 1-based
	Text   string
	Code   string
	Type   string // rule type token, if one was read
	Cause  error
}

func (e *LineError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s:%d: %s: %q", e.Source, e.Line, e.Code, e.Text)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LineError) Unwrap() error { return e.Cause }

type stringSet map[string]struct{}

func (s stringSet) sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Accumulator collects rule values of one source, per kind, without duplicates.
type Accumulator struct {
	sets [RuleProcessName + 1]stringSet
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	a := &Accumulator{}
	for i := range a.sets {
		a.sets[i] = make(stringSet)
	}
	return a
}

// Add records a value. IP-ASN values are not stored; callers expand them into
// RuleIPCIDR values first.
func (a *Accumulator) Add(kind RuleKind, value string) {
	if kind == RuleIPASN || kind < 0 || int(kind) >= len(a.sets) {
		return
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	a.sets[kind][value] = struct{}{}
}

// Len returns the number of distinct values of a kind.
func (a *Accumulator) Len(kind RuleKind) int {
	if kind < 0 || int(kind) >= len(a.sets) {
		return 0
	}
	return len(a.sets[kind])
}

// Values returns the distinct values of a kind in sorted order.
func (a *Accumulator) Values(kind RuleKind) []string {
	if kind < 0 || int(kind) >= len(a.sets) {
		return nil
	}
	return a.sets[kind].sorted()
}
