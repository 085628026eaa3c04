package converter

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/senshinya/singbox-ruleset/internal/asn"
)

const payloadMarker = "payload:"

var ruleTypes = map[string]RuleKind{
	"DOMAIN":         RuleDomain,
	"DOMAIN-SUFFIX":  RuleDomainSuffix,
	"DOMAIN-KEYWORD": RuleDomainKeyword,
	"IP-CIDR":        RuleIPCIDR,
	"IP-CIDR6":       RuleIPCIDR,
	"IP-ASN":         RuleIPASN,
	"PROCESS-NAME":   RuleProcessName,
}

// Types recognised in Surge lists that have no sing-box counterpart here.
var listIgnoredTypes = map[string]bool{
	"USER-AGENT": true,
}

var (
	errNotListItem  = errors.New("expected a \"- \" list item")
	errMissingValue = errors.New("missing value after rule type")
	errEmptyType    = errors.New("empty rule type")
)

// Parse reads one rule source into an accumulator. Lines that cannot be used
// are logged, returned as warnings and skipped; they never abort the parse.
func (c *Converter) Parse(source, content string, format Format) (*Accumulator, []*LineError) {
	acc := NewAccumulator()
	var warnings []*LineError

	inPayload := format != FormatClassical
	for i, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)

		if !inPayload {
			if strings.Contains(line, payloadMarker) {
				inPayload = true
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			rule Rule
			keep bool
			lerr *LineError
		)
		if format == FormatClassical {
			rule, keep, lerr = parseClassicalLine(line)
		} else {
			rule, keep, lerr = parseListLine(line)
		}
		if lerr != nil {
			lerr.Source = source
			lerr.Line = i + 1
			lerr.Text = line
			c.warn(lerr)
			warnings = append(warnings, lerr)
			continue
		}
		if !keep {
			continue
		}
		c.apply(acc, rule)
	}

	return acc, warnings
}

func (c *Converter) apply(acc *Accumulator, rule Rule) {
	if rule.Kind != RuleIPASN {
		acc.Add(rule.Kind, rule.Value)
		return
	}
	var cidrs []string
	if c.asn != nil {
		cidrs = c.asn.Expand(rule.ASN)
	}
	if len(cidrs) == 0 {
		c.logger.Debug("ASN has no known networks", "asn", rule.ASN)
	}
	for _, cidr := range cidrs {
		acc.Add(RuleIPCIDR, cidr)
	}
}

func (c *Converter) warn(e *LineError) {
	if e.Code == CodeUnknownKind {
		c.logger.Warn("Unknown rule type", "type", e.Type, "source", e.Source, "line", e.Line)
		return
	}
	c.logger.Warn("Skipping malformed rule", "source", e.Source, "line", e.Line, "text", e.Text, "err", e.Cause)
}

// parseClassicalLine parses a "- TYPE,VALUE" item of a Clash rule provider.
func parseClassicalLine(line string) (Rule, bool, *LineError) {
	item, ok := strings.CutPrefix(line, "-")
	if !ok {
		return Rule{}, false, &LineError{Code: CodeFormat, Cause: errNotListItem}
	}
	item = strings.TrimSpace(item)
	if strings.HasPrefix(item, "'") || strings.HasPrefix(item, "\"") {
		var s string
		if err := yaml.Unmarshal([]byte(item), &s); err != nil {
			return Rule{}, false, &LineError{Code: CodeFormat, Cause: err}
		}
		item = s
	}
	return parseEntry(item, nil)
}

// parseListLine parses a "TYPE,VALUE" line of a Surge rule list.
func parseListLine(line string) (Rule, bool, *LineError) {
	return parseEntry(line, listIgnoredTypes)
}

// parseEntry splits "TYPE,VALUE[,OPTION...]". Options such as no-resolve are
// dropped. ok is false for recognised types that are ignored.
func parseEntry(entry string, ignored map[string]bool) (rule Rule, ok bool, lerr *LineError) {
	parts := strings.SplitN(entry, ",", 3)
	typ := strings.ToUpper(strings.TrimSpace(parts[0]))
	if typ == "" {
		return Rule{}, false, &LineError{Code: CodeFormat, Cause: errEmptyType}
	}
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return Rule{}, false, &LineError{Code: CodeFormat, Type: typ, Cause: errMissingValue}
	}
	value := strings.TrimSpace(parts[1])

	kind, known := ruleTypes[typ]
	if !known {
		if ignored[typ] {
			return Rule{}, false, nil
		}
		return Rule{}, false, &LineError{Code: CodeUnknownKind, Type: typ}
	}

	if kind == RuleIPASN {
		number, err := asn.ParseNumber(value)
		if err != nil {
			return Rule{}, false, &LineError{Code: CodeFormat, Type: typ, Cause: fmt.Errorf("invalid ASN %q: %w", value, err)}
		}
		return Rule{Kind: kind, Value: value, ASN: number}, true, nil
	}
	return Rule{Kind: kind, Value: value}, true, nil
}
