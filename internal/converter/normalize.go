package converter

// RuleSetVersion is the sing-box source rule-set format version.
const RuleSetVersion = 2

// RuleGroup is one headless rule of a sing-box rule set. Fields are declared
// in key order so the encoded document has sorted keys.
type RuleGroup struct {
	Domain        []string `json:"domain,omitempty"`
	DomainKeyword []string `json:"domain_keyword,omitempty"`
	DomainSuffix  []string `json:"domain_suffix,omitempty"`
	IPCIDR        []string `json:"ip_cidr,omitempty"`
	ProcessName   []string `json:"process_name,omitempty"`
}

// RuleSet is a sing-box source rule set.
type RuleSet struct {
	Rules   []RuleGroup `json:"rules"`
	Version int         `json:"version"`
}

// Normalize builds the rule set for an accumulator. Domain and IP values share
// the first group; process names get a group of their own. Empty lists and
// empty groups are left out.
func Normalize(acc *Accumulator) RuleSet {
	rs := RuleSet{
		Rules:   make([]RuleGroup, 0, 2),
		Version: RuleSetVersion,
	}
	if acc == nil {
		return rs
	}

	match := RuleGroup{
		Domain:        acc.Values(RuleDomain),
		DomainKeyword: acc.Values(RuleDomainKeyword),
		DomainSuffix:  acc.Values(RuleDomainSuffix),
		IPCIDR:        acc.Values(RuleIPCIDR),
	}
	if len(match.Domain)+len(match.DomainKeyword)+len(match.DomainSuffix)+len(match.IPCIDR) > 0 {
		rs.Rules = append(rs.Rules, match)
	}

	if names := acc.Values(RuleProcessName); len(names) > 0 {
		rs.Rules = append(rs.Rules, RuleGroup{ProcessName: names})
	}
	return rs
}

// Count returns the number of values of a kind across all groups.
func (rs RuleSet) Count(kind RuleKind) int {
	n := 0
	for _, g := range rs.Rules {
		switch kind {
		case RuleDomain:
			n += len(g.Domain)
		case RuleDomainSuffix:
			n += len(g.DomainSuffix)
		case RuleDomainKeyword:
			n += len(g.DomainKeyword)
		case RuleIPCIDR:
			n += len(g.IPCIDR)
		case RuleProcessName:
			n += len(g.ProcessName)
		}
	}
	return n
}
