package converter

import (
	"bytes"
	"encoding/json"
)

// RenderJSON renders a rule set as an indented sing-box source document with
// sorted keys.
func RenderJSON(rs RuleSet) ([]byte, error) {
	if rs.Rules == nil {
		rs.Rules = []RuleGroup{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
