package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/senshinya/singbox-ruleset/internal/converter"
)

const (
	readmeName = "README.md"
	indexName  = "index.json"
)

var readmeTemplate = template.Must(template.New("readme").Parse(`# {{.Name}}

#### 规则链接

**Github**
{{.GitHub}}

**CDN**
{{.CDN}}`))

// Links builds the download locations of compiled rule sets.
type Links struct {
	Repo   string // owner/name
	Branch string
}

// GitHub returns the raw.githubusercontent.com URL of the entry's .srs file.
func (l Links) GitHub(name string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/rule/%s/%s.srs", l.Repo, l.Branch, name, name)
}

// CDN returns the jsDelivr URL of the entry's .srs file.
func (l Links) CDN(name string) string {
	return fmt.Sprintf("https://cdn.jsdelivr.net/gh/%s@%s/rule/%s/%s.srs", l.Repo, l.Branch, name, name)
}

// RenderReadme renders the description page of one entry.
func RenderReadme(name string, links Links) (string, error) {
	var b strings.Builder
	err := readmeTemplate.Execute(&b, struct {
		Name, GitHub, CDN string
	}{name, links.GitHub(name), links.CDN(name)})
	return b.String(), err
}

// writeArtifacts writes <dir>/<name>.json and <dir>/README.md.
func writeArtifacts(dir, name string, rs converter.RuleSet, links Links) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	body, err := converter.RenderJSON(rs)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".json"), body, 0o644); err != nil {
		return err
	}

	readme, err := RenderReadme(name, links)
	if err != nil {
		return fmt.Errorf("render readme %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(dir, readmeName), []byte(readme), 0o644)
}

// writeIndex writes a name -> CDN URL map, keys sorted.
func writeIndex(path string, index map[string]string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(index); err != nil {
		return err
	}

	// Write to temp file first, then rename for atomicity
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
