package fetcher

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func buildZip(t *testing.T, files map[string]string, dirs ...string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, d := range dirs {
		if _, err := zw.Create(d); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtract_StripOuter(t *testing.T) {
	zipPath := buildZip(t, map[string]string{
		"GeoLite2-ASN-CSV_20240101/GeoLite2-ASN-Blocks-IPv4.csv": "network,asn\n",
		"GeoLite2-ASN-CSV_20240101/GeoLite2-ASN-Blocks-IPv6.csv": "network,asn\n",
		"GeoLite2-ASN-CSV_20240101/LICENSE.txt":                  "license",
	}, "GeoLite2-ASN-CSV_20240101/")

	dest := t.TempDir()
	written, err := ExtractFile(zipPath, dest, true)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(written) != 3 {
		t.Fatalf("written = %v", written)
	}
	for _, name := range []string{"GeoLite2-ASN-Blocks-IPv4.csv", "GeoLite2-ASN-Blocks-IPv6.csv", "LICENSE.txt"} {
		if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestExtract_KeepLayout(t *testing.T) {
	zipPath := buildZip(t, map[string]string{
		"ios_rule_script-master/rule/Clash/Apple/Apple.yaml": "payload:\n",
	})

	dest := t.TempDir()
	if _, err := ExtractFile(zipPath, dest, false); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "ios_rule_script-master", "rule", "Clash", "Apple", "Apple.yaml")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
}

func TestExtractFile_SingleFile(t *testing.T) {
	zipPath := buildZip(t, map[string]string{"outer/a.txt": "a"})
	dest := t.TempDir()
	if _, err := ExtractFile(zipPath, dest, true); err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	if err != nil || string(got) != "a" {
		t.Fatalf("a.txt = %q, %v", got, err)
	}
}

func TestExtract_UnsafePath(t *testing.T) {
	zipPath := buildZip(t, map[string]string{"../evil.txt": "x"})
	_, err := ExtractFile(zipPath, t.TempDir(), false)
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath, got %v", err)
	}
}

func TestExtract_NotZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractFile(path, t.TempDir(), false); err == nil {
		t.Fatal("expected error")
	}
}
