package fetcher

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for archive entries that would land outside the
// destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// ExtractFile unpacks the ZIP archive at zipPath into dest. With stripOuter
// the top-level folder of the archive (GitHub and MaxMind archives have
// exactly one) is removed from every path and entries outside it are skipped.
// It returns the paths of the files written.
func ExtractFile(zipPath, dest string, stripOuter bool) ([]string, error) {
	rc, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer rc.Close()
	return extract(&rc.Reader, dest, stripOuter)
}

func extract(reader *zip.Reader, dest string, stripOuter bool) ([]string, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, err
	}

	outer := ""
	if stripOuter && len(reader.File) > 0 {
		outer, _, _ = strings.Cut(reader.File[0].Name, "/")
		outer += "/"
	}

	var written []string
	for _, file := range reader.File {
		name := file.Name
		if stripOuter {
			var ok bool
			name, ok = strings.CutPrefix(name, outer)
			if !ok || name == "" {
				continue
			}
		}

		target, err := safeJoin(dest, name)
		if err != nil {
			return written, fmt.Errorf("%s: %w", file.Name, err)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
			continue
		}
		if err := writeEntry(file, target); err != nil {
			return written, fmt.Errorf("extract %s: %w", file.Name, err)
		}
		written = append(written, target)
	}
	return written, nil
}

func writeEntry(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func safeJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", ErrUnsafePath
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return target, nil
}
