// Package fetcher downloads rule sources and datasets and unpacks ZIP archives.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultRuleSourceURL = "https://github.com/blackmatrix7/ios_rule_script/archive/refs/heads/master.zip"
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"
	DefaultTimeout       = 5 * time.Minute
)

// TransportError reports a failed download. URL has credentials redacted.
type TransportError struct {
	URL    string
	Status int // HTTP status, 0 if no response was received
	Cause  error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("download %s failed: %d %s", e.URL, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("download %s failed: %v", e.URL, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Fetcher handles downloads
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewFetcher creates a new Fetcher
func NewFetcher(timeout time.Duration, userAgent string, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Download fetches rawURL into memory. Any status other than 200 is an error.
func (f *Fetcher) Download(ctx context.Context, rawURL string) ([]byte, error) {
	shown := RedactURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: shown, Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: shown, Cause: scrub(err, rawURL, shown)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{URL: shown, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: shown, Status: resp.StatusCode, Cause: fmt.Errorf("failed to read response: %w", scrub(err, rawURL, shown))}
	}

	f.logger.Debug("Download complete", "url", shown, "bytes", len(data), "elapsed", time.Since(start))
	return data, nil
}

// DownloadFile fetches rawURL and writes the body to path. It returns the
// number of bytes written.
func (f *Fetcher) DownloadFile(ctx context.Context, rawURL, path string) (int, error) {
	data, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return len(data), nil
}

// GetText fetches rawURL as text.
func (f *Fetcher) GetText(ctx context.Context, rawURL string) (string, error) {
	data, err := f.Download(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
