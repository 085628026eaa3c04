package fetcher

import (
	"errors"
	"net/url"
	"strings"
)

const (
	// DefaultASNURL is the GeoLite2-ASN CSV download endpoint. The key is
	// substituted for LicenseKeyPlaceholder.
	DefaultASNURL         = "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-ASN-CSV&license_key={license_key}&suffix=zip"
	LicenseKeyPlaceholder = "{license_key}"

	redacted = "REDACTED"
)

var sensitiveParams = []string{"license_key", "token", "key"}

// ASNDownloadURL fills the license key into a download URL template.
func ASNDownloadURL(template, licenseKey string) string {
	if template == "" {
		template = DefaultASNURL
	}
	return strings.ReplaceAll(template, LicenseKeyPlaceholder, url.QueryEscape(licenseKey))
}

// RedactURL masks credentials in query parameters and userinfo so the URL can
// be logged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	q := u.Query()
	changed := false
	for _, p := range sensitiveParams {
		if q.Has(p) {
			q.Set(p, redacted)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// scrub replaces the raw URL inside an error message; *url.Error embeds it.
func scrub(err error, raw, shown string) error {
	if err == nil || raw == shown {
		return err
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: shown, Err: ue.Err}
	}
	return err
}
