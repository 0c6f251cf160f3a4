package ingest

import (
	"fmt"
	"net/url"
)

// splitURL extracts (domainName, domainURL) from a page URL the way the
// ingester's §4.5.1 step 1 requires: domainName is the scheme+host, minus
// any trailing slash; domainURL is the scheme+host exactly as it appears
// in the URL's authority section. Adapted from the teacher's
// internal/engine.CanonicalizeURL host-handling, trimmed to the one
// normalization the ingester needs rather than full dedup canonicalization.
func splitURL(rawURL string) (domainName string, domainURL string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("url has no scheme/host")
	}
	base := u.Scheme + "://" + u.Host
	return base, base, nil
}
