// Package fetcher adapts the HTTP client the ingester's fetch probe needs
// down to a single operation: issue a GET, report the status code, body
// and effective (post-redirect) URL. Proxy rotation, stealth browsers and
// captcha handling are out of scope here — the core validates candidate
// pages, it does not evade detection.
package fetcher

import "context"

// Result is the normalized response the ingester's fetch probe consumes.
type Result struct {
	StatusCode   int
	Body         []byte
	EffectiveURL string
}

// Fetcher is the contract the ingester consumes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}
