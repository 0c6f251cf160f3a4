// Package model holds the catalog's persistent entities: domains, pages,
// workers, limiters and settings, plus the job the scheduler hands back to
// a worker. Entities resolve each other through ids, never back-pointers —
// the catalog is the only place a graph gets walked.
package model

import "time"

// Domain is a registered host. Only active domains contribute candidates
// to the scheduler.
type Domain struct {
	ID       int64  `bson:"_id"`
	Name     string `bson:"name"`
	URL      string `bson:"url"`
	URLHash  string `bson:"url_hash"`
	IsActive bool   `bson:"is_active"`
}

// NameVariants returns the set of domain-name spellings the ingester
// checks when looking up a possibly-already-registered domain: the name
// itself, without a trailing slash, and with one.
func NameVariants(name string) []string {
	trimmed := trimTrailingSlash(name)
	return []string{name, trimmed, trimmed + "/"}
}

func trimTrailingSlash(s string) string {
	if len(s) > 0 && s[len(s)-1] == '/' {
		return s[:len(s)-1]
	}
	return s
}

// Worker is a review process. CurrentURL, when set, names the page it is
// presently fetching; the limiter uses it to count in-flight work per
// domain.
type Worker struct {
	ID         string `bson:"_id"`
	CurrentURL string `bson:"current_url"`
	UpdatedAt  time.Time `bson:"updated_at"`
}
