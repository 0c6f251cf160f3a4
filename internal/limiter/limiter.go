// Package limiter decides whether a candidate URL fits within its
// domain's concurrent-work budget (component C3). It holds no state of
// its own — every Admit call reads the current worker snapshot and
// limiter row from the catalog.
package limiter

import (
	"context"
	"math"
	"net/url"

	"github.com/pagewarden/dispatch/internal/catalog"
)

// DefaultAvgLinksPerPage is used when a caller passes zero.
const DefaultAvgLinksPerPage = 10

// Limiter computes admission decisions against a catalog snapshot.
type Limiter struct {
	store catalog.Store
}

// New returns a Limiter reading worker/limiter state from store.
func New(store catalog.Store) *Limiter {
	return &Limiter{store: store}
}

// Allowed computes allowed(d) = max(1, ceil(limiterValue / avgLinksPerPage))
// per spec.md §4.3. A nil limiter row means unlimited, which this module
// represents as a very large allowance rather than true infinity so the
// admission comparison below stays a plain integer comparison.
func Allowed(limiterValue int, avgLinksPerPage int) int {
	if avgLinksPerPage <= 0 {
		avgLinksPerPage = DefaultAvgLinksPerPage
	}
	if limiterValue <= 0 {
		return math.MaxInt32
	}
	allowed := int(math.Ceil(float64(limiterValue) / float64(avgLinksPerPage)))
	if allowed < 1 {
		return 1
	}
	return allowed
}

// Admit reports whether a worker may take candidateURL, which belongs to
// domainURL, given the fleet's current busy counts.
func (l *Limiter) Admit(ctx context.Context, domainURL, candidateURL string, avgLinksPerPage int) (bool, error) {
	lim, err := l.store.LimiterFor(ctx, domainURL)
	if err != nil {
		return false, err
	}
	value := 0
	if lim != nil {
		value = lim.Value
	}

	workers, err := l.store.ListWorkers(ctx)
	if err != nil {
		return false, err
	}

	host := hostOf(domainURL)
	busy := 0
	for _, w := range workers {
		if w.CurrentURL == "" {
			continue
		}
		if hostOf(w.CurrentURL) == host {
			busy++
		}
	}

	return busy < Allowed(value, avgLinksPerPage), nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Hostname()
}
