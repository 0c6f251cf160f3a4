// Package catalog is the durable store of domains, pages, workers,
// limiters and settings (component C1). It is the only place mutable
// shared state lives across process restarts; the scheduler and ingester
// hold nothing in memory between calls.
package catalog

import (
	"context"

	"github.com/pagewarden/dispatch/internal/model"
)

// Store is the contract the scheduler and ingester consume. Every write
// method is expected to apply the deadlock-retry discipline internally
// (see retry.go) — callers never retry themselves.
type Store interface {
	// ActiveDomains returns active domains ordered by id ascending.
	ActiveDomains(ctx context.Context) ([]model.Domain, error)

	// TopPagesForDomain returns up to limit pages of domain, ordered by
	// score descending, ties broken by id ascending.
	TopPagesForDomain(ctx context.Context, domainID int64, limit int) ([]model.Page, error)

	// PageByURLHash returns at most one page for the given hash.
	PageByURLHash(ctx context.Context, hash string) (*model.Page, error)

	// DomainByNames returns the first domain matching any of the given
	// name spellings, or nil if none match.
	DomainByNames(ctx context.Context, names []string) (*model.Domain, error)

	// InsertDomain inserts a new domain, assigning it an id.
	InsertDomain(ctx context.Context, d *model.Domain) error

	// InsertPage inserts a new page, assigning it an id. Returns
	// model.ErrDuplicate if a concurrent insert won the race on url_hash.
	InsertPage(ctx context.Context, p *model.Page) error

	// AddToPageScore adds delta to a single page's score.
	AddToPageScore(ctx context.Context, pageID int64, delta float64) error

	// AddToAllPageScores applies score += delta to every page as one
	// statement.
	AddToAllPageScores(ctx context.Context, delta float64) error

	// PageCount returns the total number of pages across all domains.
	PageCount(ctx context.Context) (int64, error)

	// ActiveDomainPageCount returns the number of pages belonging to
	// active domains — the basis of NextJobsCount.
	ActiveDomainPageCount(ctx context.Context) (int64, error)

	// PagesForActiveDomains returns pages across all active domains,
	// ordered by score descending, for bulk operator views.
	PagesForActiveDomains(ctx context.Context, offset, limit int) ([]model.Page, error)

	// ListWorkers returns all registered workers.
	ListWorkers(ctx context.Context) ([]model.Worker, error)

	// LimiterFor returns the limiter row for a domain URL, or nil if
	// unlimited.
	LimiterFor(ctx context.Context, domainURL string) (*model.Limiter, error)

	// UpsertLimiter creates or updates the limiter value for a domain URL.
	UpsertLimiter(ctx context.Context, domainURL string, value int) error

	// LoadSettings returns the single settings row, or zero values if no
	// row has been stored yet; it does not write one.
	LoadSettings(ctx context.Context) (*model.Settings, error)

	// SetLambdaScore overwrites the pending lambda score.
	SetLambdaScore(ctx context.Context, value float64) error
}
