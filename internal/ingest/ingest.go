// Package ingest adds new pages (and lazily their domains) to the
// catalog: URL validation, fetch probe, redirect check, upsert with score
// accumulation, cache counter maintenance, new-page/new-domain event
// emission (component C5).
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pagewarden/dispatch/internal/cache"
	"github.com/pagewarden/dispatch/internal/catalog"
	"github.com/pagewarden/dispatch/internal/events"
	"github.com/pagewarden/dispatch/internal/fetcher"
	"github.com/pagewarden/dispatch/internal/model"
	"github.com/pagewarden/dispatch/internal/observability"
)

// Ingester implements AddPage against a Store, Cache, Fetcher and
// Publisher.
type Ingester struct {
	store                        catalog.Store
	cache                        cache.Cache
	fetch                        fetcher.Fetcher
	publisher                    events.Publisher
	metrics                      *observability.Metrics
	defaultConcurrentConnections int
	logger                       *slog.Logger
}

// New returns an Ingester. defaultConcurrentConnections seeds the
// limiter value registered for newly discovered domains. metrics may be
// nil, in which case observation is skipped.
func New(store catalog.Store, c cache.Cache, f fetcher.Fetcher, pub events.Publisher, metrics *observability.Metrics, defaultConcurrentConnections int, logger *slog.Logger) *Ingester {
	return &Ingester{
		store:                        store,
		cache:                        c,
		fetch:                        f,
		publisher:                    pub,
		metrics:                      metrics,
		defaultConcurrentConnections: defaultConcurrentConnections,
		logger:                       logger.With("component", "ingester"),
	}
}

func (ing *Ingester) observeRejected(reason model.RejectReason) {
	if ing.metrics != nil {
		ing.metrics.PagesRejected.WithLabelValues(string(reason)).Inc()
	}
}

// AddPage runs the state machine of spec.md §4.5.2: parse, fetch probe,
// status gate, redirect gate, domain upsert, page upsert. On success it
// returns the page's UUID; on rejection it returns a *model.RejectError,
// never a panic.
func (ing *Ingester) AddPage(ctx context.Context, rawURL string, score float64) (string, error) {
	domainName, domainURL, err := splitURL(rawURL)
	if err != nil || domainName == "" {
		ing.observeRejected(model.ReasonInvalidURL)
		return "", &model.RejectError{
			Reason:  model.ReasonInvalidURL,
			URL:     rawURL,
			Details: "domain name could not be determined",
		}
	}
	if len(rawURL) > model.MaxURLLength {
		ing.observeRejected(model.ReasonInvalidURL)
		return "", &model.RejectError{
			Reason:  model.ReasonInvalidURL,
			URL:     rawURL,
			Details: fmt.Sprintf("url longer than %d bytes", model.MaxURLLength),
		}
	}

	ing.logger.Debug("fetching candidate", "url", rawURL)
	result, err := ing.fetch.Fetch(ctx, rawURL)
	if err != nil {
		ing.observeRejected(model.ReasonFetchError)
		return "", &model.RejectError{
			Reason:  model.ReasonFetchError,
			URL:     rawURL,
			Details: err.Error(),
		}
	}

	if result.StatusCode >= 400 {
		ing.observeRejected(model.ReasonInvalidURL)
		return "", &model.RejectError{
			Reason:     model.ReasonInvalidURL,
			URL:        rawURL,
			StatusCode: result.StatusCode,
			Details:    excerpt(result.Body),
		}
	}

	if result.EffectiveURL != "" && result.EffectiveURL != rawURL {
		ing.observeRejected(model.ReasonRedirect)
		return "", &model.RejectError{
			Reason:       model.ReasonRedirect,
			URL:          rawURL,
			EffectiveURL: result.EffectiveURL,
		}
	}

	domain, err := ing.upsertDomain(ctx, domainName, domainURL)
	if err != nil {
		return "", fmt.Errorf("%w: upsert domain: %v", model.ErrCatalogUnavailable, err)
	}

	pageUUID, err := ing.upsertPage(ctx, rawURL, score, domain)
	if err != nil {
		return "", fmt.Errorf("%w: upsert page: %v", model.ErrCatalogUnavailable, err)
	}

	if ing.metrics != nil {
		ing.metrics.PagesIngested.Inc()
	}
	return pageUUID, nil
}

func (ing *Ingester) upsertDomain(ctx context.Context, name, domainURL string) (*model.Domain, error) {
	existing, err := ing.store.DomainByNames(ctx, model.NameVariants(name))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	d := &model.Domain{
		Name:     name,
		URL:      domainURL,
		URLHash:  model.HashURL(domainURL),
		IsActive: true,
	}
	if err := ing.store.InsertDomain(ctx, d); err != nil {
		return nil, err
	}

	ing.publisher.Publish(ctx, events.NewDomainPayload(domainURL))

	if err := ing.store.UpsertLimiter(ctx, domainURL, ing.defaultConcurrentConnections); err != nil {
		ing.logger.Warn("failed to register default limiter for new domain", "domain", domainURL, "error", err)
	}

	return d, nil
}

func (ing *Ingester) upsertPage(ctx context.Context, rawURL string, score float64, domain *model.Domain) (string, error) {
	hash := model.HashURL(rawURL)

	existing, err := ing.store.PageByURLHash(ctx, hash)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if score != 0 {
			if err := ing.store.AddToPageScore(ctx, existing.ID, score); err != nil {
				return "", err
			}
		}
		return existing.UUID, nil
	}

	page := &model.Page{
		UUID:        uuid.NewString(),
		URL:         rawURL,
		URLHash:     hash,
		DomainID:    domain.ID,
		Score:       score,
		CreatedDate: time.Now(),
	}

	err = ing.store.InsertPage(ctx, page)
	if errors.Is(err, model.ErrDuplicate) {
		// Lost the race to a concurrent insert: treat as the
		// existing-page branch (spec.md §4.5.1 step 6).
		ing.logger.Info("duplicate page insert, falling back to existing row", "url", rawURL)
		existing, findErr := ing.store.PageByURLHash(ctx, hash)
		if findErr != nil {
			return "", findErr
		}
		if existing == nil {
			return "", err
		}
		if score != 0 {
			if err := ing.store.AddToPageScore(ctx, existing.ID, score); err != nil {
				return "", err
			}
		}
		return existing.UUID, nil
	}
	if err != nil {
		return "", err
	}

	if err := ing.cache.IncrementPageCount(ctx); err != nil {
		ing.logger.Warn("increment page count failed", "error", err)
	}
	if err := ing.cache.IncrementDomainPageCount(ctx, domain.URL); err != nil {
		ing.logger.Warn("increment domain page count failed", "domain", domain.URL, "error", err)
	}
	if err := ing.cache.IncrementNextJobsCount(ctx); err != nil {
		ing.logger.Warn("increment next jobs count failed", "error", err)
	}

	ing.publisher.Publish(ctx, events.NewPagePayload(rawURL))

	return page.UUID, nil
}

func excerpt(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		return string(body[:maxLen])
	}
	return string(body)
}
