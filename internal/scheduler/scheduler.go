// Package scheduler produces the next job for an idle worker: it builds
// the candidate set, applies round-robin fairness, runs admission, and
// acquires the review lock (component C4). It holds no state across
// calls — every NextJob call re-reads the catalog and cache from
// scratch.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pagewarden/dispatch/internal/cache"
	"github.com/pagewarden/dispatch/internal/catalog"
	"github.com/pagewarden/dispatch/internal/limiter"
	"github.com/pagewarden/dispatch/internal/model"
	"github.com/pagewarden/dispatch/internal/observability"
)

// DefaultPageSize is used by NextJobList when the caller passes zero.
const DefaultPageSize = 200

// Scheduler implements NextJob, NextJobList and NextJobsCount.
type Scheduler struct {
	store   catalog.Store
	cache   cache.Cache
	limiter *limiter.Limiter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New returns a Scheduler reading from store and cache. metrics may be
// nil, in which case observation is skipped.
func New(store catalog.Store, c cache.Cache, metrics *observability.Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		cache:   c,
		limiter: limiter.New(store),
		metrics: metrics,
		logger:  logger.With("component", "scheduler"),
	}
}

// NextJob builds the interleaved candidate list, recalibrates scores via
// the pending lambda boost if due, then returns the first candidate that
// passes both the limiter and the cache lock. Returns model.ErrStarved
// if no candidate passes.
func (s *Scheduler) NextJob(ctx context.Context, lockTTLSeconds int64, avgLinksPerPage int) (*model.Job, error) {
	domains, err := s.store.ActiveDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCatalogUnavailable, err)
	}
	if len(domains) == 0 {
		s.observeStarved()
		return nil, model.ErrStarved
	}

	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCatalogUnavailable, err)
	}
	workerCount := len(workers)
	if workerCount == 0 {
		workerCount = 1
	}

	perDomain := make([][]model.Page, 0, len(domains))
	domainByID := make(map[int64]model.Domain, len(domains))
	for _, d := range domains {
		domainByID[d.ID] = d
		pages, err := s.store.TopPagesForDomain(ctx, d.ID, workerCount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrCatalogUnavailable, err)
		}
		if len(pages) > 0 {
			perDomain = append(perDomain, pages)
		}
	}

	candidates := interleave(perDomain)
	if len(candidates) == 0 {
		s.observeStarved()
		return nil, model.ErrStarved
	}

	if err := s.maybeRecalibrate(ctx, candidates[0].Score); err != nil {
		s.logger.Warn("lambda recalibration failed", "error", err)
	}

	for _, candidate := range candidates {
		domain := domainByID[candidate.DomainID]

		admitted, err := s.limiter.Admit(ctx, domain.URL, candidate.URL, avgLinksPerPage)
		if err != nil {
			s.logger.Warn("limiter check failed, skipping candidate", "url", candidate.URL, "error", err)
			continue
		}
		if !admitted {
			if s.metrics != nil {
				s.metrics.LimiterRejections.Inc()
			}
			continue
		}

		token, err := s.cache.TryLock(ctx, candidate.URL, lockTTLSeconds)
		if err != nil || token == "" {
			// Cache faults and "already locked" both mean: move on.
			if s.metrics != nil {
				s.metrics.LockConflicts.Inc()
			}
			continue
		}

		if s.metrics != nil {
			s.metrics.JobsDispatched.Inc()
		}
		return &model.Job{
			PageUUID:  candidate.UUID,
			URL:       candidate.URL,
			Score:     candidate.Score,
			LockToken: token,
		}, nil
	}

	s.observeStarved()
	return nil, model.ErrStarved
}

// observeStarved increments the starvation counter if metrics are enabled.
func (s *Scheduler) observeStarved() {
	if s.metrics != nil {
		s.metrics.JobsStarved.Inc()
	}
}

// maybeRecalibrate applies the pending lambda boost (spec.md §4.4.1) when
// it is positive and strictly exceeds the top candidate's score.
func (s *Scheduler) maybeRecalibrate(ctx context.Context, topScore float64) error {
	settings, err := s.store.LoadSettings(ctx)
	if err != nil {
		return err
	}
	if settings.LambdaScore <= 0 || settings.LambdaScore <= topScore {
		return nil
	}

	pageCount, err := s.store.PageCount(ctx)
	if err != nil {
		return err
	}
	if pageCount == 0 {
		return nil
	}

	delta := settings.LambdaScore / float64(pageCount)

	if err := s.store.SetLambdaScore(ctx, 0); err != nil {
		return err
	}
	if err := s.store.AddToAllPageScores(ctx, delta); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.LambdaRecalibrated.Inc()
	}
	s.logger.Info("lambda score consumed", "delta", delta, "pages", pageCount)
	return nil
}

// NextJobList is the non-dispatching bulk view of spec.md §4.4.2: the
// union of all active domains' pages ordered by global score descending,
// paginated. It never locks and never consults the limiter.
func (s *Scheduler) NextJobList(ctx context.Context, pageNumber, pageSize int) ([]model.Page, error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	offset := (pageNumber - 1) * pageSize

	pages, err := s.store.PagesForActiveDomains(ctx, offset, pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCatalogUnavailable, err)
	}
	return pages, nil
}

// NextJobsCount returns the count of all pages in active domains
// (spec.md §4.4.3).
func (s *Scheduler) NextJobsCount(ctx context.Context) (int64, error) {
	n, err := s.store.ActiveDomainPageCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrCatalogUnavailable, err)
	}
	if s.metrics != nil {
		s.metrics.NextJobsCount.Set(float64(n))
	}
	return n, nil
}
