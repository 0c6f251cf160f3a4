package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/pagewarden/dispatch/internal/model"
)

// fakeCatalog is an in-memory catalog.Store good enough to drive the
// scheduler without a live database, the same way the teacher's
// engine_test.go exercised Frontier without a live network.
type fakeCatalog struct {
	domains       []model.Domain
	pagesByDomain map[int64][]model.Page
	workers       []model.Worker
	limiters      map[string]*model.Limiter
	settings      model.Settings
	pageCount     int64

	lambdaCalls int

	lastListOffset, lastListLimit int
}

func (f *fakeCatalog) ActiveDomains(ctx context.Context) ([]model.Domain, error) {
	var out []model.Domain
	for _, d := range f.domains {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeCatalog) TopPagesForDomain(ctx context.Context, domainID int64, limit int) ([]model.Page, error) {
	pages := f.pagesByDomain[domainID]
	if limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}
	return pages, nil
}

func (f *fakeCatalog) PageByURLHash(ctx context.Context, hash string) (*model.Page, error) {
	return nil, nil
}
func (f *fakeCatalog) DomainByNames(ctx context.Context, names []string) (*model.Domain, error) {
	return nil, nil
}
func (f *fakeCatalog) InsertDomain(ctx context.Context, d *model.Domain) error { return nil }
func (f *fakeCatalog) InsertPage(ctx context.Context, p *model.Page) error    { return nil }
func (f *fakeCatalog) AddToPageScore(ctx context.Context, pageID int64, delta float64) error {
	return nil
}

func (f *fakeCatalog) AddToAllPageScores(ctx context.Context, delta float64) error {
	f.lambdaCalls++
	for domainID, pages := range f.pagesByDomain {
		for i := range pages {
			pages[i].Score += delta
		}
		f.pagesByDomain[domainID] = pages
	}
	return nil
}

func (f *fakeCatalog) PageCount(ctx context.Context) (int64, error) { return f.pageCount, nil }
func (f *fakeCatalog) ActiveDomainPageCount(ctx context.Context) (int64, error) {
	active, _ := f.ActiveDomains(ctx)
	var n int64
	for _, d := range active {
		n += int64(len(f.pagesByDomain[d.ID]))
	}
	return n, nil
}
func (f *fakeCatalog) PagesForActiveDomains(ctx context.Context, offset, limit int) ([]model.Page, error) {
	f.lastListOffset, f.lastListLimit = offset, limit
	return nil, nil
}
func (f *fakeCatalog) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	return f.workers, nil
}
func (f *fakeCatalog) LimiterFor(ctx context.Context, domainURL string) (*model.Limiter, error) {
	return f.limiters[domainURL], nil
}
func (f *fakeCatalog) UpsertLimiter(ctx context.Context, domainURL string, value int) error {
	return nil
}
func (f *fakeCatalog) LoadSettings(ctx context.Context) (*model.Settings, error) {
	s := f.settings
	return &s, nil
}
func (f *fakeCatalog) SetLambdaScore(ctx context.Context, value float64) error {
	f.settings.LambdaScore = value
	return nil
}

// fakeCache is an in-memory cache.Cache: locks never conflict unless the
// same key is requested twice.
type fakeCache struct {
	locked map[string]bool
}

func newFakeCache() *fakeCache { return &fakeCache{locked: make(map[string]bool)} }

func (c *fakeCache) TryLock(ctx context.Context, key string, ttl int64) (string, error) {
	if c.locked[key] {
		return "", nil
	}
	c.locked[key] = true
	return "token-" + key, nil
}
func (c *fakeCache) IncrementPageCount(ctx context.Context) error                      { return nil }
func (c *fakeCache) IncrementDomainPageCount(ctx context.Context, domainURL string) error {
	return nil
}
func (c *fakeCache) IncrementNextJobsCount(ctx context.Context) error { return nil }
func (c *fakeCache) GetPageCount(ctx context.Context, domainURL string) (int64, error) {
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextJobReturnsHighestScoringPageSingleDomain(t *testing.T) {
	store := &fakeCatalog{
		domains: []model.Domain{{ID: 1, URL: "https://example.com", IsActive: true}},
		pagesByDomain: map[int64][]model.Page{
			1: {
				{ID: 1, UUID: "p1", URL: "https://example.com/a", Score: 10},
				{ID: 2, UUID: "p2", URL: "https://example.com/b", Score: 5},
			},
		},
		limiters: map[string]*model.Limiter{},
	}
	sched := New(store, newFakeCache(), nil, testLogger())

	job, err := sched.NextJob(context.Background(), 300, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.PageUUID != "p1" {
		t.Errorf("expected highest-scoring page p1, got %s", job.PageUUID)
	}
}

func TestNextJobExcludesInactiveDomains(t *testing.T) {
	store := &fakeCatalog{
		domains: []model.Domain{
			{ID: 1, URL: "https://active.com", IsActive: true},
			{ID: 2, URL: "https://inactive.com", IsActive: false},
		},
		pagesByDomain: map[int64][]model.Page{
			1: {{ID: 1, UUID: "p1", URL: "https://active.com/a", Score: 1}},
			2: {{ID: 2, UUID: "p2", URL: "https://inactive.com/a", Score: 100}},
		},
		limiters: map[string]*model.Limiter{},
	}
	sched := New(store, newFakeCache(), nil, testLogger())

	job, err := sched.NextJob(context.Background(), 300, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.PageUUID != "p1" {
		t.Errorf("expected only the active domain's page, got %s", job.PageUUID)
	}
}

func TestNextJobStarvesWhenNoActiveDomains(t *testing.T) {
	store := &fakeCatalog{limiters: map[string]*model.Limiter{}}
	sched := New(store, newFakeCache(), nil, testLogger())

	_, err := sched.NextJob(context.Background(), 300, 10)
	if err != model.ErrStarved {
		t.Errorf("expected ErrStarved, got %v", err)
	}
}

func TestNextJobSkipsCandidateAtLimiterCapacity(t *testing.T) {
	store := &fakeCatalog{
		domains: []model.Domain{{ID: 1, URL: "https://example.com", IsActive: true}},
		pagesByDomain: map[int64][]model.Page{
			1: {
				{ID: 1, UUID: "p1", URL: "https://example.com/a", Score: 10},
				{ID: 2, UUID: "p2", URL: "https://example.com/b", Score: 5},
			},
		},
		workers:  []model.Worker{{ID: "w1", CurrentURL: "https://example.com/busy"}},
		limiters: map[string]*model.Limiter{"https://example.com": {DomainURL: "https://example.com", Value: 1}},
	}
	sched := New(store, newFakeCache(), nil, testLogger())

	_, err := sched.NextJob(context.Background(), 300, 10)
	if err != model.ErrStarved {
		t.Errorf("expected starvation when the domain is already at its limiter capacity, got %v", err)
	}
}

func TestNextJobSkipsAlreadyLockedCandidate(t *testing.T) {
	store := &fakeCatalog{
		domains: []model.Domain{{ID: 1, URL: "https://example.com", IsActive: true}},
		pagesByDomain: map[int64][]model.Page{
			1: {
				{ID: 1, UUID: "p1", URL: "https://example.com/a", Score: 10},
				{ID: 2, UUID: "p2", URL: "https://example.com/b", Score: 5},
			},
		},
		// Two idle workers so TopPagesForDomain's limit covers both
		// candidates (the limit tracks fleet size, not admission).
		workers:  []model.Worker{{ID: "w1"}, {ID: "w2"}},
		limiters: map[string]*model.Limiter{},
	}
	c := newFakeCache()
	c.locked["https://example.com/a"] = true
	sched := New(store, c, nil, testLogger())

	job, err := sched.NextJob(context.Background(), 300, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.PageUUID != "p2" {
		t.Errorf("expected the second candidate once the first is locked, got %s", job.PageUUID)
	}
}

func TestNextJobConsumesPendingLambdaScore(t *testing.T) {
	store := &fakeCatalog{
		domains: []model.Domain{{ID: 1, URL: "https://example.com", IsActive: true}},
		pagesByDomain: map[int64][]model.Page{
			1: {{ID: 1, UUID: "p1", URL: "https://example.com/a", Score: 1}},
		},
		limiters: map[string]*model.Limiter{},
		settings: model.Settings{LambdaScore: 10},
		pageCount: 2,
	}
	sched := New(store, newFakeCache(), nil, testLogger())

	_, err := sched.NextJob(context.Background(), 300, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lambdaCalls != 1 {
		t.Fatalf("expected lambda score to be redistributed once, got %d calls", store.lambdaCalls)
	}
	if store.settings.LambdaScore != 0 {
		t.Errorf("expected pending lambda score to be consumed, got %v", store.settings.LambdaScore)
	}
	// delta = 10/2 = 5, applied to the only page (score 1 -> 6).
	if got := store.pagesByDomain[1][0].Score; got != 6 {
		t.Errorf("expected page score 6 after lambda redistribution, got %v", got)
	}
}

func TestNextJobSkipsLambdaRedistributionWhenBelowTopScore(t *testing.T) {
	store := &fakeCatalog{
		domains: []model.Domain{{ID: 1, URL: "https://example.com", IsActive: true}},
		pagesByDomain: map[int64][]model.Page{
			1: {{ID: 1, UUID: "p1", URL: "https://example.com/a", Score: 100}},
		},
		limiters:  map[string]*model.Limiter{},
		settings:  model.Settings{LambdaScore: 10},
		pageCount: 1,
	}
	sched := New(store, newFakeCache(), nil, testLogger())

	_, err := sched.NextJob(context.Background(), 300, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lambdaCalls != 0 {
		t.Errorf("lambda score (10) did not exceed top candidate score (100); expected no redistribution")
	}
}

func TestNextJobListPaginates(t *testing.T) {
	store := &fakeCatalog{}
	sched := New(store, newFakeCache(), nil, testLogger())

	_, err := sched.NextJobList(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastListOffset != 0 || store.lastListLimit != DefaultPageSize {
		t.Errorf("page 0, size 0: expected offset 0 limit %d, got offset %d limit %d", DefaultPageSize, store.lastListOffset, store.lastListLimit)
	}

	if _, err := sched.NextJobList(context.Background(), 3, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastListOffset != 100 || store.lastListLimit != 50 {
		t.Errorf("page 3, size 50: expected offset 100 limit 50, got offset %d limit %d", store.lastListOffset, store.lastListLimit)
	}
}

func TestNextJobsCount(t *testing.T) {
	store := &fakeCatalog{
		domains: []model.Domain{{ID: 1, URL: "https://example.com", IsActive: true}},
		pagesByDomain: map[int64][]model.Page{
			1: {{ID: 1}, {ID: 2}},
		},
	}
	sched := New(store, newFakeCache(), nil, testLogger())

	n, err := sched.NextJobsCount(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}
}
