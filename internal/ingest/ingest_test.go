package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/pagewarden/dispatch/internal/fetcher"
	"github.com/pagewarden/dispatch/internal/model"
)

type fakeStore struct {
	domainsByHash map[string]*model.Domain
	pagesByHash   map[string]*model.Page
	insertedPages []*model.Page
	nextInsertErr error
	// raceWinner, when set, is stored as if a concurrent insert had won
	// the race at the moment InsertPage returns nextInsertErr.
	raceWinner *model.Page
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		domainsByHash: map[string]*model.Domain{},
		pagesByHash:   map[string]*model.Page{},
	}
}

func (f *fakeStore) ActiveDomains(ctx context.Context) ([]model.Domain, error) { return nil, nil }
func (f *fakeStore) TopPagesForDomain(ctx context.Context, domainID int64, limit int) ([]model.Page, error) {
	return nil, nil
}
func (f *fakeStore) PageByURLHash(ctx context.Context, hash string) (*model.Page, error) {
	return f.pagesByHash[hash], nil
}
func (f *fakeStore) DomainByNames(ctx context.Context, names []string) (*model.Domain, error) {
	for _, n := range names {
		if d, ok := f.domainsByHash[n]; ok {
			return d, nil
		}
	}
	return nil, nil
}
func (f *fakeStore) InsertDomain(ctx context.Context, d *model.Domain) error {
	d.ID = int64(len(f.domainsByHash) + 1)
	f.domainsByHash[d.Name] = d
	return nil
}
func (f *fakeStore) InsertPage(ctx context.Context, p *model.Page) error {
	if f.nextInsertErr != nil {
		err := f.nextInsertErr
		f.nextInsertErr = nil
		if f.raceWinner != nil {
			f.pagesByHash[f.raceWinner.URLHash] = f.raceWinner
		}
		return err
	}
	f.pagesByHash[p.URLHash] = p
	f.insertedPages = append(f.insertedPages, p)
	return nil
}
func (f *fakeStore) AddToPageScore(ctx context.Context, pageID int64, delta float64) error {
	for _, p := range f.pagesByHash {
		if p.ID == pageID {
			p.Score += delta
		}
	}
	return nil
}
func (f *fakeStore) AddToAllPageScores(ctx context.Context, delta float64) error { return nil }
func (f *fakeStore) PageCount(ctx context.Context) (int64, error)               { return 0, nil }
func (f *fakeStore) ActiveDomainPageCount(ctx context.Context) (int64, error)    { return 0, nil }
func (f *fakeStore) PagesForActiveDomains(ctx context.Context, offset, limit int) ([]model.Page, error) {
	return nil, nil
}
func (f *fakeStore) ListWorkers(ctx context.Context) ([]model.Worker, error) { return nil, nil }
func (f *fakeStore) LimiterFor(ctx context.Context, domainURL string) (*model.Limiter, error) {
	return nil, nil
}
func (f *fakeStore) UpsertLimiter(ctx context.Context, domainURL string, value int) error {
	return nil
}
func (f *fakeStore) LoadSettings(ctx context.Context) (*model.Settings, error) {
	return &model.Settings{}, nil
}
func (f *fakeStore) SetLambdaScore(ctx context.Context, value float64) error { return nil }

type fakeCache struct {
	pageCounts int
}

func (c *fakeCache) TryLock(ctx context.Context, key string, ttl int64) (string, error) {
	return "token", nil
}
func (c *fakeCache) IncrementPageCount(ctx context.Context) error { c.pageCounts++; return nil }
func (c *fakeCache) IncrementDomainPageCount(ctx context.Context, domainURL string) error {
	return nil
}
func (c *fakeCache) IncrementNextJobsCount(ctx context.Context) error { return nil }
func (c *fakeCache) GetPageCount(ctx context.Context, domainURL string) (int64, error) {
	return 0, nil
}

type fakeFetcher struct {
	result *fetcher.Result
	err    error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetcher.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakePublisher struct {
	published [][]byte
}

func (p *fakePublisher) Publish(ctx context.Context, payload []byte) {
	p.published = append(p.published, payload)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddPageRejectsInvalidURL(t *testing.T) {
	ing := New(newFakeStore(), &fakeCache{}, &fakeFetcher{}, &fakePublisher{}, nil, 10, testLogger())

	_, err := ing.AddPage(context.Background(), "not-a-url", 1)

	var rejErr *model.RejectError
	if !errors.As(err, &rejErr) || rejErr.Reason != model.ReasonInvalidURL {
		t.Fatalf("expected ReasonInvalidURL, got %v", err)
	}
}

func TestAddPageRejectsFetchError(t *testing.T) {
	ing := New(newFakeStore(), &fakeCache{}, &fakeFetcher{err: errors.New("connection refused")}, &fakePublisher{}, nil, 10, testLogger())

	_, err := ing.AddPage(context.Background(), "https://example.com/page", 1)

	var rejErr *model.RejectError
	if !errors.As(err, &rejErr) || rejErr.Reason != model.ReasonFetchError {
		t.Fatalf("expected ReasonFetchError, got %v", err)
	}
}

func TestAddPageRejectsRedirect(t *testing.T) {
	fetch := &fakeFetcher{result: &fetcher.Result{StatusCode: 200, EffectiveURL: "https://example.com/other"}}
	ing := New(newFakeStore(), &fakeCache{}, fetch, &fakePublisher{}, nil, 10, testLogger())

	_, err := ing.AddPage(context.Background(), "https://example.com/page", 1)

	var rejErr *model.RejectError
	if !errors.As(err, &rejErr) || rejErr.Reason != model.ReasonRedirect {
		t.Fatalf("expected ReasonRedirect, got %v", err)
	}
}

func TestAddPageAcceptsAndRegistersNewDomain(t *testing.T) {
	store := newFakeStore()
	cache := &fakeCache{}
	pub := &fakePublisher{}
	fetch := &fakeFetcher{result: &fetcher.Result{StatusCode: 200}}
	ing := New(store, cache, fetch, pub, nil, 10, testLogger())

	uuid, err := ing.AddPage(context.Background(), "https://example.com/page", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uuid == "" {
		t.Fatal("expected a page UUID")
	}
	if len(store.domainsByHash) != 1 {
		t.Errorf("expected one domain registered, got %d", len(store.domainsByHash))
	}
	if cache.pageCounts != 1 {
		t.Errorf("expected page count incremented once, got %d", cache.pageCounts)
	}
	if len(pub.published) != 2 {
		t.Errorf("expected new-domain and new-page events published, got %d", len(pub.published))
	}
}

func TestAddPageDuplicateFallsBackToExisting(t *testing.T) {
	store := newFakeStore()
	store.nextInsertErr = model.ErrDuplicate
	existing := &model.Page{ID: 1, UUID: "existing-uuid", URL: "https://example.com/page", URLHash: model.HashURL("https://example.com/page")}
	store.raceWinner = existing

	ing := New(store, &fakeCache{}, &fakeFetcher{result: &fetcher.Result{StatusCode: 200}}, &fakePublisher{}, nil, 10, testLogger())

	uuid, err := ing.AddPage(context.Background(), "https://example.com/page", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uuid != "existing-uuid" {
		t.Errorf("expected fallback to the existing page's UUID, got %s", uuid)
	}
	if existing.Score != 1 {
		t.Errorf("expected the score added to the existing page, got %v", existing.Score)
	}
}

func TestAddPageExistingPageAccumulatesScore(t *testing.T) {
	store := newFakeStore()
	existing := &model.Page{ID: 1, UUID: "existing-uuid", URL: "https://example.com/page", URLHash: model.HashURL("https://example.com/page"), Score: 2}
	store.pagesByHash[existing.URLHash] = existing

	ing := New(store, &fakeCache{}, &fakeFetcher{result: &fetcher.Result{StatusCode: 200}}, &fakePublisher{}, nil, 10, testLogger())

	uuid, err := ing.AddPage(context.Background(), "https://example.com/page", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uuid != "existing-uuid" {
		t.Errorf("expected the existing page's UUID, got %s", uuid)
	}
	if existing.Score != 5 {
		t.Errorf("expected score accumulated to 5, got %v", existing.Score)
	}
}
