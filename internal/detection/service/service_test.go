package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricewatch/internal/cache"
	"github.com/smallbiznis/pricewatch/internal/clock"
	"github.com/smallbiznis/pricewatch/internal/config"
	"github.com/smallbiznis/pricewatch/internal/detection/domain"
	"github.com/smallbiznis/pricewatch/internal/ingest"
	"github.com/smallbiznis/pricewatch/internal/observability/metrics"
	"github.com/smallbiznis/pricewatch/internal/orgcontext"
	purchasingdomain "github.com/smallbiznis/pricewatch/internal/purchasing/domain"
	resolutiondomain "github.com/smallbiznis/pricewatch/internal/resolution/domain"
	resolutionrepo "github.com/smallbiznis/pricewatch/internal/resolution/repository"
	resolutionservice "github.com/smallbiznis/pricewatch/internal/resolution/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const orgID = 42

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type stubSource struct {
	mu      sync.Mutex
	lines   []purchasingdomain.InvoiceLine
	calls   int
	err     error
	onFetch func()
}

func (s *stubSource) FetchPage(_ context.Context, _ purchasingdomain.Filter, _ int, _ string) (purchasingdomain.Page, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.onFetch != nil {
		s.onFetch()
	}
	if s.err != nil {
		return purchasingdomain.Page{}, s.err
	}
	return purchasingdomain.Page{Records: s.lines}, nil
}

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubAgreements struct {
	items []purchasingdomain.Agreement
}

func (s stubAgreements) ListActiveAgreements(context.Context, snowflake.ID) ([]purchasingdomain.Agreement, error) {
	return s.items, nil
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, cache.ErrCacheUnavailable
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return cache.ErrCacheUnavailable
}

func (brokenStore) Delete(context.Context, string) error { return cache.ErrCacheUnavailable }

type fixture struct {
	svc     domain.Service
	source  *stubSource
	store   cache.ResultStore
	ledger  resolutiondomain.Service
	metrics *metrics.DetectionMetrics
	clock   *clock.FakeClock
}

func newFixture(t *testing.T, store cache.ResultStore) *fixture {
	t.Helper()
	return newFixtureWith(t, store, nil)
}

func newFixtureWith(t *testing.T, store cache.ResultStore, tune func(*config.DetectionConfig)) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&resolutiondomain.Resolution{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	if store == nil {
		store = cache.NewMemoryResultStore(clk)
	}

	ledger := resolutionservice.New(resolutionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  resolutionrepo.Provide(),
	})

	source := &stubSource{lines: sampleLines()}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry(), metrics.Config{ServiceName: "test"})

	settings := config.DefaultDetectionConfig()
	settings.MinDifference = 5
	if tune != nil {
		tune(&settings)
	}

	svc := New(Params{
		Config: config.Config{
			Cache:  config.CacheConfig{TTL: time.Minute},
			Ingest: config.IngestConfig{PageSize: 1000},
		},
		Settings:   config.NewStaticDetectionConfigHolder(settings),
		Records:    source,
		Agreements: stubAgreements{items: sampleAgreements()},
		Store:      store,
		Ledger:     ledger,
		Clock:      clk,
		Log:        zap.NewNop(),
		Metrics:    m,
	})

	return &fixture{svc: svc, source: source, store: store, ledger: ledger, metrics: m, clock: clk}
}

func sampleLines() []purchasingdomain.InvoiceLine {
	day := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	loc := "loc-1"
	var id int64
	mk := func(code, price, qty, docType string) purchasingdomain.InvoiceLine {
		id++
		return purchasingdomain.InvoiceLine{
			ID:              snowflake.ID(id),
			OrgID:           orgID,
			ProductCode:     code,
			SupplierID:      "sup-a",
			SupplierName:    "Supplier A",
			UnitType:        "kg",
			Quantity:        dec(qty),
			UnitPrice:       dec(price),
			TransactionDate: day,
			DocumentType:    docType,
			LocationID:      &loc,
		}
	}
	return []purchasingdomain.InvoiceLine{
		mk("SKU-1", "10", "2", "Invoice"),
		mk("SKU-1", "10", "2", "Invoice"),
		mk("SKU-1", "15", "2", "Invoice"),
		mk("SKU-2", "20", "1", "Invoice"),
		mk("SKU-2", "30", "1", "Invoice"),
		mk("SKU-3", "5", "1", "Invoice"),
		mk("SKU-3", "50", "1", "Invoice"),
		mk("SKU-4", "10", "1", "Invoice"),
		mk("SKU-4", "100", "1", "Credit Note"),
	}
}

func sampleAgreements() []purchasingdomain.Agreement {
	supplier := "sup-a"
	effective := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []purchasingdomain.Agreement{{
		ID:            1,
		OrgID:         orgID,
		ProductID:     "SKU-1",
		SupplierID:    &supplier,
		TargetPrice:   dec("8"),
		EffectiveDate: &effective,
		Status:        purchasingdomain.AgreementStatusActive,
	}}
}

func orgCtx() context.Context {
	return orgcontext.WithOrgID(context.Background(), orgID)
}

func filter() purchasingdomain.Filter {
	return purchasingdomain.Filter{OrgID: orgID, SupplierIDs: []string{"sup-a"}}
}

func TestRunOrdersAlertsByImpact(t *testing.T) {
	f := newFixture(t, nil)

	report, err := f.svc.Run(orgCtx(), filter(), domain.RunOptions{})
	require.NoError(t, err)
	assert.False(t, report.Cached)
	assert.Equal(t, 9, report.Ingested)

	require.Len(t, report.Variations, 3)
	assert.Equal(t, "SKU-3|sup-a|kg|variation", report.Variations[0].AlertKey)
	assert.Equal(t, "SKU-1|sup-a|kg|variation", report.Variations[1].AlertKey)
	assert.Equal(t, "SKU-2|sup-a|kg|variation", report.Variations[2].AlertKey)
	assert.True(t, report.Variations[0].OverpaidAmount.Equal(dec("45")))
	assert.True(t, report.Variations[1].OverpaidAmount.Equal(dec("10")))
	assert.True(t, report.Variations[2].OverpaidAmount.Equal(dec("10")))

	for i := 1; i < len(report.Variations); i++ {
		assert.True(t, report.Variations[i-1].Impact().GreaterThanOrEqual(report.Variations[i].Impact()))
	}

	require.Len(t, report.Agreements, 1)
	assert.Equal(t, "SKU-1|sup-a|kg|agreement", report.Agreements[0].AlertKey)
	assert.True(t, report.Agreements[0].TotalOverspend.Equal(dec("22")))

	assert.True(t, report.Totals.Variations.Equal(dec("65")))
	assert.True(t, report.Totals.Agreements.Equal(dec("22")))
	assert.True(t, report.Totals.Total.Equal(dec("87")))
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	first, err := f.svc.Run(orgCtx(), filter(), domain.RunOptions{Refresh: true})
	require.NoError(t, err)
	second, err := f.svc.Run(orgCtx(), filter(), domain.RunOptions{Refresh: true})
	require.NoError(t, err)

	assert.Equal(t, first.Variations, second.Variations)
	assert.Equal(t, first.Agreements, second.Agreements)
	assert.Equal(t, first.Totals, second.Totals)
	assert.Equal(t, 2, f.source.Calls())
}

func TestRunServesIdenticalFilterFromCache(t *testing.T) {
	f := newFixture(t, nil)

	first, err := f.svc.Run(orgCtx(), filter(), domain.RunOptions{})
	require.NoError(t, err)

	reordered := filter()
	reordered.SupplierIDs = []string{"sup-a", " sup-a "}
	second, err := f.svc.Run(orgCtx(), reordered, domain.RunOptions{})
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, 1, f.source.Calls())
	require.Len(t, second.Variations, len(first.Variations))
	assert.Equal(t, first.Variations[0].AlertKey, second.Variations[0].AlertKey)
	assert.True(t, first.Totals.Total.Equal(second.Totals.Total))

	f.clock.Advance(time.Minute)
	third, err := f.svc.Run(orgCtx(), filter(), domain.RunOptions{})
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, f.source.Calls())
}

func TestRunFailureIsAttributedAndNotCached(t *testing.T) {
	f := newFixture(t, nil)
	f.source.err = errors.New("connection reset")

	_, err := f.svc.Run(orgCtx(), filter(), domain.RunOptions{})
	require.Error(t, err)

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, stageIngest, runErr.Stage)
	assert.Equal(t, snowflake.ID(orgID), runErr.Filter.OrgID)
	assert.NotEmpty(t, runErr.Fingerprint)

	var fetchErr *ingest.FetchError
	assert.ErrorAs(t, err, &fetchErr)

	_, ok, err := f.store.Get(context.Background(), runErr.Fingerprint)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelledRunLeavesCacheEmpty(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(orgCtx())
	f.source.onFetch = cancel

	_, err := f.svc.Run(ctx, filter(), domain.RunOptions{})
	require.ErrorIs(t, err, context.Canceled)

	f.source.onFetch = nil
	report, err := f.svc.Run(orgCtx(), filter(), domain.RunOptions{})
	require.NoError(t, err)
	assert.False(t, report.Cached)
	assert.Equal(t, 2, f.source.Calls())
}

type countingStore struct {
	cache.ResultStore
	mu   sync.Mutex
	gets int
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.ResultStore.Get(ctx, key)
}

func (s *countingStore) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func TestSharedRunSurvivesLeaderCancellation(t *testing.T) {
	store := &countingStore{ResultStore: cache.NewMemoryResultStore(clock.NewFakeClock(time.Now()))}
	f := newFixtureWith(t, store, func(c *config.DetectionConfig) { c.SingleFlight = true })

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.source.onFetch = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	leaderCtx, cancelLeader := context.WithCancel(orgCtx())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Run(leaderCtx, filter(), domain.RunOptions{})
		leaderErr <- err
	}()
	<-entered

	type outcome struct {
		report domain.Report
		err    error
	}
	follower := make(chan outcome, 1)
	go func() {
		report, err := f.svc.Run(orgCtx(), filter(), domain.RunOptions{})
		follower <- outcome{report: report, err: err}
	}()

	// Leader lookup, shared-run lookup, follower lookup.
	require.Eventually(t, func() bool { return store.Gets() >= 3 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	got := <-follower
	require.NoError(t, got.err)
	assert.Len(t, got.report.Variations, 3)
	assert.Equal(t, 1, f.source.Calls())

	report, err := f.svc.Run(orgCtx(), filter(), domain.RunOptions{})
	require.NoError(t, err)
	assert.True(t, report.Cached)
	assert.Equal(t, 1, f.source.Calls())
}

func TestDegradedCacheFallsBackToRecompute(t *testing.T) {
	f := newFixture(t, brokenStore{})

	report, err := f.svc.Run(orgCtx(), filter(), domain.RunOptions{})
	require.NoError(t, err)
	assert.False(t, report.Cached)
	assert.Len(t, report.Variations, 3)

	_, err = f.svc.Run(orgCtx(), filter(), domain.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, f.source.Calls())
}

func TestResolvedAlertsSurviveInvalidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := orgCtx()
	key := resolutiondomain.VariationKey("SKU-3|sup-a|kg")

	_, err := f.ledger.Resolve(ctx, resolutiondomain.ResolveRequest{AlertKey: key, Reason: resolutiondomain.ReasonPriceCorrected})
	require.NoError(t, err)

	report, err := f.svc.Run(ctx, filter(), domain.RunOptions{})
	require.NoError(t, err)
	require.Len(t, report.Variations, 2)
	assert.True(t, report.Totals.Variations.Equal(dec("20")))

	require.NoError(t, f.svc.Invalidate(ctx, filter()))

	report, err = f.svc.Run(ctx, filter(), domain.RunOptions{})
	require.NoError(t, err)
	assert.False(t, report.Cached)
	require.Len(t, report.Variations, 2)
	for _, a := range report.Variations {
		assert.NotEqual(t, key, a.AlertKey)
	}

	report, err = f.svc.Run(ctx, filter(), domain.RunOptions{IncludeResolved: true})
	require.NoError(t, err)
	require.Len(t, report.Variations, 3)
	require.NotNil(t, report.Variations[0].Resolution)
	assert.Equal(t, resolutiondomain.ReasonPriceCorrected, report.Variations[0].Resolution.Reason)
	assert.True(t, report.Totals.Variations.Equal(dec("65")))

	require.NoError(t, f.ledger.Unresolve(ctx, key))
	report, err = f.svc.Run(ctx, filter(), domain.RunOptions{})
	require.NoError(t, err)
	assert.Len(t, report.Variations, 3)
}

func TestRunRejectsFilterWithoutOrganization(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Run(orgCtx(), purchasingdomain.Filter{}, domain.RunOptions{})
	require.ErrorIs(t, err, purchasingdomain.ErrInvalidOrganization)
	assert.Equal(t, 0, f.source.Calls())
}

func TestCacheKeyTracksSettings(t *testing.T) {
	base := config.DefaultDetectionConfig()
	changed := base
	changed.MinDifference = 2

	a := purchasingdomain.Filter{OrgID: 1, Categories: []string{"dairy", "meat"}}
	b := purchasingdomain.Filter{OrgID: 1, Categories: []string{"meat", "dairy"}}

	assert.Equal(t, cacheKey(a, base), cacheKey(b, base))
	assert.NotEqual(t, cacheKey(a, base), cacheKey(a, changed))
}
