package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricewatch/internal/agreement"
	"github.com/smallbiznis/pricewatch/internal/cache"
	"github.com/smallbiznis/pricewatch/internal/clock"
	"github.com/smallbiznis/pricewatch/internal/config"
	"github.com/smallbiznis/pricewatch/internal/detection/domain"
	"github.com/smallbiznis/pricewatch/internal/ingest"
	"github.com/smallbiznis/pricewatch/internal/observability/metrics"
	"github.com/smallbiznis/pricewatch/internal/pricepoint"
	purchasingdomain "github.com/smallbiznis/pricewatch/internal/purchasing/domain"
	resolutiondomain "github.com/smallbiznis/pricewatch/internal/resolution/domain"
	"github.com/smallbiznis/pricewatch/internal/variation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	stageValidate  = "validate"
	stageIngest    = "ingest"
	stageAgreement = "agreements"
	stageDetect    = "detect"
	stageResolve   = "resolutions"
)

type Params struct {
	fx.In

	Config     config.Config
	Settings   *config.DetectionConfigHolder
	Records    purchasingdomain.RecordSource
	Agreements purchasingdomain.AgreementSource
	Store      cache.ResultStore
	Ledger     resolutiondomain.Service
	Clock      clock.Clock
	Log        *zap.Logger
	Metrics    *metrics.DetectionMetrics `optional:"true"`
	Meter      *metrics.LedgerMeter      `optional:"true"`
}

type Service struct {
	settings   *config.DetectionConfigHolder
	loader     *ingest.Loader
	agreements purchasingdomain.AgreementSource
	store      cache.ResultStore
	ttl        time.Duration
	ledger     resolutiondomain.Service
	clock      clock.Clock
	log        *zap.Logger
	metrics    *metrics.DetectionMetrics
	meter      *metrics.LedgerMeter
	tracer     trace.Tracer
	inflight   singleflight.Group
}

func New(p Params) domain.Service {
	ttl := p.Config.Cache.TTL
	if ttl <= 0 {
		ttl = config.DefaultCacheTTL
	}
	log := p.Log.Named("detection.service")
	return &Service{
		settings:   p.Settings,
		loader:     ingest.NewLoader(p.Records, p.Config.Ingest.PageSize, p.Log),
		agreements: p.Agreements,
		store:      p.Store,
		ttl:        ttl,
		ledger:     p.Ledger,
		clock:      p.Clock,
		log:        log,
		metrics:    p.Metrics,
		meter:      p.Meter,
		tracer:     otel.Tracer("pricewatch/detection"),
	}
}

// Run returns the alerts for filter, from cache when an identical run is still fresh.
// Resolution state is applied on every call and is never cached.
func (s *Service) Run(ctx context.Context, filter purchasingdomain.Filter, opts domain.RunOptions) (domain.Report, error) {
	filter = filter.Normalize()
	settings := s.settings.Get()
	key := cacheKey(filter, settings)

	ctx, span := s.tracer.Start(ctx, "detection.Run", trace.WithAttributes(
		attribute.String("detection.fingerprint", key),
		attribute.String("detection.mode", settings.Mode),
	))
	defer span.End()

	if err := filter.Validate(); err != nil {
		return domain.Report{}, s.fail(span, &domain.RunError{Fingerprint: key, Filter: filter, Stage: stageValidate, Err: err})
	}

	report, cached := domain.Report{}, false
	if !opts.Refresh {
		report, cached = s.lookup(ctx, key)
	}

	if !cached {
		var err error
		if settings.SingleFlight {
			report, err = s.computeShared(ctx, key, filter, settings)
		} else {
			report, err = s.compute(ctx, key, filter, settings)
		}
		if err != nil {
			return domain.Report{}, s.fail(span, err)
		}
	}
	span.SetAttributes(attribute.Bool("detection.cached", cached))

	out, err := s.applyResolutions(ctx, report, opts)
	if err != nil {
		return domain.Report{}, s.fail(span, &domain.RunError{Fingerprint: key, Filter: filter, Stage: stageResolve, Err: err})
	}
	out.Cached = cached
	return out, nil
}

// Invalidate drops the cached result for filter under the current settings.
func (s *Service) Invalidate(ctx context.Context, filter purchasingdomain.Filter) error {
	filter = filter.Normalize()
	if err := filter.Validate(); err != nil {
		return err
	}
	key := cacheKey(filter, s.settings.Get())
	if err := s.store.Delete(ctx, key); err != nil {
		s.metrics.IncCacheEvent(metrics.CacheEventError)
		return err
	}
	s.meter.RecordInvalidation(ctx)
	s.log.Info("result cache invalidated", zap.String("fingerprint", key))
	return nil
}

func (s *Service) lookup(ctx context.Context, key string) (domain.Report, bool) {
	payload, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.IncCacheEvent(metrics.CacheEventError)
		s.log.Warn("result cache read failed, recomputing", zap.String("fingerprint", key), zap.Error(err))
		return domain.Report{}, false
	}
	if !ok {
		s.metrics.IncCacheEvent(metrics.CacheEventMiss)
		return domain.Report{}, false
	}

	var report domain.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		s.metrics.IncCacheEvent(metrics.CacheEventError)
		s.log.Warn("discarding undecodable cached result", zap.String("fingerprint", key), zap.Error(err))
		_ = s.store.Delete(ctx, key)
		return domain.Report{}, false
	}
	s.metrics.IncCacheEvent(metrics.CacheEventHit)
	return report, true
}

// computeShared joins callers asking for the same key onto one computation.
// The shared run is detached from any single caller's cancellation; each
// caller waits on its own context and only that caller's result is abandoned.
func (s *Service) computeShared(ctx context.Context, key string, filter purchasingdomain.Filter, settings config.DetectionConfig) (domain.Report, error) {
	ch := s.inflight.DoChan(key, func() (any, error) {
		runCtx := context.WithoutCancel(ctx)
		// Another caller may have filled the cache while this one waited.
		if report, ok := s.lookup(runCtx, key); ok {
			return report, nil
		}
		return s.compute(runCtx, key, filter, settings)
	})

	select {
	case <-ctx.Done():
		return domain.Report{}, &domain.RunError{Fingerprint: key, Filter: filter, Stage: stageDetect, Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			s.log.Debug("joined in-flight detection run", zap.String("fingerprint", key))
		}
		if res.Err != nil {
			return domain.Report{}, res.Err
		}
		return res.Val.(domain.Report), nil
	}
}

func (s *Service) compute(ctx context.Context, key string, filter purchasingdomain.Filter, settings config.DetectionConfig) (domain.Report, error) {
	started := s.clock.Now()
	runErr := func(stage string, err error) error {
		return &domain.RunError{Fingerprint: key, Filter: filter, Stage: stage, Err: err}
	}

	detector, err := variation.New(settings.Mode,
		decimal.NewFromFloat(settings.MinDifference),
		decimal.NewFromFloat(settings.MinPercentage),
	)
	if err != nil {
		return domain.Report{}, runErr(stageValidate, errors.Join(domain.ErrInvalidSettings, err))
	}

	lines, err := s.loader.Load(ctx, filter)
	if err != nil {
		return domain.Report{}, runErr(stageIngest, err)
	}

	agreements, err := s.agreements.ListActiveAgreements(ctx, filter.OrgID)
	if err != nil {
		return domain.Report{}, runErr(stageAgreement, err)
	}

	agg := pricepoint.NewAggregator(settings.CreditMarkers, s.log).Aggregate(lines)

	variations := make([]domain.VariationAlert, 0)
	for _, series := range agg.Variation {
		result := detector.Detect(series)
		if !result.HasVariation {
			continue
		}
		variations = append(variations, domain.VariationAlert{
			AlertKey:     resolutiondomain.VariationKey(series.Key.String()),
			Product:      series.Key.Product,
			SupplierID:   series.Key.Supplier,
			SupplierName: series.SupplierName,
			UnitType:     series.Key.UnitType,
			Mode:         detector.Mode(),
			Result:       result,
		})
	}

	violations := agreement.Match(agreements, agg.Exposure)
	agreementAlerts := make([]domain.AgreementAlert, 0, len(violations))
	for _, v := range violations {
		agreementAlerts = append(agreementAlerts, domain.AgreementAlert{
			AlertKey:  resolutiondomain.AgreementKey(v.Key.Product, v.Key.Supplier, v.Key.UnitType),
			Violation: v,
		})
	}

	sortVariations(variations)
	sortAgreements(agreementAlerts)

	// Abandoned runs must not leave anything behind in the cache.
	if err := ctx.Err(); err != nil {
		return domain.Report{}, runErr(stageDetect, err)
	}

	report := domain.Report{
		Fingerprint: key,
		Mode:        detector.Mode(),
		GeneratedAt: s.clock.Now(),
		Ingested:    len(lines),
		Skipped:     agg.Skipped,
		Variations:  variations,
		Agreements:  agreementAlerts,
	}
	report.Totals = totals(report.Variations, report.Agreements)

	s.write(ctx, key, report)

	s.metrics.IncRun(metrics.RunOutcomeSuccess)
	s.metrics.ObserveRunDuration(detector.Mode(), s.clock.Now().Sub(started))
	s.metrics.AddIngested(len(lines), agg.Skipped)
	s.metrics.AddAlerts(string(resolutiondomain.AlertKindVariation), len(variations))
	s.metrics.AddAlerts(string(resolutiondomain.AlertKindAgreement), len(agreementAlerts))

	s.log.Info("detection run complete",
		zap.String("fingerprint", key),
		zap.String("mode", detector.Mode()),
		zap.Int("lines", len(lines)),
		zap.Int("skipped", agg.Skipped),
		zap.Int("variations", len(variations)),
		zap.Int("agreement_violations", len(agreementAlerts)),
	)
	return report, nil
}

// write stores the full, unfiltered report. Failures only cost a future recompute.
func (s *Service) write(ctx context.Context, key string, report domain.Report) {
	payload, err := json.Marshal(report)
	if err != nil {
		s.log.Warn("encode result for cache", zap.String("fingerprint", key), zap.Error(err))
		return
	}
	if err := s.store.Set(ctx, key, payload, s.ttl); err != nil {
		s.metrics.IncCacheEvent(metrics.CacheEventError)
		s.log.Warn("result cache write failed", zap.String("fingerprint", key), zap.Error(err))
		return
	}
	s.metrics.IncCacheEvent(metrics.CacheEventWrite)
}

// applyResolutions annotates alerts with their ledger entry and, unless asked
// otherwise, hides resolved ones. Totals follow the visible alerts.
func (s *Service) applyResolutions(ctx context.Context, report domain.Report, opts domain.RunOptions) (domain.Report, error) {
	keys := make([]string, 0, len(report.Variations)+len(report.Agreements))
	for _, a := range report.Variations {
		keys = append(keys, a.AlertKey)
	}
	for _, a := range report.Agreements {
		keys = append(keys, a.AlertKey)
	}

	resolved, err := s.ledger.Resolutions(ctx, keys)
	if err != nil {
		return domain.Report{}, err
	}

	out := report
	out.Variations = make([]domain.VariationAlert, 0, len(report.Variations))
	for _, a := range report.Variations {
		if r, ok := resolved[a.AlertKey]; ok {
			if !opts.IncludeResolved {
				continue
			}
			a.Resolution = &r
		}
		out.Variations = append(out.Variations, a)
	}

	out.Agreements = make([]domain.AgreementAlert, 0, len(report.Agreements))
	for _, a := range report.Agreements {
		if r, ok := resolved[a.AlertKey]; ok {
			if !opts.IncludeResolved {
				continue
			}
			a.Resolution = &r
		}
		out.Agreements = append(out.Agreements, a)
	}

	out.Totals = totals(out.Variations, out.Agreements)
	return out, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "detection run failed")

	if errors.Is(err, context.Canceled) {
		s.metrics.IncRun(metrics.RunOutcomeCancelled)
		s.log.Info("detection run abandoned", zap.Error(err))
		return err
	}
	s.metrics.IncRun(metrics.RunOutcomeFailed)
	s.metrics.IncRunFailure(err)
	s.log.Error("detection run failed", zap.Error(err))
	return err
}

func totals(variations []domain.VariationAlert, agreements []domain.AgreementAlert) domain.Totals {
	t := domain.Totals{
		Variations: decimal.Zero,
		Agreements: decimal.Zero,
	}
	for _, a := range variations {
		t.Variations = t.Variations.Add(a.Impact())
	}
	for _, a := range agreements {
		t.Agreements = t.Agreements.Add(a.Impact())
	}
	t.Total = t.Variations.Add(t.Agreements)
	return t
}

func sortVariations(items []domain.VariationAlert) {
	sort.SliceStable(items, func(i, j int) bool {
		if c := items[i].Impact().Cmp(items[j].Impact()); c != 0 {
			return c > 0
		}
		return items[i].AlertKey < items[j].AlertKey
	})
}

func sortAgreements(items []domain.AgreementAlert) {
	sort.SliceStable(items, func(i, j int) bool {
		if c := items[i].Impact().Cmp(items[j].Impact()); c != 0 {
			return c > 0
		}
		return items[i].AlertKey < items[j].AlertKey
	})
}

// cacheKey extends the filter fingerprint with the detection settings, so a
// threshold reload never serves results computed under the old thresholds.
func cacheKey(filter purchasingdomain.Filter, settings config.DetectionConfig) string {
	markers := append([]string(nil), settings.CreditMarkers...)
	sort.Strings(markers)
	raw := strings.Join([]string{
		settings.Mode,
		decimal.NewFromFloat(settings.MinDifference).String(),
		decimal.NewFromFloat(settings.MinPercentage).String(),
		strings.Join(markers, ","),
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return filter.Fingerprint() + ":" + hex.EncodeToString(sum[:])[:12]
}
