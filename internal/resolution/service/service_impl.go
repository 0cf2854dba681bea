package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricewatch/internal/clock"
	"github.com/smallbiznis/pricewatch/internal/observability/metrics"
	"github.com/smallbiznis/pricewatch/internal/orgcontext"
	"github.com/smallbiznis/pricewatch/internal/resolution/domain"
	"github.com/smallbiznis/pricewatch/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lookupChunkSize = 500

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Meter *metrics.LedgerMeter `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	meter *metrics.LedgerMeter
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("resolution.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		meter: p.Meter,
	}
}

func (s *Service) Resolve(ctx context.Context, req domain.ResolveRequest) (domain.Resolution, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Resolution{}, domain.ErrInvalidOrganization
	}

	key := strings.TrimSpace(req.AlertKey)
	kind, ok := domain.KindOf(key)
	if !ok {
		return domain.Resolution{}, domain.ErrInvalidAlertKey
	}

	reason := domain.Reason(strings.ToLower(strings.TrimSpace(string(req.Reason))))
	if reason == "" {
		reason = domain.ReasonOther
	}
	if !reason.Valid() {
		return domain.Resolution{}, domain.ErrInvalidReason
	}

	note := strings.TrimSpace(req.Note)
	if utf8.RuneCountInString(note) > domain.MaxNoteLength {
		return domain.Resolution{}, domain.ErrNoteTooLong
	}

	now := s.clock.Now().UTC()
	resolution := domain.Resolution{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		AlertKey:   key,
		AlertKind:  kind,
		Reason:     reason,
		Note:       note,
		ResolvedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.repo.Insert(ctx, s.db, &resolution)
	if err != nil && db.IsDuplicateKeyErr(err) {
		if err := s.repo.Update(ctx, s.db, &resolution); err != nil {
			return domain.Resolution{}, err
		}
		existing, err := s.repo.FindByKey(ctx, s.db, orgID, key)
		if err != nil {
			return domain.Resolution{}, err
		}
		if existing != nil {
			resolution = *existing
		}
	} else if err != nil {
		return domain.Resolution{}, err
	}

	s.meter.RecordResolved(ctx, string(kind), string(reason))
	s.log.Info("alert resolved",
		zap.String("org_id", orgID.String()),
		zap.String("alert_key", key),
		zap.String("reason", string(reason)),
	)
	return resolution, nil
}

// Unresolve is idempotent; removing an unknown key is not an error.
func (s *Service) Unresolve(ctx context.Context, alertKey string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	key := strings.TrimSpace(alertKey)
	kind, ok := domain.KindOf(key)
	if !ok {
		return domain.ErrInvalidAlertKey
	}
	if err := s.repo.Delete(ctx, s.db, orgID, key); err != nil {
		return err
	}
	s.meter.RecordUnresolved(ctx, string(kind))
	s.log.Info("alert unresolved", zap.String("org_id", orgID.String()), zap.String("alert_key", key))
	return nil
}

func (s *Service) IsResolved(ctx context.Context, alertKey string) (bool, error) {
	resolution, err := s.GetResolution(ctx, alertKey)
	if err != nil {
		return false, err
	}
	return resolution != nil, nil
}

func (s *Service) GetResolution(ctx context.Context, alertKey string) (*domain.Resolution, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	key := strings.TrimSpace(alertKey)
	if key == "" {
		return nil, domain.ErrInvalidAlertKey
	}
	return s.repo.FindByKey(ctx, s.db, orgID, key)
}

// Resolutions looks up many keys at once, keyed by alert key.
func (s *Service) Resolutions(ctx context.Context, alertKeys []string) (map[string]domain.Resolution, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	out := make(map[string]domain.Resolution)
	for start := 0; start < len(alertKeys); start += lookupChunkSize {
		end := start + lookupChunkSize
		if end > len(alertKeys) {
			end = len(alertKeys)
		}
		items, err := s.repo.FindByKeys(ctx, s.db, orgID, alertKeys[start:end])
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			out[item.AlertKey] = item
		}
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, req domain.ListResolutionRequest) ([]domain.Resolution, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	switch req.Kind {
	case "", domain.AlertKindVariation, domain.AlertKindAgreement:
	default:
		return nil, domain.ErrInvalidAlertKey
	}
	return s.repo.List(ctx, s.db, orgID, req.Kind)
}
