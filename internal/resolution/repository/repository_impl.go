package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricewatch/internal/resolution/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, resolution *domain.Resolution) error {
	return db.WithContext(ctx).Create(resolution).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, resolution *domain.Resolution) error {
	return db.WithContext(ctx).
		Model(&domain.Resolution{}).
		Where("org_id = ? AND alert_key = ?", resolution.OrgID, resolution.AlertKey).
		Updates(map[string]any{
			"reason":      resolution.Reason,
			"note":        resolution.Note,
			"resolved_at": resolution.ResolvedAt,
			"updated_at":  resolution.UpdatedAt,
		}).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID snowflake.ID, alertKey string) error {
	return db.WithContext(ctx).
		Where("org_id = ? AND alert_key = ?", orgID, alertKey).
		Delete(&domain.Resolution{}).Error
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, alertKey string) (*domain.Resolution, error) {
	var items []domain.Resolution
	err := db.WithContext(ctx).
		Where("org_id = ? AND alert_key = ?", orgID, alertKey).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) FindByKeys(ctx context.Context, db *gorm.DB, orgID snowflake.ID, alertKeys []string) ([]domain.Resolution, error) {
	if len(alertKeys) == 0 {
		return nil, nil
	}
	var items []domain.Resolution
	err := db.WithContext(ctx).
		Where("org_id = ? AND alert_key IN ?", orgID, alertKeys).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, kind domain.AlertKind) ([]domain.Resolution, error) {
	stmt := db.WithContext(ctx).Where("org_id = ?", orgID)
	if kind != "" {
		stmt = stmt.Where("alert_kind = ?", kind)
	}
	var items []domain.Resolution
	err := stmt.Order("resolved_at desc, id desc").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
