package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricewatch/internal/purchasing/domain"
	"gorm.io/gorm"
)

type agreementRepo struct {
	db *gorm.DB
}

func NewAgreementRepository(db *gorm.DB) domain.AgreementSource {
	return &agreementRepo{db: db}
}

func (r *agreementRepo) ListActiveAgreements(ctx context.Context, orgID snowflake.ID) ([]domain.Agreement, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	statuses := make([]string, 0, len(domain.ActiveAgreementStatuses))
	for _, status := range domain.ActiveAgreementStatuses {
		statuses = append(statuses, string(status))
	}

	var items []domain.Agreement
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND LOWER(status) IN ?", orgID, statuses).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
