package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, resolution *Resolution) error
	Update(ctx context.Context, db *gorm.DB, resolution *Resolution) error
	Delete(ctx context.Context, db *gorm.DB, orgID snowflake.ID, alertKey string) error
	FindByKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, alertKey string) (*Resolution, error)
	FindByKeys(ctx context.Context, db *gorm.DB, orgID snowflake.ID, alertKeys []string) ([]Resolution, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, kind AlertKind) ([]Resolution, error)
}
