package projections

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/mediabridge/asset-gateway/internal/domain/projections"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

type ProjectionRepo interface {
	GetByKey(ctx context.Context, tx *gorm.DB, key types.Key) (*types.Record, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.Record) error
	Delete(ctx context.Context, tx *gorm.DB, key types.Key) error
}

type projectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectionRepo(db *gorm.DB, baseLog *logger.Logger) ProjectionRepo {
	return &projectionRepo{db: db, log: baseLog.With("repo", "ProjectionRepo")}
}

func (r *projectionRepo) GetByKey(ctx context.Context, tx *gorm.DB, key types.Key) (*types.Record, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var row types.Record
	err := t.WithContext(ctx).
		Where("customer = ? AND query_name = ? AND args_hash = ?", key.Customer, key.QueryName, key.ArgsHash()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *projectionRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.Record) error {
	t := tx
	if t == nil {
		t = r.db
	}
	row.UpdatedAt = time.Now()
	return t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "customer"}, {Name: "query_name"}, {Name: "args_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"version", "status", "storage_key", "size_bytes", "content_hash", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *projectionRepo) Delete(ctx context.Context, tx *gorm.DB, key types.Key) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).
		Where("customer = ? AND query_name = ? AND args_hash = ?", key.Customer, key.QueryName, key.ArgsHash()).
		Delete(&types.Record{}).Error
}
