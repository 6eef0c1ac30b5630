package queries

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/mediabridge/asset-gateway/internal/domain/queries"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

type NamedQueryRepo interface {
	GetByCustomerName(ctx context.Context, tx *gorm.DB, customer int, name string) (*types.NamedQuery, error)
	Upsert(ctx context.Context, tx *gorm.DB, rows []*types.NamedQuery) error
}

type namedQueryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNamedQueryRepo(db *gorm.DB, baseLog *logger.Logger) NamedQueryRepo {
	return &namedQueryRepo{db: db, log: baseLog.With("repo", "NamedQueryRepo")}
}

func (r *namedQueryRepo) GetByCustomerName(ctx context.Context, tx *gorm.DB, customer int, name string) (*types.NamedQuery, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var row types.NamedQuery
	err := t.WithContext(ctx).
		Where("customer = ? AND name = ?", customer, name).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *namedQueryRepo) Upsert(ctx context.Context, tx *gorm.DB, rows []*types.NamedQuery) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"template"}),
		}).
		Create(&rows).Error
}
