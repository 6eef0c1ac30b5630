package assets

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	types "github.com/mediabridge/asset-gateway/internal/domain/assets"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

// Filter narrows a query to the filters a parsed named query derives.
// Nil pointer fields are unset.
type Filter struct {
	Space   *int
	String1 string
	String2 string
	String3 string
	Number1 *int64
	Number2 *int64
	Number3 *int64
	MinDate *time.Time
	MaxDate *time.Time
}

type AssetRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id types.ID) (*types.AssetRecord, error)
	Query(ctx context.Context, tx *gorm.DB, customer int, f Filter) ([]*types.AssetRecord, error)
	MaxVersion(ctx context.Context, tx *gorm.DB, customer int, f Filter) (int64, error)
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) GetByID(ctx context.Context, tx *gorm.DB, id types.ID) (*types.AssetRecord, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var row types.AssetRecord
	err := t.WithContext(ctx).
		Where("customer = ? AND space = ? AND id = ?", id.Customer, id.Space, id.Asset).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *assetRepo) Query(ctx context.Context, tx *gorm.DB, customer int, f Filter) ([]*types.AssetRecord, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := applyFilter(t.WithContext(ctx).Where("customer = ?", customer), f)

	var out []*types.AssetRecord
	// Fixed ordering keeps repeated executions byte-for-byte reproducible
	// in any generated manifest.
	if err := q.Order("created ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) MaxVersion(ctx context.Context, tx *gorm.DB, customer int, f Filter) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	q := applyFilter(t.WithContext(ctx).Model(&types.AssetRecord{}).Where("customer = ?", customer), f)

	var maxVersion *int64
	if err := q.Select("MAX(version)").Scan(&maxVersion).Error; err != nil {
		return 0, err
	}
	if maxVersion == nil {
		return 0, nil
	}
	return *maxVersion, nil
}

func applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if f.Space != nil {
		q = q.Where("space = ?", *f.Space)
	}
	if f.String1 != "" {
		q = q.Where("reference1 = ?", f.String1)
	}
	if f.String2 != "" {
		q = q.Where("reference2 = ?", f.String2)
	}
	if f.String3 != "" {
		q = q.Where("reference3 = ?", f.String3)
	}
	if f.Number1 != nil {
		q = q.Where("number1 = ?", *f.Number1)
	}
	if f.Number2 != nil {
		q = q.Where("number2 = ?", *f.Number2)
	}
	if f.Number3 != nil {
		q = q.Where("number3 = ?", *f.Number3)
	}
	if f.MinDate != nil {
		q = q.Where("created >= ?", *f.MinDate)
	}
	if f.MaxDate != nil {
		q = q.Where("created <= ?", *f.MaxDate)
	}
	return q
}
