package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	types "github.com/mediabridge/asset-gateway/internal/domain/auth"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

type SessionRepo interface {
	GetByCustomerToken(ctx context.Context, tx *gorm.DB, customer int, token string) (*types.SessionUser, error)
	Create(ctx context.Context, tx *gorm.DB, rows []*types.SessionUser) ([]*types.SessionUser, error)
	DeleteExpired(ctx context.Context, tx *gorm.DB, customer int) error
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) GetByCustomerToken(ctx context.Context, tx *gorm.DB, customer int, token string) (*types.SessionUser, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if token == "" {
		return nil, pkgerrors.ErrNotFound
	}
	var row types.SessionUser
	err := t.WithContext(ctx).
		Where("customer = ? AND token = ?", customer, token).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *sessionRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.SessionUser) ([]*types.SessionUser, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.SessionUser{}, nil
	}
	if err := t.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, tx *gorm.DB, customer int) error {
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).
		Where("customer = ? AND expires_at < ?", customer, time.Now()).
		Delete(&types.SessionUser{}).Error
}
