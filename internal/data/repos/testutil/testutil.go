package testutil

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	assettypes "github.com/mediabridge/asset-gateway/internal/domain/assets"
	authtypes "github.com/mediabridge/asset-gateway/internal/domain/auth"
	projectiontypes "github.com/mediabridge/asset-gateway/internal/domain/projections"
	querytypes "github.com/mediabridge/asset-gateway/internal/domain/queries"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

var (
	dbOnce        sync.Once
	db            *gorm.DB
	dbErr         error
	errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			dbErr = errMissingDSN
			return
		}

		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if err != nil {
			dbErr = err
			return
		}

		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			dbErr = err
			return
		}

		dbErr = db.AutoMigrate(
			&assettypes.AssetRecord{},
			&authtypes.SessionUser{},
			&querytypes.NamedQuery{},
			&projectiontypes.Record{},
		)
	})

	if errors.Is(dbErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func SeedAsset(tb testing.TB, ctx context.Context, tx *gorm.DB, id assettypes.ID, mutate func(*assettypes.AssetRecord)) *assettypes.AssetRecord {
	tb.Helper()
	row := &assettypes.AssetRecord{
		Customer: id.Customer,
		Space:    id.Space,
		ID:       id.Asset,
		Family:   string(assettypes.KindImage),
		Origin:   "https://origin.example/" + id.Asset,
		Width:    1024,
		Height:   768,
		Roles:    []byte(`[]`),
		Created:  time.Now().UTC(),
		Version:  1,
	}
	if mutate != nil {
		mutate(row)
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed asset: %v", err)
	}
	return row
}
