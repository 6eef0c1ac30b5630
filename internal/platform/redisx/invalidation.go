package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mediabridge/asset-gateway/internal/domain/assets"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

// AssetModified is the callback contract the ingest/transcode pipeline
// publishes when a canonical asset changes. Version carries the new
// optimistic-staging version.
type AssetModified struct {
	Customer int    `json:"customer"`
	Space    int    `json:"space"`
	Asset    string `json:"asset"`
	Version  int64  `json:"version"`
}

func (m AssetModified) ID() assets.ID {
	return assets.ID{Customer: m.Customer, Space: m.Space, Asset: m.Asset}
}

// InvalidationBus receives asset-modified notifications so the gateway can
// evict staged state and stale projections.
type InvalidationBus interface {
	Publish(ctx context.Context, msg AssetModified) error
	StartSubscriber(ctx context.Context, onMsg func(m AssetModified)) error
	Close() error
}

type invalidationBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewInvalidationBus(log *logger.Logger) (InvalidationBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_INVALIDATION_CHANNEL"))
	if ch == "" {
		ch = "asset-modified"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &invalidationBus{
		log:     log.With("service", "InvalidationBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *invalidationBus) Publish(ctx context.Context, msg AssetModified) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal asset-modified: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartSubscriber consumes until ctx is done. Malformed payloads are logged
// and skipped; a notification must never take the gateway down.
func (b *invalidationBus) StartSubscriber(ctx context.Context, onMsg func(m AssetModified)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg AssetModified
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.log.Warn("Dropping malformed asset-modified payload", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (b *invalidationBus) Close() error {
	return b.rdb.Close()
}
