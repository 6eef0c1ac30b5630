package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	projectionrepo "github.com/mediabridge/asset-gateway/internal/data/repos/projections"
	"github.com/mediabridge/asset-gateway/internal/domain/projections"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/pkg/keymutex"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
	"github.com/mediabridge/asset-gateway/internal/platform/gcs"
)

// ErrNoProjectionSource is returned by a generator when the underlying
// result set has no content to project; the cache records NotFound.
var ErrNoProjectionSource = errors.New("no projection source content")

// GenerateFunc produces the projection bytes for one cache key.
type GenerateFunc func(ctx context.Context, w io.Writer) error

type GetOptions struct {
	// NoWait callers receive StatusInProcess immediately instead of
	// blocking behind the holder of the generation section.
	NoWait bool
}

// ProjectionResult carries the outcome; Stream is non-nil only for
// StatusAvailable and must be closed by the caller.
type ProjectionResult struct {
	Status    projections.Status
	Stream    io.ReadCloser
	SizeBytes int64
}

// ProjectionCache generates and serves composite derivatives with at most
// one concurrent generation per cache key.
type ProjectionCache interface {
	GetOrCreate(ctx context.Context, key projections.Key, version int64, opts GetOptions, generate GenerateFunc) (*ProjectionResult, error)
}

type projectionCache struct {
	log      *logger.Logger
	repo     projectionrepo.ProjectionRepo
	store    gcs.ContentStore
	sections *keymutex.KeyMutex
}

func NewProjectionCache(log *logger.Logger, repo projectionrepo.ProjectionRepo, store gcs.ContentStore) ProjectionCache {
	return &projectionCache{
		log:      log.With("service", "ProjectionCache"),
		repo:     repo,
		store:    store,
		sections: keymutex.New(),
	}
}

func (pc *projectionCache) GetOrCreate(ctx context.Context, key projections.Key, version int64, opts GetOptions, generate GenerateFunc) (*ProjectionResult, error) {
	if res, ok, err := pc.serveCompleted(ctx, key, version); err != nil {
		return nil, err
	} else if ok {
		return res, nil
	}

	var release func()
	if opts.NoWait {
		r, ok := pc.sections.TryLock(key.String())
		if !ok {
			return &ProjectionResult{Status: projections.StatusInProcess}, nil
		}
		release = r
	} else {
		r, err := pc.sections.Lock(ctx, key.String())
		if err != nil {
			return nil, err
		}
		release = r
	}
	defer release()

	// Double-check: a concurrent holder may have completed this version
	// while we waited for the section.
	if res, ok, err := pc.serveCompleted(ctx, key, version); err != nil {
		return nil, err
	} else if ok {
		return res, nil
	}

	return pc.generate(ctx, key, version, generate)
}

// serveCompleted returns a terminal result for the current version if one
// is already persisted. Error rows and stale versions force regeneration.
func (pc *projectionCache) serveCompleted(ctx context.Context, key projections.Key, version int64) (*ProjectionResult, bool, error) {
	rec, err := pc.repo.GetByKey(ctx, nil, key)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup projection %s: %w", key.String(), err)
	}
	if rec.Version != version {
		return nil, false, nil
	}
	switch rec.Status {
	case projections.StatusAvailable:
		stream, err := pc.store.Download(ctx, gcs.BucketCategoryProjection, rec.StorageKey)
		if err != nil {
			// Metadata says available but bytes are gone; regenerate.
			pc.log.Warn("Projection bytes missing, regenerating", "key", key.String(), "error", err)
			return nil, false, nil
		}
		return &ProjectionResult{Status: projections.StatusAvailable, Stream: stream, SizeBytes: rec.SizeBytes}, true, nil
	case projections.StatusNotFound:
		return &ProjectionResult{Status: projections.StatusNotFound}, true, nil
	default:
		return nil, false, nil
	}
}

// generate runs the single generation for this key+version. The producer
// context is detached from the caller so a disconnect cannot strand
// blocked waiters with a half-built projection.
func (pc *projectionCache) generate(ctx context.Context, key projections.Key, version int64, generate GenerateFunc) (*ProjectionResult, error) {
	bctx := context.WithoutCancel(ctx)

	rec := &projections.Record{
		Customer:  key.Customer,
		QueryName: key.QueryName,
		ArgsHash:  key.ArgsHash(),
		Version:   version,
		Status:    projections.StatusInProcess,
	}
	if err := pc.repo.Upsert(bctx, nil, rec); err != nil {
		return nil, fmt.Errorf("mark projection in process: %w", err)
	}

	var buf bytes.Buffer
	if err := generate(bctx, &buf); err != nil {
		if errors.Is(err, ErrNoProjectionSource) {
			rec.Status = projections.StatusNotFound
			if upErr := pc.repo.Upsert(bctx, nil, rec); upErr != nil {
				return nil, fmt.Errorf("record projection not found: %w", upErr)
			}
			return &ProjectionResult{Status: projections.StatusNotFound}, nil
		}
		rec.Status = projections.StatusError
		if upErr := pc.repo.Upsert(bctx, nil, rec); upErr != nil {
			pc.log.Error("Failed to record projection error", "key", key.String(), "error", upErr)
		}
		return nil, fmt.Errorf("%w: %s: %v", pkgerrors.ErrGeneration, key.String(), err)
	}

	sum := sha256.Sum256(buf.Bytes())
	storageKey := fmt.Sprintf("%d/%s/%s/%d.json", key.Customer, key.QueryName, key.ArgsHash(), version)
	size, err := pc.store.Upload(bctx, gcs.BucketCategoryProjection, storageKey, bytes.NewReader(buf.Bytes()))
	if err != nil {
		rec.Status = projections.StatusError
		if upErr := pc.repo.Upsert(bctx, nil, rec); upErr != nil {
			pc.log.Error("Failed to record projection error", "key", key.String(), "error", upErr)
		}
		return nil, fmt.Errorf("%w: persist %s: %v", pkgerrors.ErrGeneration, key.String(), err)
	}

	rec.Status = projections.StatusAvailable
	rec.StorageKey = storageKey
	rec.SizeBytes = size
	rec.ContentHash = hex.EncodeToString(sum[:])
	if err := pc.repo.Upsert(bctx, nil, rec); err != nil {
		return nil, fmt.Errorf("record projection available: %w", err)
	}

	stream, err := pc.store.Download(ctx, gcs.BucketCategoryProjection, storageKey)
	if err != nil {
		return nil, fmt.Errorf("open generated projection %s: %w", key.String(), err)
	}
	return &ProjectionResult{Status: projections.StatusAvailable, Stream: stream, SizeBytes: size}, nil
}
