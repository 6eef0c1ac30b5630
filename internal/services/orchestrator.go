package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	// Dimension sniffing during staging; webp and tiff origins are common
	// enough to register alongside the stdlib formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	assetrepo "github.com/mediabridge/asset-gateway/internal/data/repos/assets"
	"github.com/mediabridge/asset-gateway/internal/domain/assets"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/pkg/keymutex"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
	"github.com/mediabridge/asset-gateway/internal/platform/gcs"
)

// AssetOrchestrator stages asset metadata/content on first access and
// reuses the staged state afterwards. For any ID, concurrent callers cause
// exactly one backing fetch.
type AssetOrchestrator interface {
	Orchestrate(ctx context.Context, id assets.ID) (*assets.StagedAsset, error)
	Evict(id assets.ID, version int64)
}

type orchestrator struct {
	log      *logger.Logger
	assets   assetrepo.AssetRepo
	store    gcs.ContentStore
	sections *keymutex.KeyMutex

	mu     sync.RWMutex
	staged map[string]*assets.StagedAsset
}

func NewAssetOrchestrator(log *logger.Logger, assetRepo assetrepo.AssetRepo, store gcs.ContentStore) AssetOrchestrator {
	return &orchestrator{
		log:      log.With("service", "AssetOrchestrator"),
		assets:   assetRepo,
		store:    store,
		sections: keymutex.New(),
		staged:   map[string]*assets.StagedAsset{},
	}
}

func (o *orchestrator) Orchestrate(ctx context.Context, id assets.ID) (*assets.StagedAsset, error) {
	if a := o.lookup(id); a != nil {
		return a, nil
	}

	release, err := o.sections.Lock(ctx, id.String())
	if err != nil {
		return nil, err
	}
	defer release()

	// Double-check after acquiring: another caller may have staged it
	// while we waited.
	if a := o.lookup(id); a != nil {
		return a, nil
	}

	staged, err := o.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.staged[id.String()] = staged
	o.mu.Unlock()
	return staged, nil
}

func (o *orchestrator) lookup(id assets.ID) *assets.StagedAsset {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a := o.staged[id.String()]
	if a != nil && a.Status == assets.StatusOrchestrated {
		return a
	}
	return nil
}

// Evict drops staged state when the ingest side reports a newer version.
func (o *orchestrator) Evict(id assets.ID, version int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a := o.staged[id.String()]
	if a == nil {
		return
	}
	if version == 0 || a.Version < version {
		delete(o.staged, id.String())
		o.log.Debug("Evicted staged asset", "asset", id.String(), "version", version)
	}
}

// fetch runs the backing work on a context detached from the caller: a
// client disconnect must not abort staging that later callers will reuse.
func (o *orchestrator) fetch(ctx context.Context, id assets.ID) (*assets.StagedAsset, error) {
	bctx := context.WithoutCancel(ctx)

	staged := &assets.StagedAsset{ID: id, Status: assets.StatusOrchestrating}

	record, err := o.assets.GetByID(bctx, nil, id)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		staged.Status = assets.StatusError
		return nil, fmt.Errorf("%w: fetch asset %s: %v", pkgerrors.ErrOrchestration, id.String(), err)
	}

	staged.Roles = record.RoleList()
	staged.Version = record.Version

	switch record.Family {
	case string(assets.KindFile):
		staged.Kind = assets.KindFile
		staged.File = &assets.FileDetails{
			MediaType: record.MediaType,
			Origin:    record.Origin,
		}
	default:
		staged.Kind = assets.KindImage
		details := &assets.ImageDetails{
			Width:      record.Width,
			Height:     record.Height,
			StorageKey: stagedObjectKey(id),
		}
		g, gctx := errgroup.WithContext(bctx)
		g.Go(func() error {
			sizes, err := o.thumbnailSizes(gctx, id)
			if err != nil {
				return err
			}
			details.ThumbnailSizes = sizes
			return nil
		})
		if details.Width == 0 || details.Height == 0 {
			g.Go(func() error {
				w, h, err := o.sniffDimensions(gctx, details.StorageKey)
				if err != nil {
					return err
				}
				details.Width, details.Height = w, h
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			staged.Status = assets.StatusError
			return nil, fmt.Errorf("%w: stage image %s: %v", pkgerrors.ErrOrchestration, id.String(), err)
		}
		staged.Image = details
	}

	staged.Status = assets.StatusOrchestrated
	return staged, nil
}

func stagedObjectKey(id assets.ID) string {
	return fmt.Sprintf("%d/%d/%s/original", id.Customer, id.Space, id.Asset)
}

func thumbsPrefix(id assets.ID) string {
	return fmt.Sprintf("%d/%d/%s/thumbs/", id.Customer, id.Space, id.Asset)
}

// thumbnailSizes discovers the derivative sizes already materialized in the
// content store, e.g. ".../thumbs/400.jpg" contributes 400.
func (o *orchestrator) thumbnailSizes(ctx context.Context, id assets.ID) ([]int, error) {
	keys, err := o.store.ListKeys(ctx, gcs.BucketCategoryStaged, thumbsPrefix(id))
	if err != nil {
		return nil, fmt.Errorf("list thumbnails: %w", err)
	}
	sizes := make([]int, 0, len(keys))
	for _, k := range keys {
		base := path.Base(k)
		if i := strings.IndexByte(base, '.'); i > 0 {
			base = base[:i]
		}
		n, err := strconv.Atoi(base)
		if err != nil || n <= 0 {
			continue
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

// sniffDimensions decodes just the image header from the staged original.
func (o *orchestrator) sniffDimensions(ctx context.Context, key string) (int, int, error) {
	// DecodeConfig only needs the header; 64 KiB covers every supported
	// format's metadata.
	r, err := o.store.OpenRangeReader(ctx, gcs.BucketCategoryStaged, key, 0, 64*1024)
	if err != nil {
		return 0, 0, fmt.Errorf("open staged original: %w", err)
	}
	defer r.Close()

	head, err := io.ReadAll(r)
	if err != nil {
		return 0, 0, fmt.Errorf("read staged original: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(head))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
