package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

type BucketCategory string

const (
	// BucketCategoryStaged holds origin bytes and derivative thumbnails
	// staged for fast serving.
	BucketCategoryStaged BucketCategory = "staged"
	// BucketCategoryProjection holds generated composite derivatives.
	BucketCategoryProjection BucketCategory = "projection"
)

type bucketConfig struct {
	name string
}

// ContentStore is byte storage keyed by customer/space/identifier paths;
// it backs both origin staging and persisted projections.
type ContentStore interface {
	Upload(ctx context.Context, category BucketCategory, key string, r io.Reader) (int64, error)
	Download(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error)
	OpenRangeReader(ctx context.Context, category BucketCategory, key string, offset, length int64) (io.ReadCloser, error)
	GetObjectAttrs(ctx context.Context, category BucketCategory, key string) (*ObjectAttrs, error)
	ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error)
	Delete(ctx context.Context, category BucketCategory, key string) error
}

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
}

type contentStore struct {
	log              *logger.Logger
	storageClient    *storage.Client
	stagedBucket     bucketConfig
	projectionBucket bucketConfig
}

func NewContentStore(log *logger.Logger) (ContentStore, error) {
	serviceLog := log.With("service", "ContentStore")

	stagedBucketName := os.Getenv("STAGED_GCS_BUCKET_NAME")
	projectionBucketName := os.Getenv("PROJECTION_GCS_BUCKET_NAME")
	if stagedBucketName == "" {
		return nil, fmt.Errorf("missing env var STAGED_GCS_BUCKET_NAME")
	}
	if projectionBucketName == "" {
		return nil, fmt.Errorf("missing env var PROJECTION_GCS_BUCKET_NAME")
	}

	ctx := context.Background()
	var opts []option.ClientOption
	if host := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")); host != "" {
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Content store initialized",
		"staged_bucket", stagedBucketName,
		"projection_bucket", projectionBucketName,
	)

	return &contentStore{
		log:              serviceLog,
		storageClient:    stClient,
		stagedBucket:     bucketConfig{name: stagedBucketName},
		projectionBucket: bucketConfig{name: projectionBucketName},
	}, nil
}

func (cs *contentStore) getBucketConfig(category BucketCategory) (bucketConfig, error) {
	switch category {
	case BucketCategoryStaged:
		return cs.stagedBucket, nil
	case BucketCategoryProjection:
		return cs.projectionBucket, nil
	default:
		return bucketConfig{}, fmt.Errorf("unknown bucket category: %s", category)
	}
}

func (cs *contentStore) Upload(ctx context.Context, category BucketCategory, key string, r io.Reader) (int64, error) {
	cfg, err := cs.getBucketConfig(category)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := cs.storageClient.Bucket(cfg.name).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return n, nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".tif"), strings.HasSuffix(s, ".tiff"):
		return "image/tiff"
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".webm"):
		return "video/webm"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}

// The download context must outlive this call: cancel is tied to the
// reader's Close, not deferred here, or callers read 0 bytes.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (cs *contentStore) Download(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	cfg, err := cs.getBucketConfig(category)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := cs.storageClient.Bucket(cfg.name).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (cs *contentStore) OpenRangeReader(ctx context.Context, category BucketCategory, key string, offset, length int64) (io.ReadCloser, error) {
	cfg, err := cs.getBucketConfig(category)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := cs.storageClient.Bucket(cfg.name).Object(key).NewRangeReader(ctx2, offset, length)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS range reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (cs *contentStore) GetObjectAttrs(ctx context.Context, category BucketCategory, key string) (*ObjectAttrs, error) {
	cfg, err := cs.getBucketConfig(category)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	attrs, err := cs.storageClient.Bucket(cfg.name).Object(key).Attrs(ctx2)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return &ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
		ETag:        attrs.Etag,
	}, nil
}

func (cs *contentStore) ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error) {
	cfg, err := cs.getBucketConfig(category)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := cs.storageClient.Bucket(cfg.name).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (cs *contentStore) Delete(ctx context.Context, category BucketCategory, key string) error {
	cfg, err := cs.getBucketConfig(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	o := cs.storageClient.Bucket(cfg.name).Object(key)
	if err := o.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, cfg.name, err)
	}
	return nil
}
