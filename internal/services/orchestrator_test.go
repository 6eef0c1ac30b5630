package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mediabridge/asset-gateway/internal/domain/assets"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/platform/gcs"
)

func imageRecord(id assets.ID) *assets.AssetRecord {
	return &assets.AssetRecord{
		Customer: id.Customer,
		Space:    id.Space,
		ID:       id.Asset,
		Family:   string(assets.KindImage),
		Width:    1024,
		Height:   768,
		Roles:    []byte(`[]`),
		Version:  3,
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestOrchestrateStagesImageAsset(t *testing.T) {
	id := assets.ID{Customer: 2, Space: 1, Asset: "girl-with-pearls"}
	repo := newFakeAssetRepo()
	repo.put(imageRecord(id))
	store := newFakeContentStore()
	store.put(gcs.BucketCategoryStaged, "2/1/girl-with-pearls/thumbs/100.jpg", []byte("x"))
	store.put(gcs.BucketCategoryStaged, "2/1/girl-with-pearls/thumbs/400.jpg", []byte("x"))
	store.put(gcs.BucketCategoryStaged, "2/1/girl-with-pearls/thumbs/broken", []byte("x"))

	orch := NewAssetOrchestrator(testLogger(), repo, store)
	staged, err := orch.Orchestrate(context.Background(), id)
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if staged.Status != assets.StatusOrchestrated {
		t.Fatalf("status = %s, want orchestrated", staged.Status)
	}
	if staged.Kind != assets.KindImage || staged.Image == nil {
		t.Fatalf("expected image details, got %+v", staged)
	}
	if staged.Image.Width != 1024 || staged.Image.Height != 768 {
		t.Fatalf("dimensions = %dx%d, want 1024x768", staged.Image.Width, staged.Image.Height)
	}
	sizes := append([]int(nil), staged.Image.ThumbnailSizes...)
	sort.Ints(sizes)
	if len(sizes) != 2 || sizes[0] != 100 || sizes[1] != 400 {
		t.Fatalf("thumbnail sizes = %v, want [100 400]", sizes)
	}
}

func TestOrchestrateSniffsMissingDimensions(t *testing.T) {
	id := assets.ID{Customer: 2, Space: 1, Asset: "no-dims"}
	rec := imageRecord(id)
	rec.Width, rec.Height = 0, 0
	repo := newFakeAssetRepo()
	repo.put(rec)
	store := newFakeContentStore()
	store.put(gcs.BucketCategoryStaged, "2/1/no-dims/original", encodePNG(t, 640, 480))

	orch := NewAssetOrchestrator(testLogger(), repo, store)
	staged, err := orch.Orchestrate(context.Background(), id)
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if staged.Image.Width != 640 || staged.Image.Height != 480 {
		t.Fatalf("sniffed %dx%d, want 640x480", staged.Image.Width, staged.Image.Height)
	}
}

func TestOrchestrateConcurrentCallersFetchOnce(t *testing.T) {
	id := assets.ID{Customer: 2, Space: 1, Asset: "hot-asset"}
	repo := newFakeAssetRepo()
	repo.put(imageRecord(id))
	repo.getDelay = 20 * time.Millisecond
	store := newFakeContentStore()

	orch := NewAssetOrchestrator(testLogger(), repo, store)

	const workers = 16
	results := make([]*assets.StagedAsset, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			staged, err := orch.Orchestrate(context.Background(), id)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = staged
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&repo.getCalls); got != 1 {
		t.Fatalf("backing fetches = %d, want exactly 1", got)
	}
	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatalf("worker %d saw a different staged instance", i)
		}
	}
}

func TestOrchestrateUnknownAsset(t *testing.T) {
	orch := NewAssetOrchestrator(testLogger(), newFakeAssetRepo(), newFakeContentStore())
	_, err := orch.Orchestrate(context.Background(), assets.ID{Customer: 2, Space: 1, Asset: "nope"})
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrchestrateFailureIsNotCached(t *testing.T) {
	id := assets.ID{Customer: 2, Space: 1, Asset: "flaky"}
	repo := newFakeAssetRepo()
	repo.put(imageRecord(id))
	store := newFakeContentStore()
	store.listErr = fmt.Errorf("bucket unavailable")

	orch := NewAssetOrchestrator(testLogger(), repo, store)
	if _, err := orch.Orchestrate(context.Background(), id); !errors.Is(err, pkgerrors.ErrOrchestration) {
		t.Fatalf("expected ErrOrchestration, got %v", err)
	}

	// Backing store recovers; the next call retries rather than replaying
	// a cached failure.
	store.listErr = nil
	staged, err := orch.Orchestrate(context.Background(), id)
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if staged.Status != assets.StatusOrchestrated {
		t.Fatalf("status = %s, want orchestrated", staged.Status)
	}
	if got := atomic.LoadInt32(&repo.getCalls); got != 2 {
		t.Fatalf("backing fetches = %d, want 2 (one per attempt)", got)
	}
}

func TestEvictDropsOlderVersions(t *testing.T) {
	id := assets.ID{Customer: 2, Space: 1, Asset: "versioned"}
	repo := newFakeAssetRepo()
	repo.put(imageRecord(id))
	store := newFakeContentStore()

	orch := NewAssetOrchestrator(testLogger(), repo, store)
	if _, err := orch.Orchestrate(context.Background(), id); err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}

	// Same version: staged state survives.
	orch.Evict(id, 3)
	if _, err := orch.Orchestrate(context.Background(), id); err != nil {
		t.Fatalf("Orchestrate after no-op evict: %v", err)
	}
	if got := atomic.LoadInt32(&repo.getCalls); got != 1 {
		t.Fatalf("fetches after no-op evict = %d, want 1", got)
	}

	// Newer version: staged state drops and the next call refetches.
	orch.Evict(id, 4)
	if _, err := orch.Orchestrate(context.Background(), id); err != nil {
		t.Fatalf("Orchestrate after evict: %v", err)
	}
	if got := atomic.LoadInt32(&repo.getCalls); got != 2 {
		t.Fatalf("fetches after evict = %d, want 2", got)
	}
}

func TestOrchestrateFileAsset(t *testing.T) {
	id := assets.ID{Customer: 2, Space: 1, Asset: "report.pdf"}
	rec := imageRecord(id)
	rec.Family = string(assets.KindFile)
	rec.MediaType = "application/pdf"
	rec.Origin = "https://origin.example/report.pdf"
	repo := newFakeAssetRepo()
	repo.put(rec)

	orch := NewAssetOrchestrator(testLogger(), repo, newFakeContentStore())
	staged, err := orch.Orchestrate(context.Background(), id)
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if staged.Kind != assets.KindFile || staged.File == nil {
		t.Fatalf("expected file details, got %+v", staged)
	}
	if staged.File.MediaType != "application/pdf" {
		t.Fatalf("media type = %q", staged.File.MediaType)
	}
}
