package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mediabridge/asset-gateway/internal/domain/projections"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
)

func projectionKey() projections.Key {
	return projections.Key{Customer: 2, QueryName: "my-images", Args: []string{"4"}}
}

func staticGenerator(payload string, calls *int32, delay time.Duration) GenerateFunc {
	return func(ctx context.Context, w io.Writer) error {
		atomic.AddInt32(calls, 1)
		if delay > 0 {
			time.Sleep(delay)
		}
		_, err := io.Copy(w, bytes.NewReader([]byte(payload)))
		return err
	}
}

func readStream(t *testing.T, res *ProjectionResult) string {
	t.Helper()
	if res.Stream == nil {
		t.Fatalf("status %s carried no stream", res.Status)
	}
	defer res.Stream.Close()
	data, err := io.ReadAll(res.Stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	return string(data)
}

func TestGetOrCreateGeneratesThenServes(t *testing.T) {
	cache := NewProjectionCache(testLogger(), newFakeProjectionRepo(), newFakeContentStore())
	var calls int32
	gen := staticGenerator(`{"items":[]}`, &calls, 0)

	res, err := cache.GetOrCreate(context.Background(), projectionKey(), 7, GetOptions{}, gen)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if res.Status != projections.StatusAvailable {
		t.Fatalf("status = %s, want available", res.Status)
	}
	if got := readStream(t, res); got != `{"items":[]}` {
		t.Fatalf("payload = %q", got)
	}

	// Second call serves the persisted bytes without regenerating.
	res2, err := cache.GetOrCreate(context.Background(), projectionKey(), 7, GetOptions{}, gen)
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if got := readStream(t, res2); got != `{"items":[]}` {
		t.Fatalf("second payload = %q", got)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("generator ran %d times, want 1", got)
	}
}

func TestGetOrCreateConcurrentSingleGeneration(t *testing.T) {
	cache := NewProjectionCache(testLogger(), newFakeProjectionRepo(), newFakeContentStore())
	var calls int32
	gen := staticGenerator("payload", &calls, 20*time.Millisecond)

	const workers = 12
	payloads := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := cache.GetOrCreate(context.Background(), projectionKey(), 1, GetOptions{}, gen)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			if res.Status != projections.StatusAvailable {
				t.Errorf("worker %d: status %s", i, res.Status)
				return
			}
			payloads[i] = readStream(t, res)
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("generator ran %d times under contention, want exactly 1", got)
	}
	for i, p := range payloads {
		if p != "payload" {
			t.Fatalf("worker %d payload = %q", i, p)
		}
	}
}

func TestGetOrCreateVersionBumpRegenerates(t *testing.T) {
	cache := NewProjectionCache(testLogger(), newFakeProjectionRepo(), newFakeContentStore())
	var calls int32

	if _, err := cache.GetOrCreate(context.Background(), projectionKey(), 1, GetOptions{}, staticGenerator("v1", &calls, 0)); err != nil {
		t.Fatalf("first generation: %v", err)
	}
	res, err := cache.GetOrCreate(context.Background(), projectionKey(), 2, GetOptions{}, staticGenerator("v2", &calls, 0))
	if err != nil {
		t.Fatalf("second generation: %v", err)
	}
	if got := readStream(t, res); got != "v2" {
		t.Fatalf("payload after version bump = %q, want v2", got)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("generator ran %d times, want 2", got)
	}
}

func TestGetOrCreateNoWaitReturnsInProcess(t *testing.T) {
	cache := NewProjectionCache(testLogger(), newFakeProjectionRepo(), newFakeContentStore())

	started := make(chan struct{})
	unblock := make(chan struct{})
	blocking := func(ctx context.Context, w io.Writer) error {
		close(started)
		<-unblock
		_, err := w.Write([]byte("slow"))
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := cache.GetOrCreate(context.Background(), projectionKey(), 1, GetOptions{}, blocking)
		done <- err
	}()
	<-started

	var calls int32
	res, err := cache.GetOrCreate(context.Background(), projectionKey(), 1, GetOptions{NoWait: true}, staticGenerator("x", &calls, 0))
	if err != nil {
		t.Fatalf("NoWait GetOrCreate: %v", err)
	}
	if res.Status != projections.StatusInProcess {
		t.Fatalf("NoWait status = %s, want in_process", res.Status)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("NoWait caller must not trigger its own generation")
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("blocked generation: %v", err)
	}
}

func TestGetOrCreateNoSourceIsTerminalNotFound(t *testing.T) {
	cache := NewProjectionCache(testLogger(), newFakeProjectionRepo(), newFakeContentStore())
	var calls int32
	gen := func(ctx context.Context, w io.Writer) error {
		atomic.AddInt32(&calls, 1)
		return ErrNoProjectionSource
	}

	for i := 0; i < 2; i++ {
		res, err := cache.GetOrCreate(context.Background(), projectionKey(), 1, GetOptions{}, gen)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if res.Status != projections.StatusNotFound {
			t.Fatalf("call %d: status = %s, want not_found", i, res.Status)
		}
	}
	// NotFound is terminal for a version: the second call serves it from
	// the metadata row.
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("generator ran %d times, want 1", got)
	}
}

func TestGetOrCreateGenerationErrorIsNotServable(t *testing.T) {
	repo := newFakeProjectionRepo()
	cache := NewProjectionCache(testLogger(), repo, newFakeContentStore())

	boom := func(ctx context.Context, w io.Writer) error {
		return fmt.Errorf("render failed")
	}
	if _, err := cache.GetOrCreate(context.Background(), projectionKey(), 1, GetOptions{}, boom); !errors.Is(err, pkgerrors.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}

	// The failure is recorded on the row but never served; a healthy
	// generator on the next call regenerates.
	rec, err := repo.GetByKey(context.Background(), nil, projectionKey())
	if err != nil {
		t.Fatalf("projection row after failure: %v", err)
	}
	if rec.Status != projections.StatusError {
		t.Fatalf("recorded status = %s, want error", rec.Status)
	}

	var calls int32
	res, err := cache.GetOrCreate(context.Background(), projectionKey(), 1, GetOptions{}, staticGenerator("ok", &calls, 0))
	if err != nil {
		t.Fatalf("regeneration after failure: %v", err)
	}
	if res.Status != projections.StatusAvailable || readStream(t, res) != "ok" {
		t.Fatalf("expected regenerated payload, got status %s", res.Status)
	}
}
