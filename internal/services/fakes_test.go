package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	assetrepo "github.com/mediabridge/asset-gateway/internal/data/repos/assets"
	"github.com/mediabridge/asset-gateway/internal/domain/assets"
	authtypes "github.com/mediabridge/asset-gateway/internal/domain/auth"
	projectiontypes "github.com/mediabridge/asset-gateway/internal/domain/projections"
	querytypes "github.com/mediabridge/asset-gateway/internal/domain/queries"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
	"github.com/mediabridge/asset-gateway/internal/platform/gcs"
)

func testLogger() *logger.Logger {
	log, _ := logger.New("test")
	return log
}

type fakeAssetRepo struct {
	mu      sync.Mutex
	records map[string]*assets.AssetRecord

	getCalls   int32
	queryCalls int32
	getDelay   time.Duration
	getErr     error
	queryErr   error
	queryRows  []*assets.AssetRecord
}

func newFakeAssetRepo() *fakeAssetRepo {
	return &fakeAssetRepo{records: map[string]*assets.AssetRecord{}}
}

func (f *fakeAssetRepo) put(rec *assets.AssetRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.AssetID().String()] = rec
}

func (f *fakeAssetRepo) GetByID(ctx context.Context, tx *gorm.DB, id assets.ID) (*assets.AssetRecord, error) {
	atomic.AddInt32(&f.getCalls, 1)
	if f.getDelay > 0 {
		time.Sleep(f.getDelay)
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id.String()]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return rec, nil
}

func (f *fakeAssetRepo) Query(ctx context.Context, tx *gorm.DB, customer int, filter assetrepo.Filter) ([]*assets.AssetRecord, error) {
	atomic.AddInt32(&f.queryCalls, 1)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryRows, nil
}

func (f *fakeAssetRepo) MaxVersion(ctx context.Context, tx *gorm.DB, customer int, filter assetrepo.Filter) (int64, error) {
	var max int64
	for _, r := range f.queryRows {
		if r.Version > max {
			max = r.Version
		}
	}
	return max, nil
}

type fakeQueryRepo struct {
	rows map[string]*querytypes.NamedQuery
}

func newFakeQueryRepo() *fakeQueryRepo {
	return &fakeQueryRepo{rows: map[string]*querytypes.NamedQuery{}}
}

func (f *fakeQueryRepo) key(customer int, name string) string {
	return fmt.Sprintf("%d/%s", customer, name)
}

func (f *fakeQueryRepo) put(nq *querytypes.NamedQuery) {
	f.rows[f.key(nq.Customer, nq.Name)] = nq
}

func (f *fakeQueryRepo) GetByCustomerName(ctx context.Context, tx *gorm.DB, customer int, name string) (*querytypes.NamedQuery, error) {
	nq, ok := f.rows[f.key(customer, name)]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return nq, nil
}

func (f *fakeQueryRepo) Upsert(ctx context.Context, tx *gorm.DB, rows []*querytypes.NamedQuery) error {
	for _, r := range rows {
		f.put(r)
	}
	return nil
}

type fakeSessionRepo struct {
	sessions map[string]*authtypes.SessionUser
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*authtypes.SessionUser{}}
}

func (f *fakeSessionRepo) put(s *authtypes.SessionUser) {
	f.sessions[s.Token] = s
}

func (f *fakeSessionRepo) GetByCustomerToken(ctx context.Context, tx *gorm.DB, customer int, token string) (*authtypes.SessionUser, error) {
	s, ok := f.sessions[token]
	if !ok || s.Customer != customer {
		return nil, pkgerrors.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessionRepo) Create(ctx context.Context, tx *gorm.DB, rows []*authtypes.SessionUser) ([]*authtypes.SessionUser, error) {
	for _, r := range rows {
		f.put(r)
	}
	return rows, nil
}

func (f *fakeSessionRepo) DeleteExpired(ctx context.Context, tx *gorm.DB, customer int) error {
	return nil
}

type fakeProjectionRepo struct {
	mu   sync.Mutex
	rows map[string]*projectiontypes.Record
}

func newFakeProjectionRepo() *fakeProjectionRepo {
	return &fakeProjectionRepo{rows: map[string]*projectiontypes.Record{}}
}

func (f *fakeProjectionRepo) GetByKey(ctx context.Context, tx *gorm.DB, key projectiontypes.Key) (*projectiontypes.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[key.String()]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeProjectionRepo) Upsert(ctx context.Context, tx *gorm.DB, row *projectiontypes.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *row
	f.rows[fmt.Sprintf("%d/%s/%s", row.Customer, row.QueryName, row.ArgsHash)] = &cp
	return nil
}

func (f *fakeProjectionRepo) Delete(ctx context.Context, tx *gorm.DB, key projectiontypes.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, key.String())
	return nil
}

type fakeContentStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	uploadCalls int32
	listErr     error
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{objects: map[string][]byte{}}
}

func (f *fakeContentStore) fullKey(category gcs.BucketCategory, key string) string {
	return string(category) + "/" + key
}

func (f *fakeContentStore) put(category gcs.BucketCategory, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[f.fullKey(category, key)] = data
}

func (f *fakeContentStore) Upload(ctx context.Context, category gcs.BucketCategory, key string, r io.Reader) (int64, error) {
	atomic.AddInt32(&f.uploadCalls, 1)
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	f.put(category, key, data)
	return int64(len(data)), nil
}

func (f *fakeContentStore) Download(ctx context.Context, category gcs.BucketCategory, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[f.fullKey(category, key)]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeContentStore) OpenRangeReader(ctx context.Context, category gcs.BucketCategory, key string, offset, length int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[f.fullKey(category, key)]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	end := int64(len(data))
	if length > 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (f *fakeContentStore) GetObjectAttrs(ctx context.Context, category gcs.BucketCategory, key string) (*gcs.ObjectAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[f.fullKey(category, key)]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return &gcs.ObjectAttrs{Size: int64(len(data))}, nil
}

func (f *fakeContentStore) ListKeys(ctx context.Context, category gcs.BucketCategory, prefix string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	full := f.fullKey(category, prefix)
	var out []string
	for k := range f.objects {
		if strings.HasPrefix(k, full) {
			out = append(out, strings.TrimPrefix(k, string(category)+"/"))
		}
	}
	return out, nil
}

func (f *fakeContentStore) Delete(ctx context.Context, category gcs.BucketCategory, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, f.fullKey(category, key))
	return nil
}
