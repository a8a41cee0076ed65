package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ResQLink/internal/models"
	"ResQLink/pkg/cache"
	apperrors "ResQLink/pkg/errors"
	"ResQLink/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) RecordStore {
	t.Helper()
	s := New(Options{
		Driver: util.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "resqlink.db"),
		Name:   "ResQLinkDB",
	})
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func sample(msg string, sev models.Severity) models.SOSRecord {
	return models.SOSRecord{
		Message:          msg,
		Timestamp:        time.Now().UnixMilli(),
		Severity:         sev,
		BluetoothEnabled: true,
	}
}

func TestOperationsBeforeOpen(t *testing.T) {
	s := New(Options{Driver: util.DriverSQLite, DSN: filepath.Join(t.TempDir(), "x.db")})
	ctx := context.Background()

	assert.False(t, s.Ready())

	_, err := s.Insert(ctx, sample("help", models.SeverityCritical))
	assert.ErrorIs(t, err, apperrors.ErrStoreNotInitialized)
	assert.Equal(t, "Database not initialized", err.Error())

	_, err = s.ListAll(ctx)
	assert.ErrorIs(t, err, apperrors.ErrStoreNotInitialized)
	_, err = s.ListByStatus(ctx, models.StatusPending)
	assert.ErrorIs(t, err, apperrors.ErrStoreNotInitialized)
	assert.ErrorIs(t, s.UpdateStatus(ctx, 1, models.StatusSent), apperrors.ErrStoreNotInitialized)

	require.NoError(t, s.Open(ctx))
	t.Cleanup(func() { s.Close() })
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOpenIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Open(context.Background()))
	assert.True(t, s.Ready())
	assert.NoError(t, s.Err())
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpenFailureIsSticky(t *testing.T) {
	s := New(Options{Driver: "oracle", DSN: "whatever"})
	err := s.Open(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnderlyingStoreFailure))
	assert.False(t, s.Ready())
	assert.Equal(t, err, s.Err())
	assert.Equal(t, err, s.Open(context.Background()))
}

func TestInsertAndListScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Insert(ctx, sample("Trapped", models.SeverityCritical))
	require.NoError(t, err)
	id2, err := s.Insert(ctx, sample("Need water", models.SeverityLow))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.StatusPending, all[0].Status)
	assert.Equal(t, models.StatusPending, all[1].Status)

	require.NoError(t, s.UpdateStatus(ctx, id1, models.StatusSent))

	pending, err := s.ListByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id2, pending[0].ID)

	sent, err := s.ListByStatus(ctx, models.StatusSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, id1, sent[0].ID)
	assert.Equal(t, "Trapped", sent[0].Message)
	assert.Equal(t, models.SeverityCritical, sent[0].Severity)
}

func TestInsertIgnoresCallerID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sample("hello", models.SeverityMedium)
	rec.ID = 42
	id, err := s.Insert(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, uint64(42), rec.ID)
}

func TestInsertRoundTripsLocation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc := 12.5
	rec := sample("at the bridge", models.SeverityHigh)
	rec.Location = &models.Coordinates{Lat: 37.7749, Lng: -122.4194}
	rec.Accuracy = &acc
	_, err := s.Insert(ctx, rec)
	require.NoError(t, err)
	_, err = s.Insert(ctx, sample("no fix", models.SeverityHigh))
	require.NoError(t, err)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].Location)
	assert.InDelta(t, 37.7749, all[0].Location.Lat, 1e-9)
	assert.InDelta(t, -122.4194, all[0].Location.Lng, 1e-9)
	require.NotNil(t, all[0].Accuracy)
	assert.Nil(t, all[1].Location)
}

func TestInsertRejectsInvalidFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, sample("x", models.Severity("apocalyptic")))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	rec := sample("x", models.SeverityLow)
	rec.Status = "lost"
	_, err = s.Insert(ctx, rec)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	_, err = s.ListByStatus(ctx, "lost")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidArgument))
}

func TestListByStatusEmpty(t *testing.T) {
	s := newTestStore(t)
	recs, err := s.ListByStatus(context.Background(), models.StatusSynced)
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestUpdateStatusMissingRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, sample("first", models.SeverityHigh))
	require.NoError(t, err)
	_, err = s.Insert(ctx, sample("second", models.SeverityLow))
	require.NoError(t, err)
	before, err := s.ListAll(ctx)
	require.NoError(t, err)

	err = s.UpdateStatus(ctx, 999, models.StatusSent)
	assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
	assert.Equal(t, "Record not found", err.Error())

	after, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateStatusOnlyTouchesStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sample("hold on", models.SeverityHigh)
	rec.Location = &models.Coordinates{Lat: 1, Lng: 2}
	id, err := s.Insert(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, id, models.StatusSynced))
	require.NoError(t, s.UpdateStatus(ctx, id, models.StatusSynced))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, models.StatusSynced, got.Status)
	assert.Equal(t, "hold on", got.Message)
	assert.Equal(t, rec.Timestamp, got.Timestamp)
	assert.True(t, got.BluetoothEnabled)
	require.NotNil(t, got.Location)
	assert.Equal(t, 1.0, got.Location.Lat)
}

func TestCompareAndSwapStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, sample("cas", models.SeverityLow))
	require.NoError(t, err)

	ok, err := s.CompareAndSwapStatus(ctx, id, models.StatusSent, models.StatusSynced)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwapStatus(ctx, id, models.StatusPending, models.StatusSent)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.CompareAndSwapStatus(ctx, 77, models.StatusPending, models.StatusSent)
	assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
}

func TestConcurrentInsertsGetDistinctIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 20
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Insert(ctx, sample("burst", models.SeverityMedium))
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestConcurrentUpdatesLeaveOneWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.Insert(ctx, sample("race", models.SeverityCritical))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, st := range []models.Status{models.StatusSent, models.StatusSynced} {
		wg.Add(1)
		go func(st models.Status) {
			defer wg.Done()
			assert.NoError(t, s.UpdateStatus(ctx, id, st))
		}(st)
	}
	wg.Wait()

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Contains(t, []models.Status{models.StatusSent, models.StatusSynced}, all[0].Status)
	assert.Equal(t, "race", all[0].Message)
}

func TestCloseThenUse(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	_, err := s.ListAll(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStoreNotInitialized)
}

func TestReopenKeepsData(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	s := New(Options{Driver: util.DriverSQLite, DSN: dsn})
	require.NoError(t, s.Open(ctx))
	_, err := s.Insert(ctx, sample("survives restart", models.SeverityHigh))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = New(Options{Driver: util.DriverSQLite, DSN: dsn})
	require.NoError(t, s.Open(ctx))
	defer s.Close()
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "survives restart", all[0].Message)
}

func TestNewerSchemaIsRejected(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "future.db")
	db, err := util.InitDatabase(util.DriverSQLite, dsn, false)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SchemaMeta{}))
	require.NoError(t, db.Create(&models.SchemaMeta{Name: "ResQLinkDB", Version: SchemaVersion + 1}).Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	s := New(Options{Driver: util.DriverSQLite, DSN: dsn, Name: "ResQLinkDB"})
	err = s.Open(context.Background())
	require.Error(t, err)
	assert.False(t, s.Ready())
}

func TestCachedStoreInvalidatesOnWrite(t *testing.T) {
	inner := newTestStore(t)
	c := cache.NewLocalCache(cache.LocalConfig{MaxSize: 16, DefaultExpiration: time.Minute})
	s := NewCached(inner, c, "local", time.Minute, nil)
	ctx := context.Background()

	id, err := s.Insert(ctx, sample("first", models.SeverityLow))
	require.NoError(t, err)

	recs, err := s.ListByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, c.Exists(ctx, keyStatusPrefix+"pending"))

	require.NoError(t, s.UpdateStatus(ctx, id, models.StatusSent))
	assert.False(t, c.Exists(ctx, keyStatusPrefix+"pending"))

	recs, err = s.ListByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, recs)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	all, err = s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.StatusSent, all[0].Status)
}

func TestCachedStoreRespectsReadiness(t *testing.T) {
	inner := New(Options{Driver: util.DriverSQLite, DSN: filepath.Join(t.TempDir(), "c.db")})
	c := cache.NewLocalCache(cache.LocalConfig{MaxSize: 4})
	require.NoError(t, c.Set(context.Background(), keyListAll, "[]", time.Minute))

	s := NewCached(inner, c, "local", time.Minute, nil)
	_, err := s.ListAll(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStoreNotInitialized)
}

// pausingStore 第一次 ListAll 读完后停住，直到 release 关闭
type pausingStore struct {
	RecordStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) ListAll(ctx context.Context) ([]models.SOSRecord, error) {
	recs, err := p.RecordStore.ListAll(ctx)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return recs, err
}

func TestCachedStoreDropsStaleListAfterWrite(t *testing.T) {
	inner := &pausingStore{RecordStore: newTestStore(t), read: make(chan struct{}), release: make(chan struct{})}
	c := cache.NewLocalCache(cache.LocalConfig{MaxSize: 16, DefaultExpiration: time.Minute})
	s := NewCached(inner, c, "local", time.Minute, nil)
	ctx := context.Background()

	done := make(chan []models.SOSRecord)
	go func() {
		recs, err := s.ListAll(ctx)
		assert.NoError(t, err)
		done <- recs
	}()
	<-inner.read

	id, err := s.Insert(ctx, sample("trapped on roof", models.SeverityCritical))
	require.NoError(t, err)
	close(inner.release)
	assert.Empty(t, <-done)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].ID)
}
