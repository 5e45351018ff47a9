package restore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"restore-manager/core/kvstore"
	"restore-manager/core/reconcile"
	"restore-manager/core/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockSource is a testify mock of CloudSource and snapshot.Fetcher.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) List(ctx context.Context) ([]snapshot.FileInfo, error) {
	args := m.Called(ctx)
	files, _ := args.Get(0).([]snapshot.FileInfo)
	return files, args.Error(1)
}

func (m *mockSource) Fetch(ctx context.Context, objectPath string) (reconcile.Snapshot, error) {
	args := m.Called(ctx, objectPath)
	snap, _ := args.Get(0).(reconcile.Snapshot)
	return snap, args.Error(1)
}

func (m *mockSource) Upload(ctx context.Context, snap reconcile.Snapshot) (snapshot.FileInfo, error) {
	args := m.Called(ctx, snap)
	return args.Get(0).(snapshot.FileInfo), args.Error(1)
}

func (m *mockSource) Prune(ctx context.Context, keep int) ([]string, error) {
	args := m.Called(ctx, keep)
	pruned, _ := args.Get(0).([]string)
	return pruned, args.Error(1)
}

func decode(t *testing.T, raw string) reconcile.Snapshot {
	t.Helper()
	s, err := reconcile.DecodeSnapshot([]byte(raw))
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, store reconcile.Store, raw string) {
	t.Helper()
	for name, v := range decode(t, raw) {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, store.Write(context.Background(), name, data))
	}
}

const (
	localJSON = `{"videos":{"a":{"v":"local","updatedAt":5},"l":{"v":1}},"settings":{"theme":"dark"}}`
	cloudJSON = `{"videos":{"a":{"v":"cloud","updatedAt":1},"c":{"v":2}},"settings":{"theme":"light"}}`
)

func newTestService(t *testing.T) (*Service, *mockSource, *kvstore.MemoryStore) {
	t.Helper()
	src := new(mockSource)
	store := kvstore.NewMemoryStore()
	seed(t, store, localJSON)
	applier := reconcile.NewApplier(store, zap.NewNop(), 5)
	return NewService(src, src, store, applier, 3, zap.NewNop()), src, store
}

func TestService_FullManualRestore(t *testing.T) {
	ctx := context.Background()
	svc, src, store := newTestService(t)
	src.On("Fetch", mock.Anything, "snapshots/b.json").Return(decode(t, cloudJSON), nil)

	view, err := svc.StartSession(ctx, "snapshots/b.json")
	require.NoError(t, err)
	assert.Equal(t, reconcile.StepStrategy, view.Step)
	assert.Equal(t, 1, view.ConflictCount)

	_, err = svc.SelectStrategy(reconcile.StrategyManual)
	require.NoError(t, err)

	cv, err := svc.Conflict("a")
	require.NoError(t, err)
	assert.Equal(t, "videos:a", cv.Key)
	assert.Equal(t, reconcile.ChoiceLocal, cv.Choice)
	assert.NotEmpty(t, cv.Preview)

	_, err = svc.ResolveConflict("videos:a", reconcile.ChoiceCloud)
	require.NoError(t, err)

	preview, err := svc.PrepareMerge()
	require.NoError(t, err)
	assert.Equal(t, reconcile.CollectionSummary{Added: 1, Updated: 1, Kept: 1}, preview.Summary[reconcile.CollectionVideos])

	res, err := svc.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success())

	after, err := reconcile.LoadSnapshot(ctx, store)
	require.NoError(t, err)
	videos := after["videos"].(map[string]any)
	assert.Len(t, videos, 3)
	assert.Equal(t, "cloud", videos["a"].(map[string]any)["v"])

	view, err = svc.Session()
	require.NoError(t, err)
	assert.Equal(t, reconcile.StepFinished, view.Step)

	_, err = svc.SelectStrategy(reconcile.StrategySmart)
	assert.ErrorIs(t, err, ErrNoSession)

	rb, err := svc.Rollback(ctx)
	require.NoError(t, err)
	assert.True(t, rb.Success)
	restored, err := reconcile.LoadSnapshot(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, decode(t, localJSON), restored)
}

func TestService_StartSessionFetchFailure(t *testing.T) {
	svc, src, _ := newTestService(t)
	src.On("Fetch", mock.Anything, "snapshots/x.json").Return(nil, errors.New("connection refused"))

	_, err := svc.StartSession(context.Background(), "snapshots/x.json")
	assert.ErrorIs(t, err, ErrFetchFailed)

	_, err = svc.Session()
	assert.ErrorIs(t, err, ErrNoSession, "failed fetch leaves no session")
}

func TestService_StartSessionInvalidSnapshot(t *testing.T) {
	svc, src, _ := newTestService(t)
	src.On("Fetch", mock.Anything, "snapshots/x.json").Return(reconcile.Snapshot{"videos": "bad"}, nil)

	_, err := svc.StartSession(context.Background(), "snapshots/x.json")
	assert.ErrorIs(t, err, reconcile.ErrInvalidSnapshot)
}

func TestService_StartSessionReplacesIdleSession(t *testing.T) {
	ctx := context.Background()
	svc, src, _ := newTestService(t)
	src.On("Fetch", mock.Anything, mock.Anything).Return(decode(t, cloudJSON), nil)

	first, err := svc.StartSession(ctx, "snapshots/1.json")
	require.NoError(t, err)
	second, err := svc.StartSession(ctx, "snapshots/2.json")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	view, err := svc.Session()
	require.NoError(t, err)
	assert.Equal(t, "snapshots/2.json", view.Source)
}

func TestService_AbandonSession(t *testing.T) {
	ctx := context.Background()
	svc, src, _ := newTestService(t)
	src.On("Fetch", mock.Anything, mock.Anything).Return(decode(t, cloudJSON), nil)

	assert.ErrorIs(t, svc.AbandonSession(), ErrNoSession)

	_, err := svc.StartSession(ctx, "snapshots/1.json")
	require.NoError(t, err)
	require.NoError(t, svc.AbandonSession())

	_, err = svc.Session()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestService_ResolveConflicts(t *testing.T) {
	ctx := context.Background()
	svc, src, _ := newTestService(t)
	src.On("Fetch", mock.Anything, mock.Anything).Return(decode(t, cloudJSON), nil)
	_, err := svc.StartSession(ctx, "snapshots/1.json")
	require.NoError(t, err)

	res, err := svc.ResolveConflicts(nil, reconcile.ChoiceCloud)
	require.NoError(t, err)
	assert.Equal(t, map[string]reconcile.Choice{"videos:a": reconcile.ChoiceCloud}, res)

	_, err = svc.ResolveConflicts(map[string]reconcile.Choice{"videos:zzz": reconcile.ChoiceLocal}, "")
	assert.ErrorIs(t, err, reconcile.ErrUnknownConflict)
}

func TestService_BackupToCloud(t *testing.T) {
	ctx := context.Background()
	svc, src, _ := newTestService(t)

	src.On("Upload", mock.Anything, decode(t, localJSON)).
		Return(snapshot.FileInfo{Name: "backup-1.json.gz", Path: "snapshots/backup-1.json.gz"}, nil)
	src.On("Prune", mock.Anything, 3).Return([]string{"snapshots/old.json"}, nil)

	res, err := svc.BackupToCloud(ctx)
	require.NoError(t, err)
	assert.Equal(t, "backup-1.json.gz", res.File.Name)
	assert.Equal(t, []string{"snapshots/old.json"}, res.Pruned)
	src.AssertExpectations(t)
}

func TestService_RollbackWithoutBackup(t *testing.T) {
	svc, _, _ := newTestService(t)

	res, err := svc.Rollback(context.Background())
	assert.ErrorIs(t, err, reconcile.ErrNoBackup)
	assert.False(t, res.Success)
}

func TestService_ConflictNavigation(t *testing.T) {
	ctx := context.Background()
	src := new(mockSource)
	store := kvstore.NewMemoryStore()
	seed(t, store, `{"videos":{"a":{"v":1,"updatedAt":5},"b":{"v":1,"updatedAt":1}}}`)
	svc := NewService(src, src, store, reconcile.NewApplier(store, zap.NewNop(), 5), 3, zap.NewNop())
	src.On("Fetch", mock.Anything, "snapshots/b.json").
		Return(decode(t, `{"videos":{"a":{"v":2,"updatedAt":1},"b":{"v":2,"updatedAt":9}}}`), nil)

	_, err := svc.StartSession(ctx, "snapshots/b.json")
	require.NoError(t, err)
	_, err = svc.SelectStrategy(reconcile.StrategyManual)
	require.NoError(t, err)

	cv, err := svc.CurrentConflict()
	require.NoError(t, err)
	assert.Equal(t, "videos:a", cv.Key)
	assert.Equal(t, 0, cv.Position)
	assert.Equal(t, 2, cv.Total)

	cv, err = svc.SelectCurrent(reconcile.ChoiceCloud)
	require.NoError(t, err)
	assert.Equal(t, reconcile.ChoiceCloud, cv.Choice)

	cv, moved, err := svc.NextConflict()
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, "videos:b", cv.Key)
	assert.Equal(t, 1, cv.Position)

	_, moved, err = svc.NextConflict()
	require.NoError(t, err)
	assert.False(t, moved, "cursor stays on the last conflict")

	cv, moved, err = svc.PreviousConflict()
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, "videos:a", cv.Key)
	assert.Equal(t, reconcile.ChoiceCloud, cv.Choice, "choice recorded before moving")

	_, err = svc.SelectCurrent("both")
	assert.ErrorIs(t, err, reconcile.ErrInvalidChoice)

	preview, err := svc.PrepareMerge()
	require.NoError(t, err)
	videos := preview.MergedData[reconcile.CollectionVideos]
	assert.Equal(t, float64(2), videos["a"].(map[string]any)["v"])
}
