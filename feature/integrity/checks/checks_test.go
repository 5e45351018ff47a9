package checks

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"restore-manager/core/kvstore"
	"restore-manager/core/reconcile"
	"restore-manager/core/storage/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func TestCheckBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "backups").Return(false, nil)

		report, err := CheckBucket(ctx, client, "backups", "snapshots/")
		require.NoError(t, err)
		assert.False(t, report.Exists)
		assert.Equal(t, "missing", report.Status)
		client.AssertNotCalled(t, "ListObjects", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CountsSnapshots", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "backups").Return(true, nil)
		client.On("ListObjects", mock.Anything, "backups", mock.Anything).Return(mocks.Objects(
			minio.ObjectInfo{Key: "snapshots/a.json"},
			minio.ObjectInfo{Key: "snapshots/b.json.gz"},
			minio.ObjectInfo{Key: "snapshots/readme.txt"},
		))

		report, err := CheckBucket(ctx, client, "backups", "snapshots/")
		require.NoError(t, err)
		assert.True(t, report.Exists)
		assert.Equal(t, 2, report.Snapshots)
		assert.Equal(t, "ok", report.Status)
	})

	t.Run("Empty", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "backups").Return(true, nil)
		client.On("ListObjects", mock.Anything, "backups", mock.Anything).Return(mocks.Objects())

		report, err := CheckBucket(ctx, client, "backups", "snapshots/")
		require.NoError(t, err)
		assert.Equal(t, "empty", report.Status)
	})

	t.Run("ListError", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "backups").Return(true, nil)
		client.On("ListObjects", mock.Anything, "backups", mock.Anything).Return(mocks.Objects(
			minio.ObjectInfo{Err: errors.New("denied")},
		))

		_, err := CheckBucket(ctx, client, "backups", "snapshots/")
		assert.ErrorContains(t, err, "denied")
	})

	t.Run("ExistsError", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "backups").Return(false, errors.New("offline"))

		_, err := CheckBucket(ctx, client, "backups", "snapshots/")
		assert.Error(t, err)
	})
}

func TestFixBucket(t *testing.T) {
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "backups").Return(false, nil)
	client.On("MakeBucket", mock.Anything, "backups", minio.MakeBucketOptions{Region: "eu"}).Return(nil)

	err := FixBucket(context.Background(), client, "backups", "eu", zap.NewNop())
	assert.NoError(t, err)
	client.AssertExpectations(t)
}

func TestCheckStoreSchema(t *testing.T) {
	query := regexp.QuoteMeta("SHOW COLUMNS FROM `kv_entries`")
	columns := []string{"Field", "Type", "Null", "Key", "Default", "Extra"}

	t.Run("Matched", func(t *testing.T) {
		db, sqlMock := setupMockDB(t)
		sqlMock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(columns).
			AddRow("entry_key", "varchar(191)", "NO", "PRI", nil, "").
			AddRow("value", "longblob", "YES", "", nil, "").
			AddRow("updated_at", "datetime(3)", "YES", "", nil, ""))

		report, err := CheckStoreSchema(db, kvstore.TableName, kvstore.Columns)
		require.NoError(t, err)
		assert.True(t, report.Matched)
		assert.Empty(t, report.MissingColumns)
		assert.Equal(t, "mysql", report.Driver)
	})

	t.Run("MissingColumn", func(t *testing.T) {
		db, sqlMock := setupMockDB(t)
		sqlMock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(columns).
			AddRow("entry_key", "varchar(191)", "NO", "PRI", nil, "").
			AddRow("value", "longblob", "YES", "", nil, ""))

		report, err := CheckStoreSchema(db, kvstore.TableName, kvstore.Columns)
		require.NoError(t, err)
		assert.False(t, report.Matched)
		assert.Equal(t, []string{"updated_at"}, report.MissingColumns)
		assert.Empty(t, report.Errors)
	})

	t.Run("QueryError", func(t *testing.T) {
		db, sqlMock := setupMockDB(t)
		sqlMock.ExpectQuery(query).WillReturnError(errors.New("table missing"))

		report, err := CheckStoreSchema(db, kvstore.TableName, kvstore.Columns)
		require.NoError(t, err)
		assert.False(t, report.Matched)
		assert.Len(t, report.Errors, 1)
	})

	t.Run("NilDB", func(t *testing.T) {
		_, err := CheckStoreSchema(nil, kvstore.TableName, kvstore.Columns)
		assert.Error(t, err)
	})
}

func TestCheckBackups(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	applier := reconcile.NewApplier(store, zap.NewNop(), 1)

	report, err := CheckBackups(ctx, store, applier)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Count)
	assert.Equal(t, "ok", report.Status)

	require.NoError(t, store.Write(ctx, reconcile.BackupPrefix+"2026-01-01T00:00:00.000000000Z", []byte(`{"createdAt":"x","collections":{}}`)))
	report, err = CheckBackups(ctx, store, applier)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count)
	assert.Equal(t, "ok", report.Status)

	require.NoError(t, store.Write(ctx, reconcile.BackupPrefix+"2026-01-02T00:00:00.000000000Z", []byte(`not json`)))
	report, err = CheckBackups(ctx, store, applier)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count)
	assert.Equal(t, reconcile.BackupPrefix+"2026-01-02T00:00:00.000000000Z", report.Latest)
	assert.Equal(t, []string{report.Latest}, report.Unreadable)
	assert.Equal(t, "error", report.Status)

	require.NoError(t, store.Write(ctx, report.Latest, []byte(`{"collections":{}}`)))
	report, err = CheckBackups(ctx, store, applier)
	require.NoError(t, err)
	assert.Equal(t, "warning", report.Status)
}
