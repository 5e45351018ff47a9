package integrity

import (
	"context"
	"regexp"
	"testing"

	"restore-manager/core/kvstore"
	"restore-manager/core/reconcile"
	"restore-manager/core/storage"
	"restore-manager/core/storage/mocks"
	"restore-manager/feature/integrity/checks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// setupMockDB creates a mock GORM DB for testing.
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

var testStorage = storage.Config{Bucket: "backups", Prefix: "snapshots/", Region: "us-east-1"}

func newService(t *testing.T, db *gorm.DB) (*Service, *mocks.Client, *kvstore.MemoryStore) {
	t.Helper()
	client := new(mocks.Client)
	store := kvstore.NewMemoryStore()
	applier := reconcile.NewApplier(store, zap.NewNop(), 5)
	return NewService(client, testStorage, db, store, applier, zap.NewNop()), client, store
}

func TestService_Run(t *testing.T) {
	db, sqlMock := setupMockDB(t)
	svc, client, _ := newService(t, db)

	client.On("BucketExists", mock.Anything, "backups").Return(true, nil)
	client.On("ListObjects", mock.Anything, "backups", mock.Anything).Return(mocks.Objects(
		minio.ObjectInfo{Key: "snapshots/a.json"},
	))
	sqlMock.ExpectQuery(regexp.QuoteMeta("SHOW COLUMNS FROM `kv_entries`")).
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
			AddRow("entry_key", "varchar(191)", "NO", "PRI", nil, ""))

	report := svc.Run(context.Background())

	bucket, ok := report["bucket"].(*checks.BucketReport)
	require.True(t, ok)
	assert.Equal(t, 1, bucket.Snapshots)

	store, ok := report["store"].(*checks.StoreReport)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"value", "updated_at"}, store.MissingColumns)

	backups, ok := report["backups"].(*checks.BackupReport)
	require.True(t, ok)
	assert.Equal(t, 5, backups.Retention)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestService_NoDatabase(t *testing.T) {
	svc, client, _ := newService(t, nil)
	client.On("BucketExists", mock.Anything, "backups").Return(false, nil)

	report, err := svc.CheckStore()
	assert.NoError(t, err)
	assert.Nil(t, report)

	all := svc.Run(context.Background())
	assert.Equal(t, map[string]interface{}{"status": "skipped"}, all["store"])
	assert.Equal(t, "missing", all["bucket"].(*checks.BucketReport).Status)
}

func TestService_FixBucket(t *testing.T) {
	svc, client, _ := newService(t, nil)
	client.On("BucketExists", mock.Anything, "backups").Return(false, nil)
	client.On("MakeBucket", mock.Anything, "backups", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)

	assert.NoError(t, svc.FixBucket(context.Background()))
	client.AssertExpectations(t)
}
