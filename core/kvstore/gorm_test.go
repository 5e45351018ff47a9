package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestGormStore_Read(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewGormStore(db)

	rows := sqlmock.NewRows([]string{"entry_key", "value", "updated_at"}).
		AddRow("videos", []byte(`{"a":{}}`), time.Now())
	mock.ExpectQuery("SELECT \\* FROM `kv_entries` WHERE entry_key = \\?").WillReturnRows(rows)

	v, ok, err := s.Read(context.Background(), "videos")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":{}}`, string(v))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ReadMissing(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewGormStore(db)

	mock.ExpectQuery("SELECT \\* FROM `kv_entries`").
		WillReturnRows(sqlmock.NewRows([]string{"entry_key", "value", "updated_at"}))

	_, ok, err := s.Read(context.Background(), "actors")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGormStore_ReadError(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewGormStore(db)

	mock.ExpectQuery("SELECT \\* FROM `kv_entries`").WillReturnError(errors.New("connection reset"))

	_, _, err := s.Read(context.Background(), "actors")
	assert.ErrorContains(t, err, "connection reset")
}

func TestGormStore_WriteUpserts(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `kv_entries` .* ON DUPLICATE KEY UPDATE").
		WithArgs("settings", []byte(`{"theme":"dark"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Write(context.Background(), "settings", []byte(`{"theme":"dark"}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_WriteError(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `kv_entries`").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.Write(context.Background(), "videos", []byte(`{}`))
	assert.ErrorContains(t, err, "write videos")
}

func TestGormStore_Delete(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `kv_entries` WHERE entry_key = \\?").
		WithArgs("videos").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), "videos"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_KeysFiltersWildcards(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewGormStore(db)

	rows := sqlmock.NewRows([]string{"entry_key"}).
		AddRow("backup_1").
		AddRow("backupX").
		AddRow("backup_2")
	mock.ExpectQuery("SELECT `entry_key` FROM `kv_entries` WHERE entry_key LIKE \\? ORDER BY entry_key").
		WithArgs("backup_%").
		WillReturnRows(rows)

	keys, err := s.Keys(context.Background(), "backup_")
	require.NoError(t, err)
	assert.Equal(t, []string{"backup_1", "backup_2"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}
