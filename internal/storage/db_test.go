package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"imagechat-backend/internal/database"
)

func newTestDBStore(t *testing.T) *DBStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	return NewDBStore(db)
}

func TestDBStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestDBStore(t)

	require.NoError(t, store.Put(ctx, "imagechat-state", []byte("payload")))

	value, err := store.Get(ctx, "imagechat-state")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)
}

func TestDBStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestDBStore(t)

	require.NoError(t, store.Put(ctx, "key", []byte("first")))
	require.NoError(t, store.Put(ctx, "key", []byte("second")))

	value, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), value)
}

func TestDBStoreGetMissing(t *testing.T) {
	store := newTestDBStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDBStoreDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	store := newTestDBStore(t)

	require.NoError(t, store.Put(ctx, "a", []byte("a")))
	require.NoError(t, store.Put(ctx, "b", []byte("b")))

	require.NoError(t, store.Delete(ctx, "a"))
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}
