package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the contract every snapshot backend must satisfy
func exerciseStore(t *testing.T, store SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx, "results")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, store.Save(ctx, "results", []byte{0x91, 0x01}))
	got, err := store.Load(ctx, "results")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x91, 0x01}, got)

	// Saving again replaces the payload
	require.NoError(t, store.Save(ctx, "results", []byte{0x90}))
	got, err = store.Load(ctx, "results")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90}, got)

	require.NoError(t, store.Save(ctx, "printings", []byte{0x00, 0xff}))
	got, err = store.Load(ctx, "printings")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, got, "binary payloads round-trip")
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "results", []byte("payload")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Load(context.Background(), "results")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("")
	assert.Error(t, err)
}

func TestValkeyStore(t *testing.T) {
	srv := miniredis.RunT(t)

	store, err := NewValkeyStore(context.Background(), Config{ValkeyAddress: srv.Addr()})
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
	assert.True(t, srv.Exists(defaultValkeyPrefix+"results"))
}

func TestValkeyStoreCustomPrefix(t *testing.T) {
	srv := miniredis.RunT(t)

	store, err := NewValkeyStore(context.Background(), Config{ValkeyAddress: srv.Addr(), ValkeyPrefix: "test:"})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), "results", []byte("x")))
	got, err := srv.Get("test:results")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestValkeyStoreRequiresAddress(t *testing.T) {
	_, err := NewValkeyStore(context.Background(), Config{})
	assert.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CARDPRICE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set CARDPRICE_TEST_POSTGRES_DSN to run postgres tests")
	}
	store, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestOpenSelectsDriver(t *testing.T) {
	store, err := Open(context.Background(), Config{SQLitePath: filepath.Join(t.TempDir(), "default.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(context.Background(), Config{Driver: "mongo"})
	assert.Error(t, err)
}
