package storage

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

func setupTestStorage(t *testing.T) *AppStorage {
	t.Helper()
	config := domain.DefaultStorageConfig()
	config.InMemory = true

	s, err := Open(config, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppStorage_PutGetDelete(t *testing.T) {
	s := setupTestStorage(t)

	_, _, exists, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Put("workflow:record:etl", []byte(`{"a":1}`), 0))
	value, version, exists, err := s.Get("workflow:record:etl")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, `{"a":1}`, string(value))
	assert.Equal(t, int64(1), version)

	require.NoError(t, s.Put("workflow:record:etl", []byte(`{"a":2}`), 0))
	_, version, _, err = s.Get("workflow:record:etl")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	require.NoError(t, s.Delete("workflow:record:etl"))
	_, _, exists, err = s.Get("workflow:record:etl")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, s.Delete("workflow:record:etl"))
}

func TestAppStorage_EmptyValueKeepsVersion(t *testing.T) {
	s := setupTestStorage(t)

	require.NoError(t, s.Put("empty", nil, 0))
	value, version, exists, err := s.Get("empty")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Empty(t, value)
	assert.Equal(t, int64(1), version)
}

func TestAppStorage_OptimisticVersion(t *testing.T) {
	s := setupTestStorage(t)

	require.NoError(t, s.Put("k", []byte("one"), 0))
	require.NoError(t, s.Put("k", []byte("two"), 1))

	err := s.Put("k", []byte("stale"), 1)
	var storageErr *domain.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, domain.ErrVersionMismatch, storageErr.Type)

	value, _, _, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(value))
}

func TestAppStorage_Keys(t *testing.T) {
	s := setupTestStorage(t)

	require.NoError(t, s.Put("workflow:record:b", []byte("b"), 0))
	require.NoError(t, s.Put("workflow:record:a", []byte("a"), 0))
	require.NoError(t, s.Put("other:c", []byte("c"), 0))

	keys, err := s.Keys("workflow:record:")
	require.NoError(t, err)
	assert.Equal(t, []string{"workflow:record:a", "workflow:record:b"}, keys)

	all, err := s.Keys("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAppStorage_CorruptEntry(t *testing.T) {
	s := setupTestStorage(t)
	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("short"), []byte{1, 2})
	}))

	_, _, _, err := s.Get("short")
	var storageErr *domain.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, domain.ErrCorrupted, storageErr.Type)
	assert.Equal(t, "short", storageErr.Key)
}

func TestAppStorage_RunInTransaction(t *testing.T) {
	s := setupTestStorage(t)

	err := s.RunInTransaction(func(tx ports.Transaction) error {
		if err := tx.Put("tx:a", []byte("a"), 0); err != nil {
			return err
		}
		_, version, exists, err := tx.Get("tx:a")
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Equal(t, int64(1), version)
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.RunInTransaction(func(tx ports.Transaction) error {
		require.NoError(t, tx.Delete("tx:a"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, _, exists, err := s.Get("tx:a")
	require.NoError(t, err)
	assert.True(t, exists, "rolled back delete must not apply")

	err = s.RunInTransaction(func(tx ports.Transaction) error {
		if err := tx.Put("tx:b", []byte("b"), 0); err != nil {
			return err
		}
		return tx.Put("tx:a", []byte("a2"), 7)
	})
	require.Error(t, err)
	_, _, exists, err = s.Get("tx:b")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAppStorage_Closed(t *testing.T) {
	config := domain.DefaultStorageConfig()
	config.InMemory = true
	s, err := Open(config, nil)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Put("k", nil, 0), domain.ErrClosed)
	_, _, _, err = s.Get("k")
	assert.ErrorIs(t, err, domain.ErrClosed)
	_, err = s.Keys("")
	assert.ErrorIs(t, err, domain.ErrClosed)
}
