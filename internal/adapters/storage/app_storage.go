package storage

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// headerSize is the big-endian version stored in front of every value.
const headerSize = 8

// AppStorage keeps workflow records in badger. A value and its version are
// one badger entry, so reads never see one without the other.
type AppStorage struct {
	db     *badger.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens the database described by config.
func Open(config domain.StorageConfig, logger *slog.Logger) (*AppStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(config.DataDir).
		WithSyncWrites(config.SyncWrites).
		WithLogger(newBadgerLogger(logger))
	if config.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &domain.StorageError{Type: domain.ErrStoreUnavailable, Message: "failed to open badger", Err: err}
	}
	s := &AppStorage{db: db, logger: logger.With("component", "app-storage")}
	s.logger.Debug("storage opened", "in_memory", config.InMemory, "dir", config.DataDir)
	return s, nil
}

func encode(value []byte, version int64) []byte {
	out := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(out, uint64(version))
	copy(out[headerSize:], value)
	return out
}

func decode(key string, raw []byte) ([]byte, int64, error) {
	if len(raw) < headerSize {
		return nil, 0, &domain.StorageError{Type: domain.ErrCorrupted, Key: key, Message: "entry shorter than its version header"}
	}
	return raw[headerSize:], int64(binary.BigEndian.Uint64(raw)), nil
}

func (s *AppStorage) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &domain.StorageError{Type: domain.ErrStoreClosed, Message: "storage is closed"}
	}
	return nil
}

func (s *AppStorage) Get(key string) (value []byte, version int64, exists bool, err error) {
	if err := s.checkOpen(); err != nil {
		return nil, 0, false, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		value, version, exists, err = get(txn, key)
		return err
	})
	return value, version, exists, err
}

func get(txn *badger.Txn, key string) ([]byte, int64, bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, 0, false, err
	}
	value, version, err := decode(key, raw)
	if err != nil {
		return nil, 0, false, err
	}
	return value, version, true, nil
}

// Put stores value under key. A positive expectedVersion must match the
// current version of the key or the write is rejected.
func (s *AppStorage) Put(key string, value []byte, expectedVersion int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return put(txn, key, value, expectedVersion)
	})
}

func put(txn *badger.Txn, key string, value []byte, expectedVersion int64) error {
	_, current, _, err := get(txn, key)
	if err != nil {
		return err
	}
	if expectedVersion > 0 && current != expectedVersion {
		return domain.NewVersionMismatchError(key, expectedVersion, current)
	}
	return txn.Set([]byte(key), encode(value, current+1))
}

// Delete removes key; deleting a missing key is not an error.
func (s *AppStorage) Delete(key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys lists the keys under prefix in lexical order without reading values.
func (s *AppStorage) Keys(prefix string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

// RunInTransaction commits the writes made by fn only if fn succeeds.
func (s *AppStorage) RunInTransaction(fn func(tx ports.Transaction) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(&transaction{txn: txn}); err != nil {
		return err
	}
	return txn.Commit()
}

func (s *AppStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("closing storage")
	return s.db.Close()
}

type transaction struct {
	txn *badger.Txn
}

func (t *transaction) Get(key string) ([]byte, int64, bool, error) {
	return get(t.txn, key)
}

func (t *transaction) Put(key string, value []byte, expectedVersion int64) error {
	return put(t.txn, key, value, expectedVersion)
}

func (t *transaction) Delete(key string) error {
	return t.txn.Delete([]byte(key))
}

var _ ports.StoragePort = (*AppStorage)(nil)
