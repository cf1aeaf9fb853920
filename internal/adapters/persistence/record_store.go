package persistence

import (
	"log/slog"
	"strings"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// RecordStore keeps encoded workflow records in the key/value store under
// domain.WorkflowRecordKey. Every save bumps the record's version.
type RecordStore struct {
	storage ports.StoragePort
	logger  *slog.Logger
}

func NewRecordStore(storage ports.StoragePort, logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{
		storage: storage,
		logger:  logger.With("component", "record-store"),
	}
}

// Put stores data under name. A positive expectedVersion must match the
// stored version. The new version is returned.
func (s *RecordStore) Put(name string, data []byte, expectedVersion int64) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, domain.NewStructuralError("put_record", "record name is empty", domain.ErrInvalidInput)
	}
	key := domain.WorkflowRecordKey(name)

	var version int64
	err := s.storage.RunInTransaction(func(tx ports.Transaction) error {
		if err := tx.Put(key, data, expectedVersion); err != nil {
			return err
		}
		_, v, _, err := tx.Get(key)
		version = v
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("record stored", "name", name, "version", version, "bytes", len(data))
	return version, nil
}

func (s *RecordStore) Get(name string) ([]byte, int64, error) {
	key := domain.WorkflowRecordKey(name)
	data, version, exists, err := s.storage.Get(key)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, domain.NewKeyNotFoundError(key)
	}
	return data, version, nil
}

func (s *RecordStore) Delete(name string) error {
	return s.storage.Delete(domain.WorkflowRecordKey(name))
}

// List returns the names of all stored records in lexical order.
func (s *RecordStore) List() ([]string, error) {
	keys, err := s.storage.Keys(domain.WorkflowRecordPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, domain.WorkflowRecordPrefix))
	}
	return names, nil
}
