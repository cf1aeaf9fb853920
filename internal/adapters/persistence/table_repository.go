package persistence

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// TableRepository caches decoded port objects by table id so that nodes
// loaded together share them. Each entry decodes once under its own lock;
// the repository lock only guards the index. A repository backed by a
// shared one reuses the objects already decoded there.
type TableRepository struct {
	mu      sync.RWMutex
	entries map[string]*tableEntry
	shared  *TableRepository
	codecs  CodecSource
	logger  *slog.Logger
	closed  bool
}

// CodecSource resolves the codec for a port type.
type CodecSource interface {
	Codec(portType domain.PortType) (ports.PortObjectCodec, error)
}

type tableEntry struct {
	mu      sync.Mutex
	record  *TableRecord
	object  domain.PortObject
	err     error
	decoded bool
}

func NewTableRepository(codecs CodecSource, logger *slog.Logger) *TableRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableRepository{
		entries: make(map[string]*tableEntry),
		codecs:  codecs,
		logger:  logger.With("component", "table-repository"),
	}
}

// WithShared makes r resolve ids through shared before decoding them.
func (r *TableRepository) WithShared(shared *TableRepository) *TableRepository {
	if shared != r {
		r.shared = shared
	}
	return r
}

// decoded returns the object under id if it was decoded successfully.
func (r *TableRepository) decoded(id string) (domain.PortObject, bool) {
	r.mu.RLock()
	entry, ok := r.entries[id]
	closed := r.closed
	r.mu.RUnlock()
	if closed || !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.decoded || entry.err != nil {
		return nil, false
	}
	return entry.object, true
}

// AddRecords registers encoded tables; they are decoded on first Get.
// Existing ids keep their entry.
func (r *TableRepository) AddRecords(records map[string]TableRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, record := range records {
		if _, exists := r.entries[id]; exists {
			continue
		}
		rec := record
		r.entries[id] = &tableEntry{record: &rec}
	}
}

// Put stores an already decoded object.
func (r *TableRepository) Put(id string, obj domain.PortObject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &tableEntry{object: obj, decoded: true}
}

func (r *TableRepository) Get(id string) (domain.PortObject, error) {
	r.mu.RLock()
	entry, ok := r.entries[id]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, domain.NewInvalidStateError("get_table", "table repository was discarded")
	}
	if !ok {
		if obj, found := r.sharedObject(id); found {
			return obj, nil
		}
		return nil, domain.NewNotFoundError("get_table", fmt.Sprintf("table %s is not in the record", id))
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.decoded {
		if obj, found := r.sharedObject(id); found {
			entry.object, entry.record, entry.decoded = obj, nil, true
			r.logger.Debug("table reused", "table_id", id)
			return obj, nil
		}
		entry.object, entry.err = r.decode(id, entry.record)
		entry.record = nil
		entry.decoded = true
	}
	return entry.object, entry.err
}

func (r *TableRepository) sharedObject(id string) (domain.PortObject, bool) {
	if r.shared == nil {
		return nil, false
	}
	return r.shared.decoded(id)
}

func (r *TableRepository) decode(id string, record *TableRecord) (domain.PortObject, error) {
	if r.codecs == nil {
		return nil, domain.NewLoadError("decode_table", "no codecs available", nil)
	}
	codec, err := r.codecs.Codec(record.Type)
	if err != nil {
		return nil, domain.NewLoadError("decode_table", fmt.Sprintf("table %s has no codec for %s", id, record.Type), err)
	}
	obj, err := codec.Decode(record.Data)
	if err != nil {
		return nil, domain.NewLoadError("decode_table", fmt.Sprintf("table %s is corrupt", id), err)
	}
	r.logger.Debug("table decoded", "table_id", id, "type", record.Type.String())
	return obj, nil
}

func (r *TableRepository) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *TableRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// MergeInto moves every successfully decoded object into global and
// discards this repository. Objects global already holds are kept.
func (r *TableRepository) MergeInto(global *TableRepository) int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*tableEntry)
	r.closed = true
	r.mu.Unlock()

	merged := 0
	for id, entry := range entries {
		entry.mu.Lock()
		obj, ok := entry.object, entry.decoded && entry.err == nil
		entry.mu.Unlock()
		if !ok {
			continue
		}
		if _, exists := global.decoded(id); exists {
			continue
		}
		global.Put(id, obj)
		merged++
	}
	r.logger.Debug("table repository merged", "tables", merged)
	return merged
}

// Discard drops every entry. Further Get calls fail.
func (r *TableRepository) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*tableEntry)
	r.closed = true
}
