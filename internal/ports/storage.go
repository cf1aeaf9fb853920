package ports

// StoragePort is the versioned key-value store workflow records live in.
// Every successful Put increments the key's version; a positive
// expectedVersion must equal the stored version.
type StoragePort interface {
	Get(key string) (value []byte, version int64, exists bool, err error)
	Put(key string, value []byte, expectedVersion int64) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	RunInTransaction(fn func(tx Transaction) error) error
	Close() error
}

// Transaction reads its own writes; they commit together or not at all.
type Transaction interface {
	Get(key string) (value []byte, version int64, exists bool, err error)
	Put(key string, value []byte, expectedVersion int64) error
	Delete(key string) error
}
