package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerCache implements Cache on an embedded BadgerDB.
type BadgerCache[T any] struct {
	db      *badger.DB
	options *CacheOptions
	stop    chan struct{}
}

// BadgerCacheOptions adds storage tuning to the shared options.
type BadgerCacheOptions struct {
	CacheOptions

	// InMemory keeps the database off disk; dbPath is ignored.
	InMemory bool

	ValueLogFileSize int64
	MemTableSize     int64
	SyncWrites       bool

	// GCInterval is how often the value log is garbage collected.
	GCInterval time.Duration
}

// DefaultBadgerCacheOptions returns the default BadgerDB cache options.
func DefaultBadgerCacheOptions() *BadgerCacheOptions {
	return &BadgerCacheOptions{
		CacheOptions:     *DefaultCacheOptions(),
		ValueLogFileSize: 1 << 26, // 64 MB
		MemTableSize:     1 << 24, // 16 MB
		GCInterval:       5 * time.Minute,
	}
}

// NewBadgerCache opens (or creates) a BadgerDB at dbPath.
func NewBadgerCache[T any](dbPath string, options *BadgerCacheOptions) (*BadgerCache[T], error) {
	if options == nil {
		options = DefaultBadgerCacheOptions()
	}

	opts := badger.DefaultOptions(dbPath)
	if options.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	if options.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = options.ValueLogFileSize
	}
	if options.MemTableSize > 0 {
		opts.MemTableSize = options.MemTableSize
	}
	opts.SyncWrites = options.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	base := options.CacheOptions
	c := &BadgerCache[T]{
		db:      db,
		options: &base,
		stop:    make(chan struct{}),
	}

	if !options.InMemory && options.GCInterval > 0 {
		go c.runGC(options.GCInterval)
	}
	return c, nil
}

// Get returns the value stored under key.
func (c *BadgerCache[T]) Get(ctx context.Context, key string) (T, error) {
	var result T

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &result); err != nil {
				return fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
			}
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return result, ErrCacheMiss
		}
		if errors.Is(err, badger.ErrDBClosed) {
			return result, ErrCacheClosed
		}
		return result, fmt.Errorf("failed to get from cache: %w", err)
	}
	return result, nil
}

// Set stores data under key.
func (c *BadgerCache[T]) Set(ctx context.Context, key string, data T, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}

	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl = effectiveTTL(ttl, c.options); ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to set in cache: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *BadgerCache[T]) Delete(ctx context.Context, key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}
	return nil
}

// Clear drops all data.
func (c *BadgerCache[T]) Clear(ctx context.Context) error {
	return c.db.DropAll()
}

// Close stops GC and closes the database.
func (c *BadgerCache[T]) Close() error {
	select {
	case <-c.stop:
		return nil
	default:
	}
	close(c.stop)
	return c.db.Close()
}

func (c *BadgerCache[T]) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			// Rewrite value log files while at least half of one can be reclaimed.
			for c.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}
