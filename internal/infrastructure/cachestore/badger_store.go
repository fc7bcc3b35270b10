// Package cachestore implements the AIRAC-versioned content cache on
// BadgerDB. Entries are keyed by (cycle tag, category, identifier); the
// current-tag pointer lives in a small metadata record in the same database.
//
// Rollover atomicity: SwapVersion holds the store's write lock while it
// evicts the outgoing tag's entries and flips the pointer last, so a reader
// observes either the old epoch fully intact or the new one with no
// leftovers. An interrupted swap is detected through the pending field of
// the version record and resumed on the next open.
package cachestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/core/ports"
)

const (
	entryPrefix = "e/"
	metaVersion = "m/current"
)

// Options configures a BadgerStore.
type Options struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode, for tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives store and rollover-recovery events. If nil, Badger's
	// internal logging is disabled too.
	Logger *slog.Logger
}

// DefaultOptions returns production defaults for the given path.
func DefaultOptions(path string) Options {
	return Options{Path: path, SyncWrites: true}
}

// InMemoryOptions returns options for testing without disk I/O.
func InMemoryOptions() Options {
	return Options{InMemory: true}
}

// BadgerStore is the versioned cache on BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger

	// mu orders rollovers against readers and writers: SwapVersion and
	// EvictVersion hold the write lock, everything else the read lock.
	mu sync.RWMutex
}

// Open opens (or creates) the cache database and resumes any rollover that
// was interrupted mid-eviction.
func Open(opts Options) (*BadgerStore, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("cache path is required for persistent store")
		}
		if err := os.MkdirAll(opts.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", opts.Path, err)
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts = badgerOpts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	store := &BadgerStore{db: db, logger: logger}
	if err := store.recoverPending(); err != nil {
		db.Close()
		return nil, fmt.Errorf("recover interrupted rollover: %w", err)
	}
	return store, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// CurrentVersion returns the tag marked current, or a zero tag if no cycle
// has been recorded yet.
func (s *BadgerStore) CurrentVersion() (domain.VersionTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.readRecord()
	if err != nil {
		return "", err
	}
	return rec.Current, nil
}

// VersionRecord returns the full persisted version record.
func (s *BadgerStore) VersionRecord() (domain.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readRecord()
}

// Load returns the payload under key, or nil if absent.
func (s *BadgerStore) Load(key domain.CacheKey) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cache entry %s: %w", entryKey(key), err)
	}
	return unwrapEntry(payload)
}

// Store writes payload under key, last-write-wins. The tag bucket springs
// into existence with its first entry.
func (s *BadgerStore) Store(key domain.CacheKey, payload []byte) error {
	if key.Tag.IsZero() {
		return domain.ErrNoCurrentVersion
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	wrapped, err := wrapEntry(payload)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(key), wrapped)
	})
	if err != nil {
		return fmt.Errorf("store cache entry %s: %w", entryKey(key), err)
	}
	return nil
}

// SwapVersion makes next the current tag. The outgoing tag's entries are
// evicted first and the pointer flips last; the pending marker makes an
// interrupted swap resumable.
func (s *BadgerStore) SwapVersion(ctx context.Context, next domain.VersionTag) error {
	if next.IsZero() {
		return errors.New("next version tag must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readRecord()
	if err != nil {
		return err
	}
	if rec.Current == next {
		return nil
	}

	// First run: nothing to evict, just record the tag.
	if rec.Current.IsZero() {
		return s.writeRecord(domain.VersionRecord{Current: next, UpdatedAt: time.Now()})
	}

	// Mark the incoming tag before touching data, so a crash between here
	// and the final flip is recoverable.
	outgoing := rec.Current
	if err := s.writeRecord(domain.VersionRecord{Current: outgoing, Pending: next, UpdatedAt: time.Now()}); err != nil {
		return err
	}

	if err := s.dropTag(outgoing); err != nil {
		return fmt.Errorf("evict cycle %s: %w", outgoing, err)
	}

	return s.writeRecord(domain.VersionRecord{Current: next, UpdatedAt: time.Now()})
}

// EvictVersion deletes all entries under tag. Evicting an absent tag is a
// no-op.
func (s *BadgerStore) EvictVersion(tag domain.VersionTag) error {
	if tag.IsZero() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropTag(tag)
}

// EntryCount returns the number of entries stored under tag.
func (s *BadgerStore) EntryCount(tag domain.VersionTag) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	prefix := tagPrefix(tag)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(prefixIteratorOptions(prefix))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count cycle %s entries: %w", tag, err)
	}
	return count, nil
}

// Tags returns every tag that has at least one entry, for display.
func (s *BadgerStore) Tags() ([]domain.VersionTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[domain.VersionTag]struct{}{}
	var tags []domain.VersionTag
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(prefixIteratorOptions([]byte(entryPrefix)))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			rest := key[len(entryPrefix):]
			idx := bytes.IndexByte(rest, '/')
			if idx < 0 {
				continue
			}
			tag := domain.VersionTag(rest[:idx])
			if _, ok := seen[tag]; !ok {
				seen[tag] = struct{}{}
				tags = append(tags, tag)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list cached cycles: %w", err)
	}
	return tags, nil
}

// TotalSize returns the aggregate stored size in bytes across all tags.
// Read-only; sizes are Badger's estimates including key overhead.
func (s *BadgerStore) TotalSize() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(prefixIteratorOptions([]byte(entryPrefix)))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			total += it.Item().EstimatedSize()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure cache size: %w", err)
	}
	return total, nil
}

// recoverPending resumes a rollover that crashed between eviction start and
// the pointer flip. The outgoing tag may be partially evicted; re-eviction
// is idempotent.
func (s *BadgerStore) recoverPending() error {
	rec, err := s.readRecord()
	if err != nil {
		return err
	}
	if rec.Pending.IsZero() {
		return nil
	}

	s.logger.Warn("resuming interrupted AIRAC rollover",
		"outgoing", rec.Current.String(), "incoming", rec.Pending.String())

	if err := s.dropTag(rec.Current); err != nil {
		return err
	}
	return s.writeRecord(domain.VersionRecord{Current: rec.Pending, UpdatedAt: time.Now()})
}

func (s *BadgerStore) dropTag(tag domain.VersionTag) error {
	if tag.IsZero() {
		return nil
	}
	return s.db.DropPrefix(tagPrefix(tag))
}

func (s *BadgerStore) readRecord() (domain.VersionRecord, error) {
	var rec domain.VersionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaVersion))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.VersionRecord{}, nil
	}
	if err != nil {
		return domain.VersionRecord{}, fmt.Errorf("read version record: %w", err)
	}
	return rec, nil
}

func (s *BadgerStore) writeRecord(rec domain.VersionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal version record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaVersion), data)
	})
	if err != nil {
		return fmt.Errorf("write version record: %w", err)
	}
	return nil
}

// storedEntry is the on-disk envelope for a cache payload.
type storedEntry struct {
	Payload  []byte    `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
}

func wrapEntry(payload []byte) ([]byte, error) {
	data, err := json.Marshal(storedEntry{Payload: payload, StoredAt: time.Now()})
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func unwrapEntry(data []byte) ([]byte, error) {
	var entry storedEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, &domain.DecodingError{Err: err}
	}
	return entry.Payload, nil
}

func entryKey(key domain.CacheKey) []byte {
	return []byte(entryPrefix + key.Tag.String() + "/" + key.Category + "/" + key.ID)
}

func tagPrefix(tag domain.VersionTag) []byte {
	return []byte(entryPrefix + tag.String() + "/")
}

func prefixIteratorOptions(prefix []byte) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	return opts
}

var _ ports.CacheStore = (*BadgerStore)(nil)
