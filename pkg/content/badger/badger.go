// Package badger provides a file content provider backed by an in-memory
// BadgerDB instance.
//
// Each file's content is one value keyed by the file's inode. Badger runs
// in memory-only mode: nothing is persisted across restarts.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/framefs/internal/logger"
	"github.com/marmos91/framefs/pkg/vfs"
)

// maxConflictRetries bounds read-modify-write retries when two writers
// touch the same file concurrently.
const maxConflictRetries = 8

var keyPrefix = []byte("content:")

// Config configures the in-memory store.
type Config struct {
	// MaxFileSize caps a single file. Zero is unlimited.
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size"`

	// BlockCacheSizeMB sizes Badger's block cache. Zero selects 16MB.
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb" yaml:"block_cache_size_mb"`
}

// Store owns the Badger database and hands out file tables.
type Store struct {
	db          *badger.DB
	maxFileSize int64
}

// Open starts an in-memory Badger database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 16
	}

	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(blockCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory BadgerDB: %w", err)
	}

	logger.Debug("Opened in-memory BadgerDB content store (block cache %dMB)", blockCacheMB)
	return &Store{db: db, maxFileSize: cfg.MaxFileSize}, nil
}

// Close shuts the database down.
func (s *Store) Close() error {
	return s.db.Close()
}

// FileOps returns the table serving files whose content lives in s.
func (s *Store) FileOps() *FileOps {
	return &FileOps{store: s}
}

// FileOps is the vfs file table backed by a Store.
type FileOps struct {
	store *Store
}

func contentKey(inode uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], inode)
	return key
}

func fileKey(f *vfs.File) []byte {
	return contentKey(f.Entry().Inode())
}

// load returns the stored content, nil when the key was never written.
func load(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// update runs a read-modify-write of one value, retrying on conflicts.
func (s *Store) update(key []byte, fn func(old []byte) ([]byte, error)) ([]byte, error) {
	var result []byte
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			old, err := load(txn, key)
			if err != nil {
				return err
			}
			next, err := fn(old)
			if err != nil {
				return err
			}
			result = next
			return txn.Set(key, next)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return result, err
}

// checkExtent rejects n bytes at off when they would end past the store's
// file limit or past what a single value can hold.
func (s *Store) checkExtent(path string, off int64, n int) error {
	return vfs.CheckExtent(path, off, n, s.maxFileSize)
}

// mapError converts Badger capacity failures to vfs.ErrOutOfSpace and
// wraps everything else.
func mapError(path string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := vfs.CodeOf(err); ok {
		return err
	}
	if errors.Is(err, badger.ErrTxnTooBig) || errors.Is(err, badger.ErrValueLogSize) {
		return vfs.Errorf(vfs.ErrOutOfSpace, path, "badger: %v", err)
	}
	return fmt.Errorf("badger content %s: %w", path, err)
}

func (o *FileOps) Open(op *vfs.OpContext, f *vfs.File) error {
	f.IncOpen()
	return nil
}

func (o *FileOps) Close(op *vfs.OpContext, f *vfs.File) error {
	_, err := f.DecOpen()
	return err
}

func (o *FileOps) Read(op *vfs.OpContext, f *vfs.File, p []byte, off int64) (int, error) {
	var n int
	err := o.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(f))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if off < int64(len(val)) {
				n = copy(p, val[off:])
			}
			return nil
		})
	})
	return n, mapError(op.Path, err)
}

func (o *FileOps) Write(op *vfs.OpContext, f *vfs.File, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := o.store.checkExtent(op.Path, off, len(p)); err != nil {
		return 0, err
	}
	end := off + int64(len(p))

	content, err := o.store.update(fileKey(f), func(old []byte) ([]byte, error) {
		next := old
		if end > int64(len(old)) {
			next = make([]byte, end)
			copy(next, old)
		}
		copy(next[off:end], p)
		return next, nil
	})
	if err != nil {
		return 0, mapError(op.Path, err)
	}

	f.SetSize(int64(len(content)))
	f.Entry().Touch()
	return len(p), nil
}

func (o *FileOps) Truncate(op *vfs.OpContext, f *vfs.File, size int64) error {
	if err := o.store.checkExtent(op.Path, size, 0); err != nil {
		return err
	}

	err := o.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fileKey(f), make([]byte, size))
	})
	if err != nil {
		return mapError(op.Path, err)
	}

	f.SetSize(size)
	f.Entry().Touch()
	return nil
}

// Getattr reports the stored value length as the size.
func (o *FileOps) Getattr(op *vfs.OpContext, f *vfs.File) (vfs.Attr, error) {
	a := f.Entry().Attr()

	var size int64
	err := o.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(f))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		size = item.ValueSize()
		return nil
	})
	if err != nil {
		return vfs.Attr{}, mapError(op.Path, err)
	}

	a.Size = size
	return a, nil
}

func (o *FileOps) Release(op *vfs.OpContext, f *vfs.File) error {
	return nil
}
