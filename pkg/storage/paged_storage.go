// Package storage implements PagedStorage, a byte-addressable store over a
// single file, in two flavors: Direct (every write lands on disk
// immediately) and Buffered (writes accumulate in a dirty-page cache and
// are flushed on sync or eviction). The dynamic B+ tree's data file uses
// Direct; its directory file uses Buffered.
package storage

import (
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// PagedStorage is the random-access byte store contract shared by the
// Direct and Buffered implementations.
type PagedStorage interface {
	ReadAt(offset int64, length int) ([]byte, error)
	WriteAt(offset int64, data []byte) error
	Append(data []byte) (offset int64, err error)
	Length() (int64, error)
	Sync() error
	Close() error
}

// DirectStorage issues every write as an immediate positional write,
// mirroring LogWriter's FsyncInterval==0 behavior: no write is considered
// durable until its fsync has returned.
type DirectStorage struct {
	mu     sync.Mutex
	file   *os.File
	offset int64 // current end-of-file, tracked to support Append
}

// OpenDirect opens or creates path for direct, unbuffered access.
func OpenDirect(path string) (*DirectStorage, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open direct storage %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat direct storage %s: %w", path, err)
	}
	return &DirectStorage{file: f, offset: stat.Size()}, nil
}

// ReadAt reads length bytes starting at offset.
func (d *DirectStorage) ReadAt(offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := d.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("direct storage read at %d: %w", offset, err)
	}
	return buf, nil
}

// WriteAt writes data at a fixed offset and fsyncs immediately.
func (d *DirectStorage) WriteAt(offset int64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("direct storage write at %d: %w", offset, err)
	}
	if end := offset + int64(len(data)); end > d.offset {
		d.offset = end
	}
	return d.file.Sync()
}

// Append writes data at the current end of file and returns the offset it
// was written at.
func (d *DirectStorage) Append(data []byte) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := d.offset
	if _, err := d.file.WriteAt(data, offset); err != nil {
		return 0, fmt.Errorf("direct storage append at %d: %w", offset, err)
	}
	d.offset += int64(len(data))
	return offset, d.file.Sync()
}

// Length returns the current file size.
func (d *DirectStorage) Length() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offset, nil
}

// Sync is a no-op beyond what WriteAt/Append already guarantee; every
// direct write is already durable when it returns.
func (d *DirectStorage) Sync() error {
	return d.file.Sync()
}

// Close flushes and closes the backing file.
func (d *DirectStorage) Close() error {
	if err := d.file.Sync(); err != nil {
		d.file.Close()
		return fmt.Errorf("direct storage close sync: %w", err)
	}
	return d.file.Close()
}

// dirtyPage is one pending write held in the Buffered cache before it is
// flushed to disk.
type dirtyPage struct {
	offset int64
	data   []byte
}

// bufferedCacheSize bounds the number of distinct dirty pages Buffered
// keeps before it starts evicting (and flushing) the least recently used
// one. The directory file is randomly written but small per pairing, so a
// modest bound keeps memory flat without thrashing.
const bufferedCacheSize = 1024

// BufferedStorage batches writes into a dirty-page cache keyed by offset,
// evicted (and flushed) on Sync or when the cache bound is hit. Reads
// first consult the cache so a page that has not yet reached disk is still
// visible.
//
// The cache is an adaptive replacement cache from hashicorp/golang-lru.
// WriteAt never lets the cache evict on its own: when the cache is full it
// removes one page itself (maybeEvict) and writes it through to the
// backing file before staging the new one, so evicted pages are never
// lost, only no longer buffered.
type BufferedStorage struct {
	mu     sync.Mutex
	file   *os.File
	offset int64
	cache  *lru.ARCCache
}

// OpenBuffered opens or creates path for buffered, random-write access.
func OpenBuffered(path string) (*BufferedStorage, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open buffered storage %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat buffered storage %s: %w", path, err)
	}

	b := &BufferedStorage{file: f, offset: stat.Size()}
	cache, err := lru.NewARC(bufferedCacheSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create buffered storage cache: %w", err)
	}
	b.cache = cache
	return b, nil
}

// ReadAt reads length bytes starting at offset, preferring a dirty page
// from the cache over the backing file if present.
func (b *BufferedStorage) ReadAt(offset int64, length int) ([]byte, error) {
	b.mu.Lock()
	if v, ok := b.cache.Get(offset); ok {
		page := v.(dirtyPage)
		if len(page.data) >= length {
			out := make([]byte, length)
			copy(out, page.data[:length])
			b.mu.Unlock()
			return out, nil
		}
	}
	b.mu.Unlock()

	buf := make([]byte, length)
	if _, err := b.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("buffered storage read at %d: %w", offset, err)
	}
	return buf, nil
}

// WriteAt stages data into the dirty-page cache at offset. If the cache
// evicts another page to make room, the evicted page is flushed to disk
// before WriteAt returns.
func (b *BufferedStorage) WriteAt(offset int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)

	if evicted, ok := b.maybeEvict(); ok {
		if err := b.flushPage(evicted); err != nil {
			return err
		}
	}
	b.cache.Add(offset, dirtyPage{offset: offset, data: cp})
	if end := offset + int64(len(data)); end > b.offset {
		b.offset = end
	}
	return nil
}

// maybeEvict returns the oldest page and true if the cache is already at
// its bound, so the caller can flush it before adding a new one.
func (b *BufferedStorage) maybeEvict() (dirtyPage, bool) {
	if b.cache.Len() < bufferedCacheSize {
		return dirtyPage{}, false
	}
	keys := b.cache.Keys()
	if len(keys) == 0 {
		return dirtyPage{}, false
	}
	v, ok := b.cache.Peek(keys[0])
	if !ok {
		return dirtyPage{}, false
	}
	page := v.(dirtyPage)
	b.cache.Remove(keys[0])
	return page, true
}

// Append writes data at the current end of file through the dirty-page
// cache and returns the offset it was staged at.
func (b *BufferedStorage) Append(data []byte) (int64, error) {
	b.mu.Lock()
	offset := b.offset
	b.mu.Unlock()

	if err := b.WriteAt(offset, data); err != nil {
		return 0, err
	}
	return offset, nil
}

// Length returns the current logical file size, including staged writes.
func (b *BufferedStorage) Length() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offset, nil
}

// flushPage writes one dirty page to the backing file. Caller must hold mu.
func (b *BufferedStorage) flushPage(page dirtyPage) error {
	if _, err := b.file.WriteAt(page.data, page.offset); err != nil {
		return fmt.Errorf("buffered storage flush at %d: %w", page.offset, err)
	}
	return nil
}

// Sync flushes every cached dirty page to disk and fsyncs the file.
func (b *BufferedStorage) Sync() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range b.cache.Keys() {
		v, ok := b.cache.Peek(key)
		if !ok {
			continue
		}
		if err := b.flushPage(v.(dirtyPage)); err != nil {
			return err
		}
	}
	b.cache.Purge()
	return b.file.Sync()
}

// Close syncs all outstanding pages and closes the backing file.
func (b *BufferedStorage) Close() error {
	if err := b.Sync(); err != nil {
		b.file.Close()
		return fmt.Errorf("buffered storage close sync: %w", err)
	}
	return b.file.Close()
}
