package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const fileSuffix = ".entry"

// FileStore persists one JSON encoded CacheEntry per key under Directory.
// Writes go to a temporary file that is renamed into place, so readers never
// observe a partially written entry.
type FileStore struct {
	Directory string

	now func() time.Time
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr("file", "open", err)
	}
	return &FileStore{Directory: dir, now: time.Now}, nil
}

func (c *FileStore) Get(_ context.Context, key Key) ([]byte, bool, error) {
	path := c.path(key)
	entry, seen, err := readEntryInfo(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr("file", "get", err)
	}

	if entry.Expired(c.now()) {
		if _, err := removeStale(path, seen); err != nil {
			return nil, false, wrapErr("file", "get", err)
		}
		return nil, false, nil
	}

	data, err := entry.Value()
	if err != nil {
		return nil, false, wrapErr("file", "get", err)
	}
	return data, true, nil
}

func (c *FileStore) Put(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	entry := &CacheEntry{
		Key:        key,
		Data:       value,
		CreatedAt:  c.now(),
		TTLSeconds: ttlSeconds(ttl),
	}
	if ShouldCompress(value) {
		if compressed, err := CompressData(value); err == nil && len(compressed) < len(value) {
			entry.Data = compressed
			entry.IsCompressed = true
		}
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return wrapErr("file", "put", err)
	}

	tmp, err := os.CreateTemp(c.Directory, string(key)+".tmp-*")
	if err != nil {
		return wrapErr("file", "put", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return wrapErr("file", "put", err)
	}
	if err := tmp.Close(); err != nil {
		return wrapErr("file", "put", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		return wrapErr("file", "put", err)
	}
	return nil
}

func (c *FileStore) EvictExpired(ctx context.Context) (int, error) {
	dirEntries, err := os.ReadDir(c.Directory)
	if err != nil {
		return 0, wrapErr("file", "sweep", err)
	}

	now := c.now()
	var evicted int
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileSuffix) {
			continue
		}
		path := filepath.Join(c.Directory, de.Name())
		entry, seen, err := readEntryInfo(path)
		if err != nil {
			// Unreadable entries would never be served; drop them too.
			if os.Remove(path) == nil {
				evicted++
			}
			continue
		}
		if !entry.Expired(now) {
			continue
		}
		if removed, _ := removeStale(path, seen); removed {
			evicted++
		}
	}
	return evicted, nil
}

func (c *FileStore) Close() error { return nil }

func (c *FileStore) path(key Key) string {
	return filepath.Join(c.Directory, string(key)+fileSuffix)
}

// readEntryInfo decodes the entry at path together with the stat of the
// file it was read from.
func readEntryInfo(path string) (*CacheEntry, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	entry := &CacheEntry{}
	if err := json.NewDecoder(f).Decode(entry); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return entry, info, nil
}

// removeStale deletes path only while it is still the file described by
// seen. A Put renames a new file into place, so a replaced entry survives.
func removeStale(path string, seen os.FileInfo) (bool, error) {
	current, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !os.SameFile(seen, current) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
