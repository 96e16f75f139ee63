package cachebreak

import (
	"sync"

	"github.com/spf13/afero"
)

type digestEntry struct {
	digest  string
	size    int64
	mtimeNS int64
}

// MemCache is an in-memory DigestCache over an afero filesystem.
type MemCache struct {
	fs      afero.Fs
	mu      sync.Mutex
	entries map[string]digestEntry
}

// NewMemCache creates an in-memory digest cache reading files from fs.
func NewMemCache(fs afero.Fs) *MemCache {
	return &MemCache{
		fs:      fs,
		entries: make(map[string]digestEntry),
	}
}

func (c *MemCache) Digest(path string) (string, error) {
	fi, err := c.fs.Stat(path)
	if err != nil {
		return "", err
	}
	size, mtimeNS := fi.Size(), fi.ModTime().UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok && e.size == size && e.mtimeNS == mtimeNS {
		return e.digest, nil
	}

	b, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return "", err
	}
	digest := hexDigest(b)
	c.entries[path] = digestEntry{digest: digest, size: size, mtimeNS: mtimeNS}
	return digest, nil
}

func (c *MemCache) Purge(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}
