package cachebreak

import (
	"database/sql"
	"sync"

	_ "github.com/glebarez/go-sqlite"
	"github.com/spf13/afero"
)

// SQLiteCache is a DigestCache backed by a sqlite database, so digests
// survive process restarts.
type SQLiteCache struct {
	fs         afero.Fs
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a digest cache reading files from fs and
// persisting digests to the given database file.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteCache(fs afero.Fs, filename string) *SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS digests (
		path TEXT PRIMARY KEY,
		digest TEXT,
		size INTEGER,
		mtime_ns INTEGER
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return &SQLiteCache{
		fs:         fs,
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (c *SQLiteCache) Digest(path string) (string, error) {
	fi, err := c.fs.Stat(path)
	if err != nil {
		return "", err
	}
	size, mtimeNS := fi.Size(), fi.ModTime().UnixNano()

	var digest string
	var storedSize, storedMtime int64
	err = c.db.QueryRow(
		"SELECT digest, size, mtime_ns FROM digests WHERE path = ?", path,
	).Scan(&digest, &storedSize, &storedMtime)
	if err == nil && storedSize == size && storedMtime == mtimeNS {
		return digest, nil
	}
	if err != nil && err != sql.ErrNoRows {
		return "", err
	}

	b, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return "", err
	}
	digest = hexDigest(b)

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO digests (path, digest, size, mtime_ns) VALUES (?, ?, ?, ?)",
		path, digest, size, mtimeNS)
	if err != nil {
		return "", err
	}
	return digest, nil
}

func (c *SQLiteCache) Purge(path string) {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	_, err := c.db.Exec("DELETE FROM digests WHERE path = ?", path)
	if err != nil {
		panic(err)
	}
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
