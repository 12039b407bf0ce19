package modules

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SourceCache stores fetched remote module sources in sqlite so a module
// fetched once can be loaded again while the network is down.
type SourceCache struct {
	db   *sql.DB
	path string
}

// OpenSourceCache opens (creating if needed) the cache database at path.
func OpenSourceCache(path string) (*SourceCache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening source cache: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sources (
		url TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		fetched_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &SourceCache{db: db, path: path}, nil
}

func (c *SourceCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores body for url, replacing any previous entry.
func (c *SourceCache) Put(url, body string) error {
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO sources (url, body, fetched_at) VALUES (?, ?, ?)",
		url, body, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("caching %s: %w", url, err)
	}
	return nil
}

// Get returns the cached body for url. The bool is false when there is no
// entry.
func (c *SourceCache) Get(url string) (string, time.Time, bool, error) {
	var body string
	var fetched int64
	err := c.db.QueryRow("SELECT body, fetched_at FROM sources WHERE url = ?", url).Scan(&body, &fetched)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, fmt.Errorf("querying cache: %w", err)
	}
	return body, time.Unix(fetched, 0), true, nil
}

// Len returns the number of cached sources.
func (c *SourceCache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM sources").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache: %w", err)
	}
	return n, nil
}
