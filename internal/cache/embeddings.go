// Package cache persists embedding vectors so repeated utterances are only
// embedded once per model.
package cache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
	_ "modernc.org/sqlite"
)

const (
	touchFlushInterval = 5 * time.Second
	touchBatch         = 64

	busyTimeoutDSN = "?_pragma=busy_timeout(5000)"
)

var schema = []string{
	`PRAGMA journal_mode=WAL`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		content_hash TEXT NOT NULL,
		model        TEXT NOT NULL,
		dim          INTEGER NOT NULL,
		vector       BLOB NOT NULL,
		created_at   INTEGER NOT NULL,
		accessed_at  INTEGER NOT NULL,
		PRIMARY KEY (content_hash, model)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_embeddings_accessed ON embeddings(accessed_at)`,
}

type entryKey struct {
	hash  string
	model string
}

// EmbeddingCache is a size-bounded SQLite store of embedding vectors keyed
// by content hash and model. Least recently read entries are evicted first.
//
// Reads record their access time in memory; the times are written back in
// batches by a background loop, on Flush and before eviction.
type EmbeddingCache struct {
	db       *sql.DB
	maxBytes int64

	mu      sync.Mutex
	touched map[entryKey]int64

	hits   atomic.Int64
	misses atomic.Int64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// CacheStats reports usage of the embedding cache.
type CacheStats struct {
	Entries    int
	TotalBytes int64
	Hits       int64
	Misses     int64
}

// NewEmbeddingCache opens or creates the cache database at dbPath. Once the
// stored vectors exceed maxMB megabytes the oldest entries are evicted;
// maxMB <= 0 disables eviction.
func NewEmbeddingCache(dbPath string, maxMB int) (*EmbeddingCache, error) {
	db, err := sql.Open("sqlite", dbPath+busyTimeoutDSN)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", dbPath, err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache: init schema: %w", err)
		}
	}

	c := &EmbeddingCache{
		db:       db,
		maxBytes: int64(maxMB) << 20,
		touched:  make(map[entryKey]int64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.flushLoop()
	return c, nil
}

// ContentHash returns a stable 128-bit hex digest of text.
func ContentHash(text string) string {
	sum := xxh3.HashString128(text).Bytes()
	return hex.EncodeToString(sum[:])
}

// Get returns the vector cached for contentHash under model, or (nil, nil)
// when there is none.
func (c *EmbeddingCache) Get(ctx context.Context, contentHash, model string) ([]float32, error) {
	var dim int
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT dim, vector FROM embeddings WHERE content_hash = ? AND model = ?`,
		contentHash, model,
	).Scan(&dim, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get: %w", err)
	}

	vec, err := decodeVector(blob, dim)
	if err != nil {
		return nil, fmt.Errorf("cache: get %s/%s: %w", model, contentHash, err)
	}
	c.hits.Add(1)
	c.touch(entryKey{hash: contentHash, model: model})
	return vec, nil
}

// Put stores vector for contentHash under model, replacing any previous
// entry, then evicts if the cache is over its size bound.
func (c *EmbeddingCache) Put(ctx context.Context, contentHash, model string, vector []float32) error {
	now := time.Now().UnixNano()
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO embeddings (content_hash, model, dim, vector, created_at, accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (content_hash, model) DO UPDATE
		 SET dim = excluded.dim, vector = excluded.vector, accessed_at = excluded.accessed_at`,
		contentHash, model, len(vector), encodeVector(vector), now, now,
	); err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return c.evict(ctx)
}

// Stats returns entry and byte totals with the hit and miss counts of this process.
func (c *EmbeddingCache) Stats() (*CacheStats, error) {
	stats := CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if err := c.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(vector)), 0) FROM embeddings`,
	).Scan(&stats.Entries, &stats.TotalBytes); err != nil {
		return nil, fmt.Errorf("cache: stats: %w", err)
	}
	return &stats, nil
}

// Clear removes every entry.
func (c *EmbeddingCache) Clear() error {
	c.mu.Lock()
	clear(c.touched)
	c.mu.Unlock()
	if _, err := c.db.Exec(`DELETE FROM embeddings`); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}

// Flush writes buffered access times to the database.
func (c *EmbeddingCache) Flush() error {
	c.mu.Lock()
	if len(c.touched) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := c.touched
	c.touched = make(map[entryKey]int64, len(batch))
	c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("cache: flush: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE embeddings SET accessed_at = MAX(accessed_at, ?) WHERE content_hash = ? AND model = ?`)
	if err != nil {
		return fmt.Errorf("cache: flush: %w", err)
	}
	defer stmt.Close()

	for k, ts := range batch {
		if _, err := stmt.Exec(ts, k.hash, k.model); err != nil {
			return fmt.Errorf("cache: flush: %w", err)
		}
	}
	return tx.Commit()
}

// Close flushes access times, stops the background loop and closes the
// database. Later calls return nil.
func (c *EmbeddingCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		err = c.db.Close()
	})
	return err
}

func (c *EmbeddingCache) touch(k entryKey) {
	c.mu.Lock()
	c.touched[k] = time.Now().UnixNano()
	n := len(c.touched)
	c.mu.Unlock()
	if n >= touchBatch {
		go c.Flush()
	}
}

func (c *EmbeddingCache) flushLoop() {
	defer close(c.done)
	ticker := time.NewTicker(touchFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = c.Flush()
		case <-c.stop:
			_ = c.Flush()
			return
		}
	}
}

// evict deletes the least recently accessed entries beyond the size bound,
// keeping the newest entries whose vectors fit within it.
func (c *EmbeddingCache) evict(ctx context.Context) error {
	if c.maxBytes <= 0 {
		return nil
	}

	var total int64
	if err := c.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(vector)), 0) FROM embeddings`,
	).Scan(&total); err != nil {
		return fmt.Errorf("cache: evict: %w", err)
	}
	if total <= c.maxBytes {
		return nil
	}

	if err := c.Flush(); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE rowid IN (
			SELECT rowid FROM (
				SELECT rowid, SUM(LENGTH(vector)) OVER (ORDER BY accessed_at DESC, rowid DESC) AS kept
				FROM embeddings
			) WHERE kept > ?
		)`,
		c.maxBytes,
	); err != nil {
		return fmt.Errorf("cache: evict: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 0, len(v)*4)
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("stored dim %d does not match %d-byte vector", dim, len(blob))
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}
