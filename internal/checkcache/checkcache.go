// Package checkcache persists check-service responses in SQLite, keyed by a
// hash of the checked text. Re-opening a document replays cached matches
// without touching the service; entries expire after a TTL. The cache is
// best-effort: storage failures are logged and treated as misses so a broken
// cache file never blocks checking.
package checkcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/proofwatch/annotation"
	"github.com/hazyhaar/proofwatch/internal/dbopen"
)

const schema = `
CREATE TABLE IF NOT EXISTS check_cache (
	content_hash TEXT PRIMARY KEY,
	language     TEXT NOT NULL,
	matches      TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_check_cache_created ON check_cache(created_at);
`

// Store is a TTL cache of check responses. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
	ownsDB bool
}

// New wraps an already-open database and ensures the cache schema exists.
// A ttl of zero means entries never expire.
func New(db *sql.DB, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("checkcache: init schema: %w", err)
	}
	return &Store{db: db, ttl: ttl, logger: logger}, nil
}

// Open opens (or creates) the cache database at path. The returned Store
// owns the connection and closes it on Close. Entries left over from earlier
// sessions that have outlived the ttl are swept immediately.
func Open(path string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("checkcache: %w", err)
	}
	s, err := New(db, ttl, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	if n, err := s.Sweep(context.Background()); err != nil {
		s.logger.Warn("checkcache: startup sweep", "error", err)
	} else if n > 0 {
		s.logger.Debug("checkcache: swept expired entries", "count", n)
	}
	return s, nil
}

// Close releases the database if this Store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func key(language, text string) string {
	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the cached matches for text in language, or false on a
// miss. Expired entries are removed lazily here.
func (s *Store) Lookup(ctx context.Context, language, text string) ([]annotation.Match, bool) {
	k := key(language, text)

	var raw string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT matches, created_at FROM check_cache WHERE content_hash = ?`, k).
		Scan(&raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("checkcache: lookup failed", "error", err)
		return nil, false
	}

	if s.ttl > 0 && time.Since(time.UnixMilli(createdAt)) > s.ttl {
		s.drop(ctx, k)
		return nil, false
	}

	var matches []annotation.Match
	if err := json.Unmarshal([]byte(raw), &matches); err != nil {
		s.logger.Warn("checkcache: corrupt entry", "error", err)
		s.drop(ctx, k)
		return nil, false
	}
	return matches, true
}

// Put stores the matches for text in language, replacing any previous entry.
// Failures are logged and swallowed.
func (s *Store) Put(ctx context.Context, language, text string, matches []annotation.Match) {
	if matches == nil {
		matches = []annotation.Match{}
	}
	raw, err := json.Marshal(matches)
	if err != nil {
		s.logger.Warn("checkcache: encode matches", "error", err)
		return
	}
	_, err = dbopen.Exec(ctx, s.db, `
		INSERT OR REPLACE INTO check_cache (content_hash, language, matches, created_at)
		VALUES (?,?,?,?)`,
		key(language, text), language, string(raw), time.Now().UnixMilli())
	if err != nil {
		s.logger.Warn("checkcache: put failed", "error", err)
	}
}

// Sweep removes all expired entries and reports how many were deleted.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.ttl).UnixMilli()
	res, err := dbopen.Exec(ctx, s.db,
		`DELETE FROM check_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("checkcache: sweep: %w", err)
	}
	return res.RowsAffected()
}

// Count reports how many entries the cache holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM check_cache`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("checkcache: count: %w", err)
	}
	return n, nil
}

func (s *Store) drop(ctx context.Context, k string) {
	if _, err := dbopen.Exec(ctx, s.db, `DELETE FROM check_cache WHERE content_hash = ?`, k); err != nil {
		s.logger.Debug("checkcache: drop entry", "error", err)
	}
}
