// Package postgres provides the Postgres-backed path/status store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitewatch/sitewatch/internal/changelog"
	"github.com/sitewatch/sitewatch/internal/store"
)

// deleteChunkSize caps how many sort keys one delete statement removes. Large
// path sets are paged into chunks of this size; a failed chunk fails the
// whole delete.
const deleteChunkSize = 25

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for store rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists path, status, and occurrence rows in one composite-key
// table (pk, sk). It mirrors path and status mutations onto the change log.
//
// Expected schema:
//
//	CREATE TABLE records (
//	    pk         TEXT NOT NULL,
//	    sk         TEXT NOT NULL,
//	    created_at TIMESTAMPTZ,
//	    updated_at TIMESTAMPTZ,
//	    status     TEXT,
//	    count      BIGINT,
//	    PRIMARY KEY (pk, sk)
//	);
type Store struct {
	pool  dbPool
	table string
	log   changelog.Appender
	clock func() time.Time
}

// NewStore connects a pool using the provided config.
func NewStore(ctx context.Context, cfg Config, log changelog.Appender) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(pool, cfg.Table, log)
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing with pgxmock).
func NewStoreWithPool(pool dbPool, table string, log changelog.Appender) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newStore(pool, table, log)
}

func newStore(pool dbPool, table string, log changelog.Appender) (*Store, error) {
	if table == "" {
		table = "records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{
		pool:  pool,
		table: table,
		log:   log,
		clock: func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the timestamp source (testing).
func (s *Store) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertPath overwrites the (site, path) row, regenerating both timestamps.
func (s *Store) UpsertPath(ctx context.Context, site, path string) error {
	now := s.clock()
	query := fmt.Sprintf(`
INSERT INTO %s (pk, sk, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (pk, sk) DO UPDATE
SET created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`, s.table)

	var inserted bool
	err := s.pool.QueryRow(ctx, query, store.SiteKey(site), store.PathSortKey(path), now).Scan(&inserted)
	if err != nil {
		return fmt.Errorf("upsert path: %w", err)
	}

	op := changelog.OpModify
	if inserted {
		op = changelog.OpInsert
	}
	s.append(changelog.Record{
		Op:           op,
		PartitionKey: store.SiteKey(site),
		SortKey:      store.PathSortKey(path),
		New: map[string]string{
			"site":       site,
			"path":       path,
			"created_at": now.Format(time.RFC3339Nano),
			"updated_at": now.Format(time.RFC3339Nano),
		},
		At: now,
	})
	return nil
}

// GetPath loads one path row; absence is reported via the boolean.
func (s *Store) GetPath(ctx context.Context, site, path string) (store.PathRecord, bool, error) {
	query := fmt.Sprintf(`
SELECT created_at, updated_at FROM %s WHERE pk = $1 AND sk = $2`, s.table)

	rec := store.PathRecord{Site: site, Path: path}
	err := s.pool.QueryRow(ctx, query, store.SiteKey(site), store.PathSortKey(path)).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.PathRecord{}, false, nil
		}
		return store.PathRecord{}, false, fmt.Errorf("get path: %w", err)
	}
	return rec, true, nil
}

// ListPaths range-scans the site partition for path rows.
func (s *Store) ListPaths(ctx context.Context, site string) ([]store.PathRecord, error) {
	query := fmt.Sprintf(`
SELECT sk, created_at, updated_at FROM %s
WHERE pk = $1 AND sk LIKE $2
ORDER BY sk`, s.table)

	rows, err := s.pool.Query(ctx, query, store.SiteKey(site), store.PathPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}
	defer rows.Close()

	var out []store.PathRecord
	for rows.Next() {
		var sk string
		rec := store.PathRecord{Site: site}
		if err := rows.Scan(&sk, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan path row: %w", err)
		}
		path, ok := store.SplitPathSortKey(sk)
		if !ok {
			continue
		}
		rec.Path = path
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list paths rows: %w", err)
	}
	return out, nil
}

// DeletePaths removes every path row for the site, paging the sort keys into
// fixed-size chunks. The first failed chunk aborts the whole operation.
func (s *Store) DeletePaths(ctx context.Context, site string) error {
	paths, err := s.ListPaths(ctx, site)
	if err != nil {
		return fmt.Errorf("delete paths: %w", err)
	}
	if len(paths) == 0 {
		return nil
	}

	now := s.clock()
	query := fmt.Sprintf(`DELETE FROM %s WHERE pk = $1 AND sk = ANY($2)`, s.table)

	for start := 0; start < len(paths); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(paths) {
			end = len(paths)
		}
		chunk := paths[start:end]
		keys := make([]string, 0, len(chunk))
		for _, rec := range chunk {
			keys = append(keys, store.PathSortKey(rec.Path))
		}
		if _, err := s.pool.Exec(ctx, query, store.SiteKey(site), keys); err != nil {
			return fmt.Errorf("delete paths chunk: %w", err)
		}
		for _, rec := range chunk {
			s.append(changelog.Record{
				Op:           changelog.OpRemove,
				PartitionKey: store.SiteKey(site),
				SortKey:      store.PathSortKey(rec.Path),
				Old: map[string]string{
					"site": site,
					"path": rec.Path,
				},
				At: now,
			})
		}
	}
	return nil
}

// GetStatus loads the per-site crawl status row.
func (s *Store) GetStatus(ctx context.Context, site string) (store.Status, bool, error) {
	query := fmt.Sprintf(`SELECT status FROM %s WHERE pk = $1 AND sk = $2`, s.table)

	var status store.Status
	err := s.pool.QueryRow(ctx, query, store.SiteKey(site), store.StatusSortKey).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get status: %w", err)
	}
	return status, true, nil
}

// SetStatus writes the crawl status row for the site.
func (s *Store) SetStatus(ctx context.Context, site string, status store.Status) error {
	now := s.clock()
	query := fmt.Sprintf(`
INSERT INTO %s (pk, sk, status, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (pk, sk) DO UPDATE
SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`, s.table)

	var inserted bool
	err := s.pool.QueryRow(ctx, query, store.SiteKey(site), store.StatusSortKey, status, now).Scan(&inserted)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	op := changelog.OpModify
	if inserted {
		op = changelog.OpInsert
	}
	s.append(changelog.Record{
		Op:           op,
		PartitionKey: store.SiteKey(site),
		SortKey:      store.StatusSortKey,
		New:          map[string]string{"site": site, "status": string(status)},
		At:           now,
	})
	return nil
}

// DeleteStatus removes the status row; deleting an absent row is a no-op.
func (s *Store) DeleteStatus(ctx context.Context, site string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE pk = $1 AND sk = $2`, s.table)

	tag, err := s.pool.Exec(ctx, query, store.SiteKey(site), store.StatusSortKey)
	if err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.append(changelog.Record{
			Op:           changelog.OpRemove,
			PartitionKey: store.SiteKey(site),
			SortKey:      store.StatusSortKey,
			Old:          map[string]string{"site": site},
			At:           s.clock(),
		})
	}
	return nil
}

// GetOccurrence loads one keyphrase occurrence row.
func (s *Store) GetOccurrence(ctx context.Context, site, path, phrase string) (store.KeyphraseOccurrence, bool, error) {
	query := fmt.Sprintf(`SELECT count FROM %s WHERE pk = $1 AND sk = $2`, s.table)

	occ := store.KeyphraseOccurrence{Site: site, Path: path, Phrase: phrase}
	err := s.pool.QueryRow(ctx, query, store.SiteKey(site), store.PhraseSortKey(path, phrase)).Scan(&occ.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.KeyphraseOccurrence{}, false, nil
		}
		return store.KeyphraseOccurrence{}, false, fmt.Errorf("get occurrence: %w", err)
	}
	return occ, true, nil
}

// PutOccurrence overwrites the occurrence row with the merged count.
func (s *Store) PutOccurrence(ctx context.Context, occ store.KeyphraseOccurrence) error {
	query := fmt.Sprintf(`
INSERT INTO %s (pk, sk, count, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (pk, sk) DO UPDATE
SET count = EXCLUDED.count, updated_at = EXCLUDED.updated_at`, s.table)

	_, err := s.pool.Exec(ctx, query,
		store.SiteKey(occ.Site),
		store.PhraseSortKey(occ.Path, occ.Phrase),
		occ.Count,
		s.clock(),
	)
	if err != nil {
		return fmt.Errorf("put occurrence: %w", err)
	}
	return nil
}

// ListOccurrences range-scans the site partition for occurrence rows.
func (s *Store) ListOccurrences(ctx context.Context, site string) ([]store.KeyphraseOccurrence, error) {
	query := fmt.Sprintf(`
SELECT sk, count FROM %s
WHERE pk = $1 AND sk LIKE $2
ORDER BY sk`, s.table)

	rows, err := s.pool.Query(ctx, query, store.SiteKey(site), store.PhrasePrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	var out []store.KeyphraseOccurrence
	for rows.Next() {
		var sk string
		occ := store.KeyphraseOccurrence{Site: site}
		if err := rows.Scan(&sk, &occ.Count); err != nil {
			return nil, fmt.Errorf("scan occurrence row: %w", err)
		}
		occ.Path, occ.Phrase = splitPhraseSortKey(sk)
		out = append(out, occ)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list occurrences rows: %w", err)
	}
	return out, nil
}

func (s *Store) append(rec changelog.Record) {
	if s.log == nil {
		return
	}
	s.log.Append(rec)
}

// splitPhraseSortKey undoes PhraseSortKey. The phrase is everything after the
// final separator so paths containing '#' would be ambiguous; paths come from
// URL path components, which the frontier normalizes without fragments.
func splitPhraseSortKey(sk string) (path, phrase string) {
	rest, ok := strings.CutPrefix(sk, store.PhrasePrefix)
	if !ok {
		return "", ""
	}
	idx := strings.LastIndexByte(rest, '#')
	if idx < 0 {
		return rest, ""
	}
	return rest[:idx], rest[idx+1:]
}
