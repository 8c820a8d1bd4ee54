package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    encoding TEXT NOT NULL,
    generator TEXT NOT NULL,
    path TEXT NOT NULL,
    seed INTEGER NOT NULL,
    seed_tag TEXT NOT NULL,
    bits TEXT NOT NULL,
    bits_hash TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS blocks (
    idx INTEGER PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    record_id TEXT NOT NULL REFERENCES records(id),
    data_hash TEXT NOT NULL,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL
);
`

// SQLiteStore persists the ledger in a SQLite database.
type SQLiteStore struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Record, []Block, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, created_at, encoding, generator, path, seed, seed_tag, bits, bits_hash FROM records`)
	if err != nil {
		return nil, nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		var r Record
		var created int64
		if err := rows.Scan(&r.ID, &created, &r.Encoding, &r.Generator, &r.Path, &r.Seed, &r.SeedTag, &r.Bits, &r.BitsHash); err != nil {
			return nil, nil, fmt.Errorf("scan record: %w", err)
		}
		r.CreatedAt = fromMillis(created)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate records: %w", err)
	}

	brows, err := s.sqlDB.QueryContext(ctx,
		`SELECT idx, timestamp, record_id, data_hash, prev_hash, hash FROM blocks ORDER BY idx`)
	if err != nil {
		return nil, nil, fmt.Errorf("query blocks: %w", err)
	}
	defer brows.Close()
	var chain []Block
	for brows.Next() {
		var b Block
		if err := brows.Scan(&b.Index, &b.Timestamp, &b.RecordID, &b.DataHash, &b.PrevHash, &b.Hash); err != nil {
			return nil, nil, fmt.Errorf("scan block: %w", err)
		}
		chain = append(chain, b)
	}
	if err := brows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return recs, chain, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record, blk Block) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records (id, created_at, encoding, generator, path, seed, seed_tag, bits, bits_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, toMillis(rec.CreatedAt), rec.Encoding, rec.Generator, rec.Path, rec.Seed, rec.SeedTag, rec.Bits, rec.BitsHash,
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blocks (idx, timestamp, record_id, data_hash, prev_hash, hash) VALUES (?, ?, ?, ?, ?, ?)`,
		blk.Index, blk.Timestamp, blk.RecordID, blk.DataHash, blk.PrevHash, blk.Hash,
	); err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
