package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/glimpse/internal/logging"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteRepository stores records in a single SQLite file.
type SQLiteRepository struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteRepository opens (creating if needed) the database at path and
// applies the schema.
func NewSQLiteRepository(path string, logger logging.Logger) (*SQLiteRepository, error) {
	if path == "" {
		return nil, errors.New("store: sqlite path is empty")
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection keeps inserts serialized.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger = logger.With(logging.Field{Key: "component", Value: "sqlite_store"})
	logger.Info("sqlite store initialized", logging.Field{Key: "path", Value: path})
	return &SQLiteRepository{db: db, logger: logger}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *SQLiteRepository) Save(ctx context.Context, rec *Record) (*Record, bool, error) {
	fresh, err := prepare(rec)
	if err != nil {
		return nil, false, err
	}

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO records (key, id, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
		RETURNING id`,
		fresh.Key, fresh.ID, fresh.Kind, []byte(fresh.Payload), fresh.CreatedAt.UnixNano(),
	).Scan(&id)
	switch {
	case err == nil:
		return fresh, true, nil
	case errors.Is(err, sql.ErrNoRows):
		existing, err := s.FindByKey(ctx, fresh.Key)
		if err != nil {
			return nil, false, fmt.Errorf("store: load existing %s: %w", fresh.Key, err)
		}
		s.logger.Debug("record already stored", logging.Field{Key: "key", Value: fresh.Key})
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("store: insert %s: %w", fresh.Key, err)
	}
}

func (s *SQLiteRepository) FindByKey(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT kind, key, id, payload, created_at FROM records WHERE key = ?`, key)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *SQLiteRepository) AddRelationship(ctx context.Context, parentKey, childKey, rel string) error {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE key IN (?, ?)`, parentKey, childKey,
	).Scan(&n); err != nil {
		return fmt.Errorf("store: check relationship ends: %w", err)
	}
	want := 2
	if parentKey == childKey {
		want = 1
	}
	if n != want {
		return ErrNotFound
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (parent_key, child_key, rel)
		VALUES (?, ?, ?)
		ON CONFLICT(parent_key, child_key, rel) DO NOTHING`,
		parentKey, childKey, rel,
	)
	if err != nil {
		return fmt.Errorf("store: add relationship: %w", err)
	}
	return nil
}

func (s *SQLiteRepository) Children(ctx context.Context, parentKey, rel string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.kind, r.key, r.id, r.payload, r.created_at
		FROM relationships rel
		JOIN records r ON r.key = rel.child_key
		WHERE rel.parent_key = ? AND rel.rel = ?
		ORDER BY rel.seq`, parentKey, rel)
	if err != nil {
		return nil, fmt.Errorf("store: query children: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var (
		rec     Record
		payload []byte
		created int64
	)
	if err := scan(&rec.Kind, &rec.Key, &rec.ID, &payload, &created); err != nil {
		return nil, err
	}
	rec.Payload = payload
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}
