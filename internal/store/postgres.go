package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/raysh454/glimpse/internal/logging"
)

//go:embed postgres_schema.sql
var postgresSchema string

// PostgresRepository stores records in PostgreSQL through a pgx pool.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgresRepository connects, pings and applies the schema.
func NewPostgresRepository(ctx context.Context, url string, logger logging.Logger) (*PostgresRepository, error) {
	if url == "" {
		return nil, errors.New("store: postgres url is empty")
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: apply postgres schema: %w", err)
	}

	logger = logger.With(logging.Field{Key: "component", Value: "postgres_store"})
	logger.Info("postgres store initialized")
	return &PostgresRepository{pool: pool, logger: logger}, nil
}

func (p *PostgresRepository) Save(ctx context.Context, rec *Record) (*Record, bool, error) {
	fresh, err := prepare(rec)
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	if len(fresh.Payload) > 0 {
		payload = fresh.Payload
	}

	var id string
	err = p.pool.QueryRow(ctx, `
		INSERT INTO records (key, id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO NOTHING
		RETURNING id`,
		fresh.Key, fresh.ID, fresh.Kind, payload, fresh.CreatedAt,
	).Scan(&id)
	switch {
	case err == nil:
		return fresh, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := p.FindByKey(ctx, fresh.Key)
		if err != nil {
			return nil, false, fmt.Errorf("store: load existing %s: %w", fresh.Key, err)
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("store: insert %s: %w", fresh.Key, err)
	}
}

func (p *PostgresRepository) FindByKey(ctx context.Context, key string) (*Record, error) {
	var (
		rec     Record
		payload []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT kind, key, id, payload, created_at FROM records WHERE key = $1`, key,
	).Scan(&rec.Kind, &rec.Key, &rec.ID, &payload, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Payload = payload
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (p *PostgresRepository) AddRelationship(ctx context.Context, parentKey, childKey, rel string) error {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO relationships (parent_key, child_key, rel)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM records WHERE key = $1)
		  AND EXISTS (SELECT 1 FROM records WHERE key = $2)
		ON CONFLICT (parent_key, child_key, rel) DO NOTHING`,
		parentKey, childKey, rel,
	)
	if err != nil {
		return fmt.Errorf("store: add relationship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either a repeat or a missing end; only the latter is an error.
		var exists bool
		if err := p.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM relationships WHERE parent_key = $1 AND child_key = $2 AND rel = $3)`,
			parentKey, childKey, rel,
		).Scan(&exists); err != nil {
			return fmt.Errorf("store: check relationship: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (p *PostgresRepository) Children(ctx context.Context, parentKey, rel string) ([]*Record, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT r.kind, r.key, r.id, r.payload, r.created_at
		FROM relationships l
		JOIN records r ON r.key = l.child_key
		WHERE l.parent_key = $1 AND l.rel = $2
		ORDER BY l.seq`, parentKey, rel)
	if err != nil {
		return nil, fmt.Errorf("store: query children: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			rec     Record
			payload []byte
		)
		if err := rows.Scan(&rec.Kind, &rec.Key, &rec.ID, &payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Payload = payload
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (p *PostgresRepository) Close() error {
	p.pool.Close()
	return nil
}
