// Package store persists fingerprint-keyed records. Every backend gives the
// same guarantee: at most one record per key, with Save acting as an atomic
// insert-if-absent.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/glimpse/internal/fingerprint"
	"github.com/raysh454/glimpse/internal/logging"
)

var (
	ErrNotFound   = errors.New("store: not found")
	ErrInvalidKey = errors.New("store: invalid key")
	ErrClosed     = errors.New("store: closed")
)

// Relationship types.
const (
	RelHasIssue   = "HAS_ISSUE"
	RelHasStep    = "HAS_STEP"
	RelStartsAt   = "STARTS_AT"
	RelEndsAt     = "ENDS_AT"
	RelActsOn     = "ACTS_ON"
	RelAsUser     = "AS_USER"
	RelHasElement = "HAS_ELEMENT"
	RelAuditOf    = "AUDIT_OF"
)

// Record is one persisted entity. Key comes from the fingerprint package;
// ID is assigned by the store on first insert.
type Record struct {
	Kind      string          `json:"kind"`
	Key       string          `json:"key"`
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Repository is the persistence contract used by the journey saver and the
// audit pipeline.
type Repository interface {
	// Save inserts rec unless a record with the same key exists. It returns
	// the stored record and whether this call created it.
	Save(ctx context.Context, rec *Record) (*Record, bool, error)
	FindByKey(ctx context.Context, key string) (*Record, error)
	// AddRelationship links two stored records. Repeating a link is a no-op.
	AddRelationship(ctx context.Context, parentKey, childKey, rel string) error
	// Children returns the records linked from parentKey by rel, oldest link first.
	Children(ctx context.Context, parentKey, rel string) ([]*Record, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend     string `yaml:"backend" json:"backend"` // memory, sqlite or postgres
	SQLitePath  string `yaml:"sqlite_path" json:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url" json:"postgres_url"`
	BlobDir     string `yaml:"blob_dir" json:"blob_dir"`
}

// Open builds the repository named by cfg.Backend.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (Repository, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryRepository(), nil
	case "sqlite":
		repo, err := NewSQLiteRepository(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "postgres":
		repo, err := NewPostgresRepository(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

// prepare validates rec and returns a copy ready for insertion.
func prepare(rec *Record) (*Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidKey)
	}
	if !fingerprint.Valid(rec.Key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, rec.Key)
	}
	out := *rec
	if out.Kind == "" {
		out.Kind = fingerprint.Kind(rec.Key)
	}
	out.ID = uuid.NewString()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	out.Payload = append(json.RawMessage(nil), rec.Payload...)
	return &out, nil
}

// NewRecord marshals payload into a record keyed by key.
func NewRecord(key string, payload any) (*Record, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("store: marshal %s: %w", key, err)
	}
	return &Record{Kind: fingerprint.Kind(key), Key: key, Payload: b}, nil
}
