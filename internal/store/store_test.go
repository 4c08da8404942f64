package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/raysh454/glimpse/internal/fingerprint"
	"github.com/raysh454/glimpse/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns every repository implementation available in this
// environment, each freshly created.
func backends(t *testing.T) map[string]func(t *testing.T) Repository {
	t.Helper()
	out := map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository { return NewMemoryRepository() },
		"sqlite": func(t *testing.T) Repository {
			repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "glimpse.db"), logging.Nop{})
			require.NoError(t, err)
			return repo
		},
	}
	if url := os.Getenv("GLIMPSE_TEST_POSTGRES_URL"); url != "" {
		out["postgres"] = func(t *testing.T) Repository {
			repo, err := NewPostgresRepository(context.Background(), url, logging.Nop{})
			require.NoError(t, err)
			_, err = repo.pool.Exec(context.Background(), `TRUNCATE relationships, records`)
			require.NoError(t, err)
			return repo
		}
	}
	return out
}

func TestRepository_SaveIsInsertIfAbsent(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			defer repo.Close()
			ctx := context.Background()

			key := fingerprint.Of(fingerprint.Step, "login", "a")
			first, created, err := repo.Save(ctx, &Record{Key: key, Payload: json.RawMessage(`{"n":1}`)})
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, fingerprint.Step, first.Kind)
			assert.NotEmpty(t, first.ID)

			second, created, err := repo.Save(ctx, &Record{Key: key, Payload: json.RawMessage(`{"n":2}`)})
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, first.ID, second.ID)
			assert.JSONEq(t, `{"n":1}`, string(second.Payload))

			found, err := repo.FindByKey(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, first.ID, found.ID)
		})
	}
}

func TestRepository_ConcurrentSaveCollapses(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			defer repo.Close()
			ctx := context.Background()
			key := fingerprint.Of(fingerprint.Step, "same")

			const workers = 8
			ids := make([]string, workers)
			var createdCount int
			var mu sync.Mutex
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					rec, created, err := repo.Save(ctx, &Record{Key: key, Payload: json.RawMessage(`{}`)})
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					ids[i] = rec.ID
					if created {
						createdCount++
					}
					mu.Unlock()
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 1, createdCount)
			for _, id := range ids {
				assert.Equal(t, ids[0], id)
			}
		})
	}
}

func TestRepository_Relationships(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			defer repo.Close()
			ctx := context.Background()

			parent := fingerprint.Of(fingerprint.Audit, "p")
			a := fingerprint.Of(fingerprint.Issue, "a")
			b := fingerprint.Of(fingerprint.Issue, "b")
			for _, k := range []string{parent, a, b} {
				_, _, err := repo.Save(ctx, &Record{Key: k})
				require.NoError(t, err)
			}

			require.NoError(t, repo.AddRelationship(ctx, parent, a, RelHasIssue))
			require.NoError(t, repo.AddRelationship(ctx, parent, b, RelHasIssue))
			require.NoError(t, repo.AddRelationship(ctx, parent, a, RelHasIssue))

			kids, err := repo.Children(ctx, parent, RelHasIssue)
			require.NoError(t, err)
			require.Len(t, kids, 2)
			assert.Equal(t, a, kids[0].Key)
			assert.Equal(t, b, kids[1].Key)

			none, err := repo.Children(ctx, parent, RelHasStep)
			require.NoError(t, err)
			assert.Empty(t, none)

			err = repo.AddRelationship(ctx, parent, fingerprint.Of(fingerprint.Issue, "missing"), RelHasIssue)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRepository_Errors(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			defer repo.Close()
			ctx := context.Background()

			_, err := repo.FindByKey(ctx, fingerprint.Of(fingerprint.Page, "nope"))
			assert.ErrorIs(t, err, ErrNotFound)

			_, _, err = repo.Save(ctx, &Record{Key: "not-a-fingerprint"})
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "mongo"}, nil)
	assert.Error(t, err)
}

func TestBlobStore_PutGet(t *testing.T) {
	dir := t.TempDir()
	bs, err := NewBlobStore(dir)
	require.NoError(t, err)

	digest, err := bs.Put([]byte("<html></html>"))
	require.NoError(t, err)
	assert.Len(t, digest, 64)
	assert.True(t, bs.Exists(digest))
	assert.FileExists(t, filepath.Join(dir, digest[:2], digest))

	again, err := bs.Put([]byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, digest, again)

	data, err := bs.Get(digest)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))

	require.NoError(t, os.WriteFile(filepath.Join(dir, digest[:2], digest), []byte("tampered"), 0644))
	_, err = bs.Get(digest)
	assert.ErrorIs(t, err, ErrBlobCorrupt)

	_, err = bs.Get("../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}
