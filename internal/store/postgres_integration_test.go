package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests require a live database. Set TEST_DATABASE_URL to run them.

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	pg, err := ConnectPostgres(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	return pg
}

func TestPostgres_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	pg := newTestPostgres(t)
	id := uuid.NewString()

	v, err := pg.Put(ctx, "documents", id, testRecord{Name: "landing"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	rec, err := pg.Get(ctx, "documents", id)
	require.NoError(t, err)
	var out testRecord
	require.NoError(t, Decode(rec, &out))
	assert.Equal(t, "landing", out.Name)
}

func TestPostgres_StalePreconditionConflict(t *testing.T) {
	ctx := context.Background()
	pg := newTestPostgres(t)
	id := uuid.NewString()

	v1, err := pg.Put(ctx, "documents", id, testRecord{Name: "v1"}, nil)
	require.NoError(t, err)

	_, err = pg.Put(ctx, "documents", id, testRecord{Name: "a"}, &Precondition{Version: v1})
	require.NoError(t, err)

	_, err = pg.Put(ctx, "documents", id, testRecord{Name: "b"}, &Precondition{Version: v1})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgres_AbsentPrecondition(t *testing.T) {
	ctx := context.Background()
	pg := newTestPostgres(t)
	slug := "slug-" + uuid.NewString()

	_, err := pg.Put(ctx, "slugs", slug, map[string]string{"document_id": "d1"}, &Precondition{Absent: true})
	require.NoError(t, err)

	_, err = pg.Put(ctx, "slugs", slug, map[string]string{"document_id": "d2"}, &Precondition{Absent: true})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgres_Append(t *testing.T) {
	ctx := context.Background()
	pg := newTestPostgres(t)
	id := uuid.NewString()

	_, err := pg.Put(ctx, "documents", id, testRecord{Name: "doc"}, nil)
	require.NoError(t, err)

	require.NoError(t, pg.Append(ctx, "documents", id, "events", "view"))
	require.NoError(t, pg.Append(ctx, "documents", id, "events", "lead"))

	rec, err := pg.Get(ctx, "documents", id)
	require.NoError(t, err)
	var out testRecord
	require.NoError(t, Decode(rec, &out))
	assert.Equal(t, []string{"view", "lead"}, out.Events)
}
