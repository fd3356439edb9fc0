package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores every collection in a single records table keyed by
// (collection, id), with a bigint version column bumped on every write. The
// version column gives the relational path the same optimistic-concurrency
// contract as the file store's version tags.
type Postgres struct {
	pool *pgxpool.Pool
}

const recordsSchema = `
CREATE TABLE IF NOT EXISTS records (
    collection  text        NOT NULL,
    id          text        NOT NULL,
    content     jsonb       NOT NULL,
    version     bigint      NOT NULL DEFAULT 1,
    created_at  timestamptz NOT NULL DEFAULT now(),
    updated_at  timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
)`

// ConnectPostgres establishes a connection pool, verifies it with a ping, and
// ensures the records table exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, recordsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure records table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (*Record, error) {
	var content []byte
	var version int64
	err := p.pool.QueryRow(ctx,
		`SELECT content, version FROM records WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&content, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return &Record{Data: content, Version: strconv.FormatInt(version, 10)}, nil
}

func (p *Postgres) Put(ctx context.Context, collection, id string, value any, pre *Precondition) (string, error) {
	raw, err := marshalValue(value)
	if err != nil {
		return "", err
	}

	var version int64
	switch {
	case pre != nil && pre.Absent:
		err = p.pool.QueryRow(ctx,
			`INSERT INTO records (collection, id, content) VALUES ($1, $2, $3)
			 ON CONFLICT (collection, id) DO NOTHING
			 RETURNING version`,
			collection, id, raw,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%s/%s already exists: %w", collection, id, ErrConflict)
		}

	case pre != nil && pre.Version != "":
		expected, perr := strconv.ParseInt(pre.Version, 10, 64)
		if perr != nil {
			return "", fmt.Errorf("invalid precondition version %q: %w", pre.Version, perr)
		}
		err = p.pool.QueryRow(ctx,
			`UPDATE records SET content = $4, version = version + 1, updated_at = now()
			 WHERE collection = $1 AND id = $2 AND version = $3
			 RETURNING version`,
			collection, id, expected, raw,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing record from a stale version.
			if _, gerr := p.Get(ctx, collection, id); errors.Is(gerr, ErrNotFound) {
				return "", ErrNotFound
			}
			return "", fmt.Errorf("%s/%s version mismatch: %w", collection, id, ErrConflict)
		}

	default:
		err = p.pool.QueryRow(ctx,
			`INSERT INTO records (collection, id, content) VALUES ($1, $2, $3)
			 ON CONFLICT (collection, id) DO UPDATE
			 SET content = EXCLUDED.content, version = records.version + 1, updated_at = now()
			 RETURNING version`,
			collection, id, raw,
		).Scan(&version)
	}

	if err != nil {
		return "", fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	return strconv.FormatInt(version, 10), nil
}

func (p *Postgres) Append(ctx context.Context, collection, id, path string, item any) error {
	itemRaw, err := marshalValue(item)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE records
		 SET content = jsonb_set(content, $3, COALESCE(content #> $3, '[]'::jsonb) || $4::jsonb),
		     version = version + 1, updated_at = now()
		 WHERE collection = $1 AND id = $2`,
		collection, id, []string{path}, itemRaw,
	)
	if err != nil {
		return fmt.Errorf("failed to append to %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
