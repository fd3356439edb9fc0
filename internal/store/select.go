package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Options configures backend selection.
type Options struct {
	// DatabaseURL is the PostgreSQL connection string. Empty skips the probe.
	DatabaseURL string
	// FileStoreURL is the base URL of the remote file service fallback.
	FileStoreURL string
	// FileStoreToken is the bearer token for the file service, if any.
	FileStoreToken string
}

// Select probes the relational backend once at process start and falls back
// to the remote file store if it is unreachable. The choice is made exactly
// once; callers hold the returned Store for the process lifetime and never
// re-evaluate per call.
func Select(ctx context.Context, opts Options, log *zap.Logger) (Store, error) {
	if opts.DatabaseURL != "" {
		pg, err := ConnectPostgres(ctx, opts.DatabaseURL)
		if err == nil {
			log.Info("using postgres backend")
			return pg, nil
		}
		log.Warn("postgres unreachable, falling back to file store", zap.Error(err))
	}

	if opts.FileStoreURL != "" {
		fs := NewFileStore(opts.FileStoreURL, opts.FileStoreToken)
		if err := fs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("file store unreachable: %w", err)
		}
		log.Info("using file store backend", zap.String("url", opts.FileStoreURL))
		return fs, nil
	}

	return nil, fmt.Errorf("no persistence backend configured")
}
