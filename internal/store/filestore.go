package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// FileStore persists collections as named JSON documents on a remote
// version-controlled file service. The wire contract is:
//
//	GET  {base}/{collection}.json            -> 200 {"content": {...}, "version": "tag"} | 404
//	PUT  {base}/{collection}.json            <- {"content": {...}, "expected_version": "tag"}
//	                                         -> 200 {"version": "tag"} | 409 on stale tag
//
// Each record carries its own integer version inside the blob, so per-record
// preconditions behave exactly like the Postgres backend. File-level tag races
// are retried internally with a fresh read; record-level precondition failures
// surface as ErrConflict.
type FileStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// fileEnvelope is one record inside a collection blob.
type fileEnvelope struct {
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type fileReadResponse struct {
	Content map[string]fileEnvelope `json:"content"`
	Version string                  `json:"version"`
}

type fileWriteRequest struct {
	Content         map[string]fileEnvelope `json:"content"`
	ExpectedVersion string                  `json:"expected_version,omitempty"`
}

// maxWriteAttempts bounds re-reads when the file-level tag races. Record-level
// precondition failures are never retried here; that is the caller's call.
const maxWriteAttempts = 4

// NewFileStore creates a remote file store client.
func NewFileStore(baseURL, token string) *FileStore {
	return &FileStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (f *FileStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	content, _, err := f.readCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	env, ok := content[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Record{Data: env.Data, Version: strconv.FormatInt(env.Version, 10)}, nil
}

func (f *FileStore) Put(ctx context.Context, collection, id string, value any, pre *Precondition) (string, error) {
	raw, err := marshalValue(value)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		content, tag, err := f.readCollection(ctx, collection)
		if err != nil {
			return "", err
		}

		existing, exists := content[id]
		if pre != nil {
			if pre.Absent && exists {
				return "", fmt.Errorf("%s/%s already exists: %w", collection, id, ErrConflict)
			}
			if pre.Version != "" {
				if !exists {
					return "", ErrNotFound
				}
				if strconv.FormatInt(existing.Version, 10) != pre.Version {
					return "", fmt.Errorf("%s/%s version mismatch: %w", collection, id, ErrConflict)
				}
			}
		}

		next := existing.Version + 1
		content[id] = fileEnvelope{Version: next, Data: raw}

		err = f.writeCollection(ctx, collection, content, tag)
		if err == nil {
			return strconv.FormatInt(next, 10), nil
		}
		// A stale file tag means another writer touched a different record in
		// the same blob; re-read and re-check the record precondition.
		if !IsConflict(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("file store write kept racing for %s/%s: %w", collection, id, lastErr)
}

func (f *FileStore) Append(ctx context.Context, collection, id, path string, item any) error {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		rec, err := f.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		updated, err := appendToPath(rec.Data, path, item)
		if err != nil {
			return err
		}
		_, err = f.Put(ctx, collection, id, json.RawMessage(updated), &Precondition{Version: rec.Version})
		if err == nil {
			return nil
		}
		if !IsConflict(err) {
			return err
		}
	}
	return fmt.Errorf("append to %s/%s kept racing: %w", collection, id, ErrConflict)
}

func (f *FileStore) Name() string { return "filestore" }

func (f *FileStore) Close() {}

// Ping verifies the remote file service is reachable.
func (f *FileStore) Ping(ctx context.Context) error {
	_, _, err := f.readCollection(ctx, CollectionJobs)
	return err
}

func (f *FileStore) readCollection(ctx context.Context, collection string) (map[string]fileEnvelope, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.collectionURL(collection), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	f.setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("file store read failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		// Collection not created yet; treated as empty with no tag.
		return map[string]fileEnvelope{}, "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("file store read returned HTTP %d for %s", resp.StatusCode, collection)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file store response: %w", err)
	}

	var parsed fileReadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", fmt.Errorf("failed to parse file store response: %w", err)
	}
	if parsed.Content == nil {
		parsed.Content = map[string]fileEnvelope{}
	}
	return parsed.Content, parsed.Version, nil
}

func (f *FileStore) writeCollection(ctx context.Context, collection string, content map[string]fileEnvelope, expectedTag string) error {
	payload, err := json.Marshal(fileWriteRequest{Content: content, ExpectedVersion: expectedTag})
	if err != nil {
		return fmt.Errorf("failed to marshal file store payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, f.collectionURL(collection), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	f.setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("file store write failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict, http.StatusPreconditionFailed:
		return fmt.Errorf("stale file tag for %s: %w", collection, ErrConflict)
	default:
		return fmt.Errorf("file store write returned HTTP %d for %s", resp.StatusCode, collection)
	}
}

func (f *FileStore) collectionURL(collection string) string {
	return f.baseURL + "/" + collection + ".json"
}

func (f *FileStore) setHeaders(req *http.Request) {
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
}
