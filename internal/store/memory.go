package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Memory is an in-process Store used by tests and --ephemeral runs. It applies
// the same precondition semantics as the durable backends.
type Memory struct {
	mu   sync.Mutex
	data map[string]map[string]memRecord
}

type memRecord struct {
	data    []byte
	version int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]memRecord)}
}

func (m *Memory) Get(_ context.Context, collection, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(rec.data))
	copy(out, rec.data)
	return &Record{Data: out, Version: strconv.FormatInt(rec.version, 10)}, nil
}

func (m *Memory) Put(_ context.Context, collection, id string, value any, pre *Precondition) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.data[collection]
	if col == nil {
		col = make(map[string]memRecord)
		m.data[collection] = col
	}

	existing, exists := col[id]
	if pre != nil {
		if pre.Absent && exists {
			return "", fmt.Errorf("%s/%s already exists: %w", collection, id, ErrConflict)
		}
		if pre.Version != "" {
			if !exists {
				return "", ErrNotFound
			}
			if strconv.FormatInt(existing.version, 10) != pre.Version {
				return "", fmt.Errorf("%s/%s version mismatch: %w", collection, id, ErrConflict)
			}
		}
	}

	next := existing.version + 1
	col[id] = memRecord{data: raw, version: next}
	return strconv.FormatInt(next, 10), nil
}

func (m *Memory) Append(ctx context.Context, collection, id, path string, item any) error {
	rec, err := m.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	updated, err := appendToPath(rec.Data, path, item)
	if err != nil {
		return err
	}
	_, err = m.Put(ctx, collection, id, json.RawMessage(updated), &Precondition{Version: rec.Version})
	return err
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Close() {}

// appendToPath appends item to the JSON array at the top-level field path,
// creating the array if absent. Shared by the memory and file-store backends;
// Postgres does the same with jsonb_set.
func appendToPath(data []byte, path string, item any) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("record is not an object: %w", err)
	}

	var arr []json.RawMessage
	if existing, ok := obj[path]; ok && len(existing) > 0 && string(existing) != "null" {
		if err := json.Unmarshal(existing, &arr); err != nil {
			return nil, fmt.Errorf("field %q is not an array: %w", path, err)
		}
	}

	itemRaw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal append item: %w", err)
	}
	arr = append(arr, itemRaw)

	arrRaw, err := json.Marshal(arr)
	if err != nil {
		return nil, err
	}
	obj[path] = arrRaw

	return json.Marshal(obj)
}
