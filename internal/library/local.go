package library

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/unalkalkan/TaleWeaver/internal/storage"
	"github.com/unalkalkan/TaleWeaver/internal/util"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// LocalStore keeps the collection snapshots in a storage adapter, one JSON
// array per collection
type LocalStore struct {
	adapter storage.Adapter
}

// NewLocalStore creates a local store over adapter
func NewLocalStore(adapter storage.Adapter) *LocalStore {
	return &LocalStore{adapter: adapter}
}

// Read returns the stored collection; a missing snapshot is an empty one
func (s *LocalStore) Read(ctx context.Context, kind types.CollectionKind) ([]types.LibraryEntry, error) {
	reader, err := s.adapter.Get(ctx, util.LibraryPath(kind))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", kind, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", kind, err)
	}

	var entries []types.LibraryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return entries, nil
}

// Write replaces the stored collection
func (s *LocalStore) Write(ctx context.Context, kind types.CollectionKind, entries []types.LibraryEntry) error {
	if entries == nil {
		entries = []types.LibraryEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	if err := s.adapter.Put(ctx, util.LibraryPath(kind), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", kind, err)
	}
	return nil
}
