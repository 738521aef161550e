package talestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/unalkalkan/TaleWeaver/internal/storage"
	"github.com/unalkalkan/TaleWeaver/internal/util"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

var (
	// ErrNotFound is returned when a tale does not exist in the collection
	ErrNotFound = errors.New("tale not found")
	// ErrInvalidID is returned for IDs that cannot name a storage key
	ErrInvalidID = errors.New("invalid tale id")
)

// Repository handles server-side tale persistence
type Repository interface {
	// SaveTale stores or replaces an entry, assigning an ID when missing
	SaveTale(ctx context.Context, kind types.CollectionKind, entry *types.LibraryEntry) error

	// GetTale retrieves an entry by ID
	GetTale(ctx context.Context, kind types.CollectionKind, id string) (*types.LibraryEntry, error)

	// ListTales returns a collection, newest first
	ListTales(ctx context.Context, kind types.CollectionKind) ([]*types.LibraryEntry, error)

	// DeleteTale removes an entry
	DeleteTale(ctx context.Context, kind types.CollectionKind, id string) error

	// ClearTales removes every entry of the given collections
	ClearTales(ctx context.Context, kinds ...types.CollectionKind) error
}

// StorageRepository implements Repository using a storage adapter
type StorageRepository struct {
	storage storage.Adapter
}

// NewRepository creates a new tale repository
func NewRepository(storageAdapter storage.Adapter) Repository {
	return &StorageRepository{
		storage: storageAdapter,
	}
}

// SaveTale stores or replaces an entry
func (r *StorageRepository) SaveTale(ctx context.Context, kind types.CollectionKind, entry *types.LibraryEntry) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown collection %q", kind)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if !validID(entry.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, entry.ID)
	}
	entry.Type = kind

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal tale: %w", err)
	}
	if err := r.storage.Put(ctx, util.TalePath(kind, entry.ID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store tale: %w", err)
	}
	return nil
}

// GetTale retrieves an entry by ID
func (r *StorageRepository) GetTale(ctx context.Context, kind types.CollectionKind, id string) (*types.LibraryEntry, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	reader, err := r.storage.Get(ctx, util.TalePath(kind, id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get tale: %w", err)
	}
	defer reader.Close()

	var entry types.LibraryEntry
	if err := json.NewDecoder(reader).Decode(&entry); err != nil {
		return nil, fmt.Errorf("failed to decode tale: %w", err)
	}
	return &entry, nil
}

// ListTales returns a collection, newest first. Unreadable entries are skipped.
func (r *StorageRepository) ListTales(ctx context.Context, kind types.CollectionKind) ([]*types.LibraryEntry, error) {
	paths, err := r.storage.List(ctx, util.TalePrefix(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list tales: %w", err)
	}

	tales := make([]*types.LibraryEntry, 0, len(paths))
	for _, path := range paths {
		id := util.TaleIDFromPath(path)
		if id == "" {
			continue
		}
		entry, err := r.GetTale(ctx, kind, id)
		if err != nil {
			continue
		}
		tales = append(tales, entry)
	}

	sort.SliceStable(tales, func(i, j int) bool {
		return tales[i].Date.After(tales[j].Date)
	})
	return tales, nil
}

// DeleteTale removes an entry
func (r *StorageRepository) DeleteTale(ctx context.Context, kind types.CollectionKind, id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	path := util.TalePath(kind, id)
	exists, err := r.storage.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to check tale: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := r.storage.Delete(ctx, path); err != nil {
		return fmt.Errorf("failed to delete tale: %w", err)
	}
	return nil
}

// ClearTales removes every entry of the given collections
func (r *StorageRepository) ClearTales(ctx context.Context, kinds ...types.CollectionKind) error {
	for _, kind := range kinds {
		paths, err := r.storage.List(ctx, util.TalePrefix(kind))
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", kind, err)
		}
		for _, path := range paths {
			if err := r.storage.Delete(ctx, path); err != nil {
				return fmt.Errorf("failed to delete %s: %w", path, err)
			}
		}
	}
	return nil
}

// validID rejects IDs that would escape the collection prefix
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, "/\\")
}
