package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/unalkalkan/TaleWeaver/internal/observe"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

var (
	// ErrFavoritesFull is returned when adding beyond the favorites cap
	ErrFavoritesFull = errors.New("favorites list is full")
	// ErrNotFound is returned when neither store has the entry
	ErrNotFound = errors.New("tale not found")
)

// Library manages the history and favorites collections. The local snapshot
// is authoritative for display; the remote store is written best-effort and
// merged in on Refresh.
type Library struct {
	local   *LocalStore
	remote  Remote
	max     int
	metrics *observe.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// New creates a library. remote and metrics may be nil.
func New(local *LocalStore, remote Remote, max int, metrics *observe.Metrics, logger *slog.Logger) *Library {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		local:   local,
		remote:  remote,
		max:     max,
		metrics: metrics,
		logger:  logger.With("component", "library"),
		now:     time.Now,
	}
}

// Max returns the per-collection cap
func (l *Library) Max() int {
	return l.max
}

// List returns the local snapshot of a collection
func (l *Library) List(ctx context.Context, kind types.CollectionKind) []types.LibraryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked(ctx, kind)
}

// Refresh merges the server list into the local snapshot and stores the
// result. A failed server list leaves the local entries in place.
func (l *Library) Refresh(ctx context.Context, kind types.CollectionKind) ([]types.LibraryEntry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown collection %q", kind)
	}

	var remote []types.LibraryEntry
	if l.remote != nil {
		var err error
		remote, err = l.remote.List(ctx, kind)
		if err != nil {
			l.logger.Warn("failed to list remote tales", "kind", kind, "error", err)
			remote = nil
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	merged := Merge(l.readLocked(ctx, kind), remote, l.max)
	if err := l.local.Write(ctx, kind, merged); err != nil {
		return merged, err
	}
	if l.metrics != nil {
		l.metrics.RecordReconcile(ctx, string(kind))
	}
	l.logger.Debug("collection refreshed", "kind", kind, "entries", len(merged), "remote", len(remote))
	return merged, nil
}

// AddToHistory records a finished tale. An entry with the same title is
// replaced, the new one goes first and the list is capped. The remote save
// is best-effort.
func (l *Library) AddToHistory(ctx context.Context, entry types.LibraryEntry) (types.LibraryEntry, error) {
	entry = l.stamp(entry, types.KindHistory)

	l.mu.Lock()
	entries := l.readLocked(ctx, types.KindHistory)
	kept := make([]types.LibraryEntry, 0, len(entries)+1)
	kept = append(kept, entry)
	for _, e := range entries {
		if e.Title != entry.Title {
			kept = append(kept, e)
		}
	}
	if len(kept) > l.max {
		kept = kept[:l.max]
	}
	err := l.local.Write(ctx, types.KindHistory, kept)
	l.mu.Unlock()
	if err != nil {
		return entry, err
	}

	l.saveRemote(ctx, types.KindHistory, entry)
	return entry, nil
}

// ToggleFavorite removes the tale from favorites if a same-title entry is
// there, otherwise adds it. It reports whether the tale is now a favorite.
func (l *Library) ToggleFavorite(ctx context.Context, entry types.LibraryEntry) (bool, error) {
	l.mu.Lock()
	favs := l.readLocked(ctx, types.KindFavorites)
	for i, e := range favs {
		if e.Title != entry.Title {
			continue
		}
		favs = append(favs[:i:i], favs[i+1:]...)
		err := l.local.Write(ctx, types.KindFavorites, favs)
		l.mu.Unlock()
		if err != nil {
			return true, err
		}
		l.deleteRemote(ctx, types.KindFavorites, e.ID)
		return false, nil
	}

	if len(favs) >= l.max {
		l.mu.Unlock()
		return false, ErrFavoritesFull
	}
	entry = l.stamp(entry, types.KindFavorites)
	entry.IsFavorite = true
	favs = append([]types.LibraryEntry{entry}, favs...)
	err := l.local.Write(ctx, types.KindFavorites, favs)
	l.mu.Unlock()
	if err != nil {
		return false, err
	}

	l.saveRemote(ctx, types.KindFavorites, entry)
	return true, nil
}

// RemoveFavorite deletes a favorite by ID
func (l *Library) RemoveFavorite(ctx context.Context, id string) error {
	l.mu.Lock()
	favs := l.readLocked(ctx, types.KindFavorites)
	kept := make([]types.LibraryEntry, 0, len(favs))
	for _, e := range favs {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(favs) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	err := l.local.Write(ctx, types.KindFavorites, kept)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	l.deleteRemote(ctx, types.KindFavorites, id)
	return nil
}

// IsFavorite reports whether a tale with this title is a favorite
func (l *Library) IsFavorite(ctx context.Context, title string) bool {
	for _, e := range l.List(ctx, types.KindFavorites) {
		if e.Title == title {
			return true
		}
	}
	return false
}

// Load finds an entry locally, then on the server
func (l *Library) Load(ctx context.Context, kind types.CollectionKind, id string) (*types.LibraryEntry, error) {
	for _, e := range l.List(ctx, kind) {
		if e.ID == id {
			return &e, nil
		}
	}
	if l.remote == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	entry, err := l.remote.Load(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load tale %s: %w", id, err)
	}
	return entry, nil
}

// Clear wipes both local collections and asks the server to do the same
func (l *Library) Clear(ctx context.Context) error {
	l.mu.Lock()
	var errs []error
	for _, kind := range []types.CollectionKind{types.KindHistory, types.KindFavorites} {
		if err := l.local.Write(ctx, kind, nil); err != nil {
			errs = append(errs, err)
		}
	}
	l.mu.Unlock()

	if l.remote != nil {
		if err := l.remote.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear remote tales: %w", err))
		}
	}
	return errors.Join(errs...)
}

// readLocked returns the local collection, treating read failures as empty
func (l *Library) readLocked(ctx context.Context, kind types.CollectionKind) []types.LibraryEntry {
	entries, err := l.local.Read(ctx, kind)
	if err != nil {
		l.logger.Warn("failed to read local collection", "kind", kind, "error", err)
		return nil
	}
	return entries
}

func (l *Library) stamp(entry types.LibraryEntry, kind types.CollectionKind) types.LibraryEntry {
	now := l.now()
	if entry.ID == "" {
		entry.ID = strconv.FormatInt(now.UnixMilli(), 10)
	}
	if entry.Date.IsZero() {
		entry.Date = now
	}
	entry.Type = kind
	return entry
}

func (l *Library) saveRemote(ctx context.Context, kind types.CollectionKind, entry types.LibraryEntry) {
	if l.remote == nil {
		return
	}
	if err := l.remote.Save(ctx, kind, entry); err != nil {
		l.logger.Warn("failed to save tale remotely", "kind", kind, "id", entry.ID, "error", err)
	}
}

func (l *Library) deleteRemote(ctx context.Context, kind types.CollectionKind, id string) {
	if l.remote == nil || id == "" {
		return
	}
	if err := l.remote.Delete(ctx, kind, id); err != nil {
		l.logger.Warn("failed to delete tale remotely", "kind", kind, "id", id, "error", err)
	}
}
