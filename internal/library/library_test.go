package library

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unalkalkan/TaleWeaver/internal/storage"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

type fakeRemote struct {
	mu      sync.Mutex
	entries map[types.CollectionKind][]types.LibraryEntry
	saved   []string
	deleted []string
	cleared bool
	listErr error
	saveErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{entries: map[types.CollectionKind][]types.LibraryEntry{}}
}

func (f *fakeRemote) Save(_ context.Context, kind types.CollectionKind, e types.LibraryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, e.ID)
	f.entries[kind] = append(f.entries[kind], e)
	return nil
}

func (f *fakeRemote) List(_ context.Context, kind types.CollectionKind) ([]types.LibraryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]types.LibraryEntry(nil), f.entries[kind]...), nil
}

func (f *fakeRemote) Load(_ context.Context, kind types.CollectionKind, id string) (*types.LibraryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries[kind] {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRemote) Delete(_ context.Context, _ types.CollectionKind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRemote) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	f.entries = map[types.CollectionKind][]types.LibraryEntry{}
	return nil
}

func newTestLibrary(t *testing.T, remote Remote) (*Library, *LocalStore) {
	t.Helper()
	adapter, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}
	local := NewLocalStore(adapter)
	lib := New(local, remote, 5, nil, nil)

	tick := base
	lib.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return lib, local
}

func TestRefreshScenario(t *testing.T) {
	remote := newFakeRemote()
	lib, local := newTestLibrary(t, remote)
	ctx := context.Background()

	local.Write(ctx, types.KindHistory, []types.LibraryEntry{
		entry("l1", "L1", 1),
		entry("l2", "L2", 3),
		entry("l3", "L3", 5),
		entry("l4", "L4", 7),
		entry("l5", "L5", 9),
	})
	remote.entries[types.KindHistory] = []types.LibraryEntry{
		entry("r1", "R1", 2),
		entry("r2", "R2", 4),
		entry("r3", "R3", 10),
	}

	merged, err := lib.Refresh(ctx, types.KindHistory)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(merged) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(merged))
	}

	stored := lib.List(ctx, types.KindHistory)
	want := []string{"l1", "r1", "l2", "r2", "l3"}
	for i, id := range want {
		if stored[i].ID != id {
			t.Errorf("Stored entry %d = %s, want %s", i, stored[i].ID, id)
		}
	}
}

func TestRefreshRemoteFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.listErr = errors.New("connection refused")
	lib, local := newTestLibrary(t, remote)
	ctx := context.Background()

	local.Write(ctx, types.KindFavorites, []types.LibraryEntry{entry("l1", "L1", 1)})

	merged, err := lib.Refresh(ctx, types.KindFavorites)
	if err != nil {
		t.Fatalf("Refresh should tolerate remote failure: %v", err)
	}
	if len(merged) != 1 || merged[0].ID != "l1" {
		t.Errorf("Expected local entries to survive, got %v", ids(merged))
	}

	if _, err := lib.Refresh(ctx, "drafts"); err == nil {
		t.Error("Expected error for unknown collection")
	}
}

func TestAddToHistory(t *testing.T) {
	remote := newFakeRemote()
	lib, _ := newTestLibrary(t, remote)
	ctx := context.Background()

	for _, title := range []string{"One", "Two", "Three", "Four", "Five", "Six"} {
		if _, err := lib.AddToHistory(ctx, types.LibraryEntry{Title: title}); err != nil {
			t.Fatalf("AddToHistory(%s) failed: %v", title, err)
		}
	}

	got := lib.List(ctx, types.KindHistory)
	if len(got) != 5 {
		t.Fatalf("Expected history capped at 5, got %d", len(got))
	}
	if got[0].Title != "Six" || got[4].Title != "Two" {
		t.Errorf("Expected newest first, got %s..%s", got[0].Title, got[4].Title)
	}

	again, err := lib.AddToHistory(ctx, types.LibraryEntry{Title: "Four", Text: "retold"})
	if err != nil {
		t.Fatalf("AddToHistory failed: %v", err)
	}
	got = lib.List(ctx, types.KindHistory)
	count := 0
	for _, e := range got {
		if e.Title == "Four" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Same-title entry should be replaced, found %d", count)
	}
	if got[0].ID != again.ID || got[0].Text != "retold" {
		t.Errorf("Replacement should be first, got %+v", got[0])
	}
	if got[0].Type != types.KindHistory {
		t.Errorf("Expected history type, got %q", got[0].Type)
	}

	if len(remote.saved) != 7 {
		t.Errorf("Expected 7 remote saves, got %d", len(remote.saved))
	}
}

func TestAddToHistoryRemoteFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.saveErr = errors.New("store down")
	lib, _ := newTestLibrary(t, remote)
	ctx := context.Background()

	if _, err := lib.AddToHistory(ctx, types.LibraryEntry{Title: "Offline"}); err != nil {
		t.Fatalf("Remote save failure should not fail the insert: %v", err)
	}
	if len(lib.List(ctx, types.KindHistory)) != 1 {
		t.Error("Entry should be stored locally")
	}
}

func TestToggleFavorite(t *testing.T) {
	remote := newFakeRemote()
	lib, _ := newTestLibrary(t, remote)
	ctx := context.Background()

	added, err := lib.ToggleFavorite(ctx, types.LibraryEntry{Title: "Moon"})
	if err != nil || !added {
		t.Fatalf("Expected add, got %v %v", added, err)
	}
	if !lib.IsFavorite(ctx, "Moon") {
		t.Error("Moon should be a favorite")
	}
	fav := lib.List(ctx, types.KindFavorites)[0]
	if !fav.IsFavorite || fav.Type != types.KindFavorites {
		t.Errorf("Favorite not stamped: %+v", fav)
	}

	added, err = lib.ToggleFavorite(ctx, types.LibraryEntry{Title: "Moon"})
	if err != nil || added {
		t.Fatalf("Expected removal, got %v %v", added, err)
	}
	if lib.IsFavorite(ctx, "Moon") {
		t.Error("Moon should no longer be a favorite")
	}
	if len(remote.deleted) != 1 || remote.deleted[0] != fav.ID {
		t.Errorf("Expected remote delete of %s, got %v", fav.ID, remote.deleted)
	}
}

func TestFavoritesFull(t *testing.T) {
	lib, _ := newTestLibrary(t, nil)
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C", "D", "E"} {
		if _, err := lib.ToggleFavorite(ctx, types.LibraryEntry{Title: title}); err != nil {
			t.Fatalf("ToggleFavorite(%s) failed: %v", title, err)
		}
	}

	_, err := lib.ToggleFavorite(ctx, types.LibraryEntry{Title: "F"})
	if !errors.Is(err, ErrFavoritesFull) {
		t.Fatalf("Expected ErrFavoritesFull, got %v", err)
	}
	if len(lib.List(ctx, types.KindFavorites)) != 5 {
		t.Error("Favorites should be unchanged")
	}

	// removing an existing favorite still works when full
	added, err := lib.ToggleFavorite(ctx, types.LibraryEntry{Title: "C"})
	if err != nil || added {
		t.Errorf("Expected removal when full, got %v %v", added, err)
	}
}

func TestRemoveFavorite(t *testing.T) {
	remote := newFakeRemote()
	lib, _ := newTestLibrary(t, remote)
	ctx := context.Background()

	lib.ToggleFavorite(ctx, types.LibraryEntry{ID: "f1", Title: "Sun"})

	if err := lib.RemoveFavorite(ctx, "f1"); err != nil {
		t.Fatalf("RemoveFavorite failed: %v", err)
	}
	if lib.IsFavorite(ctx, "Sun") {
		t.Error("Sun should be removed")
	}
	if err := lib.RemoveFavorite(ctx, "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	remote := newFakeRemote()
	lib, _ := newTestLibrary(t, remote)
	ctx := context.Background()

	saved, _ := lib.AddToHistory(ctx, types.LibraryEntry{Title: "Local"})
	remote.entries[types.KindHistory] = append(remote.entries[types.KindHistory], entry("srv", "Server", 1))

	got, err := lib.Load(ctx, types.KindHistory, saved.ID)
	if err != nil || got.Title != "Local" {
		t.Errorf("Expected local entry, got %+v %v", got, err)
	}

	got, err = lib.Load(ctx, types.KindHistory, "srv")
	if err != nil || got.Title != "Server" {
		t.Errorf("Expected remote fallback, got %+v %v", got, err)
	}

	if _, err := lib.Load(ctx, types.KindHistory, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestClear(t *testing.T) {
	remote := newFakeRemote()
	lib, _ := newTestLibrary(t, remote)
	ctx := context.Background()

	lib.AddToHistory(ctx, types.LibraryEntry{Title: "H"})
	lib.ToggleFavorite(ctx, types.LibraryEntry{Title: "F"})

	if err := lib.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if len(lib.List(ctx, types.KindHistory)) != 0 || len(lib.List(ctx, types.KindFavorites)) != 0 {
		t.Error("Local collections should be empty")
	}
	if !remote.cleared {
		t.Error("Remote clear should be issued")
	}
}

func TestCorruptSnapshotTreatedAsEmpty(t *testing.T) {
	adapter, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}
	ctx := context.Background()
	adapter.Put(ctx, "library/history.json", strings.NewReader("{not json"))

	lib := New(NewLocalStore(adapter), nil, 5, nil, nil)
	if got := lib.List(ctx, types.KindHistory); len(got) != 0 {
		t.Errorf("Expected empty list, got %d entries", len(got))
	}
	if _, err := lib.AddToHistory(ctx, types.LibraryEntry{Title: "Fresh"}); err != nil {
		t.Errorf("AddToHistory should overwrite a corrupt snapshot: %v", err)
	}
}
