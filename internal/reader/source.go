package reader

import (
	"context"
	"sync"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// Source supplies the pages and narration of the tale being read.
// pipeline.Run satisfies it for freshly generated tales.
type Source interface {
	PageCount() int
	Page(index int) (types.Page, bool)
	Clip(index int) ([]byte, bool)
	Audio(ctx context.Context, index int) ([]byte, error)
}

// AudioFetcher narrates a single page
type AudioFetcher func(ctx context.Context, index int, text string) ([]byte, error)

// StaticSource serves a tale reopened from the library. Clips fetched on
// demand are kept for the lifetime of the source.
type StaticSource struct {
	pages []types.Page
	fetch AudioFetcher

	mu    sync.RWMutex
	clips map[int][]byte
}

// NewStaticSource creates a source over fixed pages and any stored clips
func NewStaticSource(pages []*types.Page, clips map[int][]byte, fetch AudioFetcher) *StaticSource {
	s := &StaticSource{
		pages: make([]types.Page, len(pages)),
		fetch: fetch,
		clips: make(map[int][]byte, len(clips)),
	}
	for i, p := range pages {
		s.pages[i] = *p
	}
	for k, v := range clips {
		s.clips[k] = v
	}
	return s
}

func (s *StaticSource) PageCount() int {
	return len(s.pages)
}

func (s *StaticSource) Page(index int) (types.Page, bool) {
	if index < 0 || index >= len(s.pages) {
		return types.Page{}, false
	}
	return s.pages[index], true
}

func (s *StaticSource) Clip(index int) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clip, ok := s.clips[index]
	return clip, ok
}

// Audio returns the stored clip or fetches and keeps a new one
func (s *StaticSource) Audio(ctx context.Context, index int) ([]byte, error) {
	if clip, ok := s.Clip(index); ok {
		return clip, nil
	}
	page, ok := s.Page(index)
	if !ok {
		return nil, ErrNoPage
	}
	if s.fetch == nil {
		return nil, ErrNoAudio
	}
	clip, err := s.fetch(ctx, index, page.Text)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.clips[index] = clip
	s.mu.Unlock()
	return clip, nil
}

// Clips returns a copy of the known clips keyed by page index
func (s *StaticSource) Clips() map[int][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int][]byte, len(s.clips))
	for k, v := range s.clips {
		out[k] = v
	}
	return out
}
