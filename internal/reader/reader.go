package reader

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/unalkalkan/TaleWeaver/internal/audio"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

var (
	// ErrNoPage is returned for page indexes outside the tale
	ErrNoPage = errors.New("page not found")
	// ErrNoAudio is returned when a page has no clip and none can be fetched
	ErrNoAudio = errors.New("no audio available")
)

// PageView is what gets rendered for the current page
type PageView struct {
	Index   int
	Total   int
	Text    string
	Image   types.ImageRef
	HasPrev bool
	HasNext bool
}

// Reader ties page navigation to a single audio session. Each move stops
// playback, renders the target page and prepares (without playing) its
// narration. Late audio results are applied only if no move happened
// since they were requested.
type Reader struct {
	source      Source
	session     *audio.Session
	placeholder string
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc

	mu       sync.Mutex
	nav      *Navigator
	seq      uint64
	closed   bool
	onRender func(PageView)
	onAudio  func(index int, err error)
	fetches  sync.WaitGroup
}

// New creates a reader positioned on page 0. Call Show to render it.
func New(ctx context.Context, source Source, session *audio.Session, placeholder string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	rctx, cancel := context.WithCancel(ctx)
	return &Reader{
		source:      source,
		session:     session,
		placeholder: placeholder,
		logger:      logger.With("component", "reader"),
		ctx:         rctx,
		cancel:      cancel,
		nav:         NewNavigator(source.PageCount()),
	}
}

// OnRender sets the callback that draws a page
func (r *Reader) OnRender(fn func(PageView)) {
	r.mu.Lock()
	r.onRender = fn
	r.mu.Unlock()
}

// OnAudio sets the callback told when a page's narration is prepared or
// failed. It runs with the reader locked and must not call back into it.
func (r *Reader) OnAudio(fn func(index int, err error)) {
	r.mu.Lock()
	r.onAudio = fn
	r.mu.Unlock()
}

// Show renders the current page and prepares its audio
func (r *Reader) Show() {
	r.mu.Lock()
	r.session.Stop()
	r.seq++
	seq, index := r.seq, r.nav.Current()
	r.mu.Unlock()

	r.render(index)
	r.prepareAudio(index, seq)
}

// Next moves to the following page
func (r *Reader) Next() bool {
	return r.move(func(n *Navigator) bool { return n.Next() })
}

// Prev moves to the previous page
func (r *Reader) Prev() bool {
	return r.move(func(n *Navigator) bool { return n.Prev() })
}

// Goto moves to page i (0-based)
func (r *Reader) Goto(i int) bool {
	return r.move(func(n *Navigator) bool { return n.Goto(i) })
}

func (r *Reader) move(step func(*Navigator) bool) bool {
	r.mu.Lock()
	if !step(r.nav) {
		r.mu.Unlock()
		return false
	}
	r.seq++
	seq, index := r.seq, r.nav.Current()
	r.session.Stop()
	r.mu.Unlock()

	r.render(index)
	r.prepareAudio(index, seq)
	return true
}

// Current returns the view of the displayed page
func (r *Reader) Current() PageView {
	r.mu.Lock()
	index := r.nav.Current()
	r.mu.Unlock()
	return r.view(index)
}

// PageImageResolved re-renders if the resolved page is on screen
func (r *Reader) PageImageResolved(index int) {
	r.mu.Lock()
	current, closed := r.nav.Current(), r.closed
	r.mu.Unlock()
	if !closed && index == current {
		r.render(index)
	}
}

// PageAudioResolved prepares a freshly cached clip if its page is on screen
// and nothing is loaded yet
func (r *Reader) PageAudioResolved(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || index != r.nav.Current() || r.session.HasClip() {
		return
	}
	if clip, ok := r.source.Clip(index); ok {
		r.applyClipLocked(index, clip)
	}
}

// EnsureAudio prepares the current page's narration if none is loaded
func (r *Reader) EnsureAudio() {
	r.mu.Lock()
	if r.closed || r.session.HasClip() {
		r.mu.Unlock()
		return
	}
	seq, index := r.seq, r.nav.Current()
	r.mu.Unlock()
	r.prepareAudio(index, seq)
}

// Session returns the audio session driven by this reader
func (r *Reader) Session() *audio.Session {
	return r.session
}

// Close stops playback and abandons pending audio fetches. Late results
// for a closed reader are ignored.
func (r *Reader) Close() {
	r.cancel()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.seq++
	r.session.Stop()
	r.mu.Unlock()
	r.fetches.Wait()
}

func (r *Reader) view(index int) PageView {
	page, _ := r.source.Page(index)
	img := page.Image
	if !img.Loaded || img.URL == "" {
		img.URL = r.placeholder
	}
	total := r.source.PageCount()
	return PageView{
		Index:   index,
		Total:   total,
		Text:    page.Text,
		Image:   img,
		HasPrev: index > 0,
		HasNext: index < total-1,
	}
}

func (r *Reader) render(index int) {
	r.mu.Lock()
	fn := r.onRender
	r.mu.Unlock()
	if fn != nil {
		fn(r.view(index))
	}
}

// prepareAudio loads a cached clip at once, otherwise fetches in the
// background and applies the result only if seq is still current.
func (r *Reader) prepareAudio(index int, seq uint64) {
	if clip, ok := r.source.Clip(index); ok {
		r.mu.Lock()
		if r.seq == seq {
			r.applyClipLocked(index, clip)
		}
		r.mu.Unlock()
		return
	}

	r.fetches.Add(1)
	go func() {
		defer r.fetches.Done()

		clip, err := r.source.Audio(r.ctx, index)

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.seq != seq {
			r.logger.Debug("dropping stale audio", "page", index)
			return
		}
		// the pipeline may have delivered this page's clip while we waited
		if err == nil && r.session.HasClip() {
			return
		}
		if err != nil {
			r.logger.Warn("page audio unavailable", "page", index, "error", err)
			if r.onAudio != nil {
				r.onAudio(index, err)
			}
			return
		}
		r.applyClipLocked(index, clip)
	}()
}

// applyClipLocked must be called with r.mu held
func (r *Reader) applyClipLocked(index int, clip []byte) {
	err := r.session.Prepare(clip)
	if err != nil {
		r.logger.Warn("failed to prepare audio", "page", index, "error", err)
	}
	if r.onAudio != nil {
		r.onAudio(index, err)
	}
}
