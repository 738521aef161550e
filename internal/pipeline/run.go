package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/unalkalkan/TaleWeaver/internal/util"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// Hooks receives run progress. Callbacks run on pipeline goroutines without
// any run lock held, and are never invoked for a run that is no longer the
// orchestrator's current run.
type Hooks struct {
	OnStatus    func(phase types.Phase, status types.AssetStatus)
	OnPageImage func(index int, img types.ImageRef)
	OnPageAudio func(index int)
	OnReady     func(run *Run, degraded bool)
	OnComplete  func(run *Run)
}

// Status is a point-in-time view of a run
type Status struct {
	RunID        string
	Title        string
	Phases       map[types.Phase]types.AssetStatus
	PagesTotal   int
	ImagesLoaded int
	ClipsReady   int
	Ready        bool
	Degraded     bool
	Complete     bool
	UpdatedAt    time.Time
}

// Run is one generation request from text to the last asset
type Run struct {
	id     string
	orch   *Orchestrator
	hooks  Hooks
	ctx    context.Context
	cancel context.CancelFunc
	clips  *cache.Cache

	mu        sync.Mutex
	tale      *types.Tale
	statuses  map[types.Phase]types.AssetStatus
	armed     bool // completion gate, set once text succeeded
	ready     bool
	degraded  bool
	complete  bool
	updatedAt time.Time

	done       chan struct{}
	doneOnce   sync.Once
	readyCh    chan struct{}
	readyOnce  sync.Once
	readyTimer *time.Timer
	endOnce    sync.Once
	workers    sync.WaitGroup
}

func newRun(ctx context.Context, id string, o *Orchestrator, hooks Hooks) *Run {
	runCtx, cancel := context.WithCancel(ctx)
	statuses := make(map[types.Phase]types.AssetStatus, 3)
	for _, p := range types.Phases() {
		statuses[p] = types.StatusPending
	}
	return &Run{
		id:        id,
		orch:      o,
		hooks:     hooks,
		ctx:       runCtx,
		cancel:    cancel,
		clips:     cache.New(o.config.AudioCacheTTL, 2*o.config.AudioCacheTTL),
		statuses:  statuses,
		updatedAt: time.Now(),
		done:      make(chan struct{}),
		readyCh:   make(chan struct{}),
	}
}

// ID returns the run token
func (r *Run) ID() string {
	return r.id
}

// Context is cancelled when the run is superseded or cancelled
func (r *Run) Context() context.Context {
	return r.ctx
}

// Title returns the tale title, empty before text succeeded
func (r *Run) Title() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tale == nil {
		return ""
	}
	return r.tale.Title
}

// Tale returns a deep copy of the tale with its current page images
func (r *Run) Tale() *types.Tale {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tale == nil {
		return nil
	}
	t := *r.tale
	t.Pages = make([]*types.Page, len(r.tale.Pages))
	for i, p := range r.tale.Pages {
		cp := *p
		t.Pages[i] = &cp
	}
	return &t
}

// Pages returns a snapshot of the pages
func (r *Run) Pages() []types.Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tale == nil {
		return nil
	}
	pages := make([]types.Page, len(r.tale.Pages))
	for i, p := range r.tale.Pages {
		pages[i] = *p
	}
	return pages
}

// Page returns a snapshot of one page
func (r *Run) Page(index int) (types.Page, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tale == nil || index < 0 || index >= len(r.tale.Pages) {
		return types.Page{}, false
	}
	return *r.tale.Pages[index], true
}

// PageCount returns the number of pages
func (r *Run) PageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tale == nil {
		return 0
	}
	return len(r.tale.Pages)
}

// Phase returns the status of one phase
func (r *Run) Phase(phase types.Phase) types.AssetStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[phase]
}

// Status returns a snapshot of the run progress
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		RunID:     r.id,
		Phases:    make(map[types.Phase]types.AssetStatus, len(r.statuses)),
		Ready:     r.ready,
		Degraded:  r.degraded,
		Complete:  r.complete,
		UpdatedAt: r.updatedAt,
	}
	for k, v := range r.statuses {
		st.Phases[k] = v
	}
	if r.tale != nil {
		st.Title = r.tale.Title
		st.PagesTotal = len(r.tale.Pages)
		for _, p := range r.tale.Pages {
			if p.Image.Loaded {
				st.ImagesLoaded++
			}
		}
	}
	st.ClipsReady = r.clips.ItemCount()
	return st
}

// Clip returns the cached narration of a page
func (r *Run) Clip(index int) ([]byte, bool) {
	v, ok := r.clips.Get(util.AudioKey(index))
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Clips returns every cached clip keyed by page index
func (r *Run) Clips() map[int][]byte {
	out := make(map[int][]byte)
	n := r.PageCount()
	for i := 0; i < n; i++ {
		if clip, ok := r.Clip(i); ok {
			out[i] = clip
		}
	}
	return out
}

// Audio returns the clip of a page from the cache, or narrates the page
// with a single request and caches the result.
func (r *Run) Audio(ctx context.Context, index int) ([]byte, error) {
	if clip, ok := r.Clip(index); ok {
		return clip, nil
	}
	page, ok := r.Page(index)
	if !ok {
		return nil, ErrPageOutOfRange
	}
	clip, err := r.orch.fetchAudio(ctx, index, page.Text)
	if err != nil {
		return nil, err
	}
	r.clips.Set(util.AudioKey(index), clip, cache.DefaultExpiration)
	return clip, nil
}

// Done is closed when all three phases reached a terminal status
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Ready is closed on completion or when the failsafe timer expires
func (r *Run) Ready() <-chan struct{} {
	return r.readyCh
}

// Degraded reports whether the run was forced ready before its assets resolved
func (r *Run) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

// Cancel stops outstanding work; pending results are discarded
func (r *Run) Cancel() {
	r.orch.release(r)
}

// Wait blocks until the run's background workers have returned
func (r *Run) Wait() {
	r.workers.Wait()
}

func (r *Run) current() bool {
	return r.orch.isCurrent(r)
}

func (r *Run) setStatus(phase types.Phase, status types.AssetStatus) {
	if !r.current() {
		return
	}

	r.mu.Lock()
	if r.statuses[phase] == status {
		r.mu.Unlock()
		return
	}
	r.statuses[phase] = status
	r.updatedAt = time.Now()
	finished := r.armed && r.allTerminal()
	r.mu.Unlock()

	if r.hooks.OnStatus != nil {
		r.hooks.OnStatus(phase, status)
	}
	if finished {
		r.finish()
	}
}

// allTerminal must be called with r.mu held
func (r *Run) allTerminal() bool {
	for _, s := range r.statuses {
		if !s.Terminal() {
			return false
		}
	}
	return true
}

func (r *Run) setPageImage(index int, img types.ImageRef) {
	if !r.current() {
		return
	}

	r.mu.Lock()
	r.tale.Pages[index].Image = img
	r.updatedAt = time.Now()
	r.mu.Unlock()

	if r.hooks.OnPageImage != nil {
		r.hooks.OnPageImage(index, img)
	}
}

func (r *Run) storeClip(index int, clip []byte) {
	if !r.current() {
		return
	}
	r.clips.Set(util.AudioKey(index), clip, cache.DefaultExpiration)
	if r.hooks.OnPageAudio != nil {
		r.hooks.OnPageAudio(index)
	}
}

// arm opens the completion gate and starts the ready failsafe
func (r *Run) arm(tale *types.Tale, readyTimeout time.Duration) {
	r.mu.Lock()
	r.tale = tale
	r.armed = true
	r.readyTimer = time.AfterFunc(readyTimeout, func() { r.markReady(true) })
	r.mu.Unlock()
}

func (r *Run) markReady(degraded bool) {
	if !r.current() {
		return
	}
	r.readyOnce.Do(func() {
		r.mu.Lock()
		r.ready = true
		r.degraded = degraded
		r.mu.Unlock()
		close(r.readyCh)

		if degraded {
			r.orch.logger.Warn("run forced ready before assets resolved", "run", r.id)
			if r.orch.metrics != nil {
				r.orch.metrics.ReadyFailsafes.Add(r.ctx, 1)
			}
		}
		if r.hooks.OnReady != nil {
			r.hooks.OnReady(r, degraded)
		}
	})
}

// finish fires completion exactly once
func (r *Run) finish() {
	r.doneOnce.Do(func() {
		r.mu.Lock()
		r.complete = true
		if r.readyTimer != nil {
			r.readyTimer.Stop()
		}
		outcome := "complete"
		for _, s := range r.statuses {
			if s == types.StatusError {
				outcome = "degraded"
			}
		}
		r.mu.Unlock()

		r.markReady(false)
		close(r.done)
		r.end(outcome)

		if r.hooks.OnComplete != nil {
			r.hooks.OnComplete(r)
		}
	})
}

// end records the outcome once and drops the run from the active gauge
func (r *Run) end(outcome string) {
	r.endOnce.Do(func() {
		r.orch.logger.Info("run finished", "run", r.id, "outcome", outcome)
		if r.orch.metrics == nil {
			return
		}
		r.orch.metrics.RecordRun(context.Background(), outcome)
		r.mu.Lock()
		armed := r.armed
		r.mu.Unlock()
		if armed {
			r.orch.metrics.ActiveRuns.Add(context.Background(), -1)
		}
	})
}

// supersede cancels the run after it stopped being current
func (r *Run) supersede() {
	r.cancel()
	r.mu.Lock()
	if r.readyTimer != nil {
		r.readyTimer.Stop()
	}
	r.mu.Unlock()
	r.end("superseded")
}
