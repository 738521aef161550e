package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/unalkalkan/TaleWeaver/internal/observe"
	"github.com/unalkalkan/TaleWeaver/internal/provider"
	"github.com/unalkalkan/TaleWeaver/internal/segmentation"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyTale is returned when the generated text has no words
	ErrEmptyTale = errors.New("generated tale has no pages")
	// ErrSuperseded is returned when a newer run replaced this one mid-flight
	ErrSuperseded = errors.New("run superseded by a newer request")
	// ErrPageOutOfRange is returned for page indexes outside the tale
	ErrPageOutOfRange = errors.New("page index out of range")
)

// Config holds the pipeline timing and concurrency knobs
type Config struct {
	ImageInterval       time.Duration
	MaxConcurrentImages int
	ImageRetries        int
	ImageRetryBackoff   time.Duration
	AudioConcurrency    int // 0 = unbounded
	ReadyTimeout        time.Duration
	AudioCacheTTL       time.Duration
	PlaceholderImage    string
}

// ConfigFrom converts the validated file configuration
func ConfigFrom(p types.PipelineConfig) Config {
	return Config{
		ImageInterval:       time.Duration(p.ImageIntervalMs) * time.Millisecond,
		MaxConcurrentImages: p.MaxConcurrentImages,
		ImageRetries:        p.ImageRetries,
		ImageRetryBackoff:   time.Duration(p.ImageRetryBackoffMs) * time.Millisecond,
		AudioConcurrency:    p.AudioConcurrency,
		ReadyTimeout:        time.Duration(p.ReadyTimeoutSeconds) * time.Second,
		AudioCacheTTL:       time.Duration(p.AudioCacheTTLMinutes) * time.Minute,
		PlaceholderImage:    p.PlaceholderImage,
	}
}

// Orchestrator drives generation runs. At most one run is current; starting
// a new one supersedes the previous run and discards its late results.
type Orchestrator struct {
	config    Config
	generator provider.Generator
	segmenter *segmentation.Service
	metrics   *observe.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	current *Run
}

// NewOrchestrator creates a new pipeline orchestrator. metrics may be nil.
func NewOrchestrator(
	config Config,
	generator provider.Generator,
	segmenter *segmentation.Service,
	metrics *observe.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:    config,
		generator: generator,
		segmenter: segmenter,
		metrics:   metrics,
		logger:    logger.With("component", "pipeline"),
	}
}

// Current returns the current run, or nil
func (o *Orchestrator) Current() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Start runs the text phase synchronously and, on success, launches the
// image and audio phases in the background. A text failure marks all three
// phases as error and no completion is signalled.
func (o *Orchestrator) Start(ctx context.Context, req types.GenerateRequest, hooks Hooks) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r := newRun(ctx, uuid.NewString(), o, hooks)

	o.mu.Lock()
	prev := o.current
	o.current = r
	o.mu.Unlock()
	if prev != nil {
		prev.supersede()
	}

	o.logger.Info("starting run", "run", r.id, "character", req.CharacterName, "theme", req.Theme)
	r.setStatus(types.PhaseText, types.StatusLoading)

	start := time.Now()
	resp, err := o.generator.GenerateTale(r.ctx, req)
	o.recordAsset(r.ctx, types.PhaseText, err, time.Since(start))
	if err == nil && !r.current() {
		err = ErrSuperseded
	}
	if err != nil {
		o.failText(r, err)
		return nil, fmt.Errorf("failed to generate tale: %w", err)
	}

	pages := o.segmenter.Paginate(resp.Title, resp.Text)
	if len(pages) == 0 {
		o.failText(r, ErrEmptyTale)
		return nil, ErrEmptyTale
	}
	pages[0].Image = types.ImageRef{
		URL:    resp.ImageURL,
		Alt:    pages[0].Image.Alt,
		Loaded: true,
	}

	tale := &types.Tale{
		ID:        r.id,
		Title:     resp.Title,
		FullText:  resp.Text,
		Pages:     pages,
		CreatedAt: time.Now(),
		Request:   req,
	}
	r.arm(tale, o.config.ReadyTimeout)
	if o.metrics != nil {
		o.metrics.ActiveRuns.Add(r.ctx, 1)
	}

	r.setStatus(types.PhaseText, types.StatusComplete)
	if r.hooks.OnPageImage != nil && r.current() {
		r.hooks.OnPageImage(0, pages[0].Image)
	}
	r.setStatus(types.PhaseImage, types.StatusLoading)
	r.setStatus(types.PhaseAudio, types.StatusLoading)

	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}

	r.workers.Add(2)
	go o.runImages(r, texts)
	go o.runAudio(r, texts)

	return r, nil
}

// Cancel supersedes the current run without starting a new one
func (o *Orchestrator) Cancel() {
	if r := o.Current(); r != nil {
		o.release(r)
	}
}

func (o *Orchestrator) release(r *Run) {
	o.mu.Lock()
	if o.current == r {
		o.current = nil
	}
	o.mu.Unlock()
	r.supersede()
}

func (o *Orchestrator) isCurrent(r *Run) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current == r
}

func (o *Orchestrator) failText(r *Run, err error) {
	o.logger.Error("text generation failed", "run", r.id, "error", err)
	for _, p := range types.Phases() {
		r.setStatus(p, types.StatusError)
	}
	r.end("failed")
	r.cancel()
}

// runImages issues pages 1..N-1 through the image queue. Page 0 already
// carries the illustration of the text response.
func (o *Orchestrator) runImages(r *Run, texts []string) {
	defer r.workers.Done()

	q := NewImageQueue(o.config.ImageInterval, o.config.MaxConcurrentImages)
	for i := 1; i < len(texts); i++ {
		err := q.Submit(r.ctx, func() { o.resolveImage(r, i, texts[i]) })
		if err != nil {
			r.setPageImage(i, o.placeholder(r, i))
		}
	}
	q.Wait()

	r.setStatus(types.PhaseImage, types.StatusComplete)
}

// resolveImage requests one page image with fixed-backoff retries. The page
// always ends loaded, on the placeholder when every attempt failed.
func (o *Orchestrator) resolveImage(r *Run, index int, text string) {
	req := provider.PageImageRequest{
		PageText:      text,
		CharacterName: r.tale.Request.CharacterName,
		CharacterType: r.tale.Request.CharacterType,
		Setting:       r.tale.Request.Setting,
		PageNumber:    index + 1,
		ImageAPI:      r.tale.Request.ImageAPI,
	}

	var url string
	var err error
attempts:
	for attempt := 0; attempt <= o.config.ImageRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(o.config.ImageRetryBackoff):
			case <-r.ctx.Done():
				break attempts
			}
		}

		start := time.Now()
		url, err = o.generator.GeneratePageImage(r.ctx, req)
		o.recordAsset(r.ctx, types.PhaseImage, err, time.Since(start))
		if err == nil {
			break
		}
		o.logger.Warn("page image failed", "run", r.id, "page", index, "attempt", attempt+1, "error", err)
		if r.ctx.Err() != nil {
			break
		}
	}

	if err != nil || url == "" {
		r.setPageImage(index, o.placeholder(r, index))
		return
	}
	r.setPageImage(index, types.ImageRef{
		URL:    url,
		Alt:    segmentation.PageAlt(r.tale.Title, index),
		Loaded: true,
	})
}

func (o *Orchestrator) placeholder(r *Run, index int) types.ImageRef {
	return types.ImageRef{
		URL:    o.config.PlaceholderImage,
		Alt:    segmentation.PageAlt(r.tale.Title, index),
		Loaded: true,
	}
}

// runAudio narrates every page concurrently. Per-page failures are logged
// and skipped; the phase errors only if no page succeeded.
func (o *Orchestrator) runAudio(r *Run, texts []string) {
	defer r.workers.Done()

	var g errgroup.Group
	if o.config.AudioConcurrency > 0 {
		g.SetLimit(o.config.AudioConcurrency)
	}

	var succeeded atomic.Int32
	for i, text := range texts {
		g.Go(func() error {
			if r.ctx.Err() != nil {
				return nil
			}
			clip, err := o.fetchAudio(r.ctx, i, text)
			if err != nil {
				o.logger.Warn("page audio failed", "run", r.id, "page", i, "error", err)
				return nil
			}
			succeeded.Add(1)
			r.storeClip(i, clip)
			return nil
		})
	}
	_ = g.Wait()

	status := types.StatusComplete
	if succeeded.Load() == 0 {
		status = types.StatusError
	}
	r.setStatus(types.PhaseAudio, status)
}

func (o *Orchestrator) fetchAudio(ctx context.Context, index int, text string) ([]byte, error) {
	start := time.Now()
	clip, err := o.generator.GenerateAudio(ctx, provider.AudioRequest{Text: text, Page: index})
	o.recordAsset(ctx, types.PhaseAudio, err, time.Since(start))
	return clip, err
}

func (o *Orchestrator) recordAsset(ctx context.Context, phase types.Phase, err error, d time.Duration) {
	if o.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordAsset(context.WithoutCancel(ctx), string(phase), status, d)
}
