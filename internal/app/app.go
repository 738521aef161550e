package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/unalkalkan/TaleWeaver/internal/audio"
	"github.com/unalkalkan/TaleWeaver/internal/library"
	"github.com/unalkalkan/TaleWeaver/internal/observe"
	"github.com/unalkalkan/TaleWeaver/internal/packaging"
	"github.com/unalkalkan/TaleWeaver/internal/pipeline"
	"github.com/unalkalkan/TaleWeaver/internal/provider"
	"github.com/unalkalkan/TaleWeaver/internal/reader"
	"github.com/unalkalkan/TaleWeaver/internal/segmentation"
	"github.com/unalkalkan/TaleWeaver/internal/storage"
	"github.com/unalkalkan/TaleWeaver/internal/util"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
	"golang.org/x/sync/errgroup"
)

// ErrNoTale is returned by tale actions when nothing is open
var ErrNoTale = errors.New("no tale is open")

// Options configures an App. Nil dependencies are built from Config.
type Options struct {
	Config    *types.Config
	Offline   bool // stub generator, no remote store
	Generator provider.Generator
	Remote    library.Remote
	Cache     storage.Adapter
	Player    audio.Player
	Metrics   *observe.Metrics
	Logger    *slog.Logger
}

// Events receives what the user should see. Callbacks run on background
// goroutines and must not block.
type Events struct {
	OnStatus   func(phase types.Phase, status types.AssetStatus)
	OnReady    func(degraded bool)
	OnComplete func(entry types.LibraryEntry)
	OnRender   func(view reader.PageView)
	OnAudio    func(index int, err error)
}

// App is the interactive tale client: it generates tales, reads them page
// by page with narration and keeps the history and favorites.
type App struct {
	config    *types.Config
	generator provider.Generator
	cache     storage.Adapter
	orch      *pipeline.Orchestrator
	segmenter *segmentation.Service
	library   *library.Library
	packager  *packaging.Service
	session   *audio.Session
	logger    *slog.Logger

	mu       sync.Mutex
	reader   *reader.Reader
	snapshot func() types.LibraryEntry
	stop     context.CancelFunc
}

// New wires an App from opts
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.Backend.TimeoutSeconds) * time.Second

	gen := opts.Generator
	if gen == nil {
		if opts.Offline {
			gen = provider.NewStubGenerator()
		} else {
			httpGen, err := provider.NewHTTPGenerator(cfg.Backend.BaseURL, timeout, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create generator: %w", err)
			}
			gen = httpGen
		}
	}

	remote := opts.Remote
	if remote == nil && !opts.Offline {
		remote = library.NewHTTPRemote(cfg.Backend.BaseURL, timeout)
	}

	cacheAdapter := opts.Cache
	if cacheAdapter == nil {
		var err error
		cacheAdapter, err = storage.NewAdapter(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache storage: %w", err)
		}
	}

	player := opts.Player
	if player == nil {
		player = audio.NewClockPlayer(cfg.Playback.BytesPerSecond)
	}

	segmenter := segmentation.NewService(cfg.Pipeline.PageSize, cfg.Pipeline.PlaceholderImage)
	return &App{
		config:    cfg,
		generator: gen,
		cache:     cacheAdapter,
		orch:      pipeline.NewOrchestrator(pipeline.ConfigFrom(cfg.Pipeline), gen, segmenter, opts.Metrics, logger),
		segmenter: segmenter,
		library:   library.New(library.NewLocalStore(cacheAdapter), remote, cfg.Library.MaxEntries, opts.Metrics, logger),
		packager:  packaging.NewService(cfg.Playback.BytesPerSecond),
		session: audio.NewSession(player,
			time.Duration(cfg.Playback.PollIntervalMs)*time.Millisecond,
			cfg.Playback.DefaultSpeed),
		logger: logger.With("component", "app"),
	}, nil
}

// Library returns the history and favorites manager
func (a *App) Library() *library.Library {
	return a.library
}

// Session returns the audio session shared by every opened tale
func (a *App) Session() *audio.Session {
	return a.session
}

// Reader returns the reader of the open tale, or nil
func (a *App) Reader() *reader.Reader {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reader
}

// Generate runs the text phase and opens the new tale on page 0 while its
// images and narration keep arriving. On completion the tale is added to
// the history and the history is reconciled with the server.
func (a *App) Generate(ctx context.Context, req types.GenerateRequest, ev Events) (*pipeline.Run, error) {
	if req.ImageAPI == "" {
		req.ImageAPI = a.config.Backend.ImageAPI
	}
	if req.TextAPI == "" {
		req.TextAPI = a.config.Backend.TextAPI
	}

	a.closeReader()

	hooks := pipeline.Hooks{
		OnStatus: ev.OnStatus,
		OnPageImage: func(index int, _ types.ImageRef) {
			if rdr := a.Reader(); rdr != nil {
				rdr.PageImageResolved(index)
			}
		},
		OnPageAudio: func(index int) {
			if rdr := a.Reader(); rdr != nil {
				rdr.PageAudioResolved(index)
			}
		},
		OnReady: func(_ *pipeline.Run, degraded bool) {
			if ev.OnReady != nil {
				ev.OnReady(degraded)
			}
		},
		OnComplete: func(r *pipeline.Run) {
			a.complete(r, ev)
		},
	}

	run, err := a.orch.Start(ctx, req, hooks)
	if err != nil {
		return nil, err
	}

	a.open(ctx, run, func() types.LibraryEntry { return EntryFromRun(run) }, ev)
	return run, nil
}

// complete stores a finished run and refreshes the history list
func (a *App) complete(run *pipeline.Run, ev Events) {
	ctx := context.WithoutCancel(run.Context())

	entry, err := a.library.AddToHistory(ctx, EntryFromRun(run))
	if err != nil {
		a.logger.Error("failed to add tale to history", "title", entry.Title, "error", err)
	}
	if _, err := a.library.Refresh(ctx, types.KindHistory); err != nil {
		a.logger.Warn("failed to refresh history", "error", err)
	}

	if rdr := a.Reader(); rdr != nil {
		rdr.EnsureAudio()
	}
	if ev.OnComplete != nil {
		ev.OnComplete(entry)
	}
}

// Open reopens a stored tale. Stored pages are used as they are; older
// entries are paginated again. Narration for the first pages is fetched
// in the background.
func (a *App) Open(ctx context.Context, kind types.CollectionKind, id string, ev Events) error {
	entry, err := a.library.Load(ctx, kind, id)
	if err != nil {
		return err
	}

	a.orch.Cancel()
	a.closeReader()

	pages := a.segmenter.PagesFromEntry(entry)
	if len(pages) == 0 {
		return fmt.Errorf("tale %s has no pages", id)
	}
	src := reader.NewStaticSource(pages, ClipsFromEntry(entry), a.fetchAudio)

	stored := *entry
	if len(stored.Pages) == 0 {
		stored.Pages = make([]types.EntryPage, len(pages))
		for i, p := range pages {
			stored.Pages[i] = types.EntryPage{Text: p.Text}
		}
		stored.Pages[0].Image = stored.Image
	}
	rdr, rctx := a.open(ctx, src, func() types.LibraryEntry {
		e := stored
		e.Audios = AudiosFromClips(src.Clips())
		return e
	}, ev)

	a.prefetch(rctx, rdr, src, min(a.config.Pipeline.PrefetchPages, len(pages)))
	return nil
}

// ToggleFavorite adds the open tale to favorites or removes it
func (a *App) ToggleFavorite(ctx context.Context) (bool, error) {
	entry, err := a.current()
	if err != nil {
		return false, err
	}
	entry.ID = ""
	entry.Date = time.Time{}
	return a.library.ToggleFavorite(ctx, entry)
}

// IsFavorite reports whether the open tale is a favorite
func (a *App) IsFavorite(ctx context.Context) bool {
	entry, err := a.current()
	if err != nil {
		return false
	}
	return a.library.IsFavorite(ctx, entry.Title)
}

// Export saves the open tale as a ZIP archive at path
func (a *App) Export(path string) error {
	entry, err := a.current()
	if err != nil {
		return err
	}
	if err := a.packager.ExportFile(&entry, path); err != nil {
		return fmt.Errorf("failed to export tale: %w", err)
	}
	return nil
}

// Close stops playback and pending work and releases the stores
func (a *App) Close() error {
	a.orch.Cancel()
	a.closeReader()

	var errs []error
	if err := a.session.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := a.generator.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) open(ctx context.Context, src reader.Source, snapshot func() types.LibraryEntry, ev Events) (*reader.Reader, context.Context) {
	rctx, stop := context.WithCancel(ctx)
	rdr := reader.New(rctx, src, a.session, a.config.Pipeline.PlaceholderImage, a.logger)
	if ev.OnRender != nil {
		rdr.OnRender(ev.OnRender)
	}
	if ev.OnAudio != nil {
		rdr.OnAudio(ev.OnAudio)
	}

	a.mu.Lock()
	a.reader = rdr
	a.snapshot = snapshot
	a.stop = stop
	a.mu.Unlock()

	rdr.Show()
	return rdr, rctx
}

func (a *App) closeReader() {
	a.mu.Lock()
	rdr, stop := a.reader, a.stop
	a.reader, a.snapshot, a.stop = nil, nil, nil
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	if rdr != nil {
		rdr.Close()
	}
}

func (a *App) current() (types.LibraryEntry, error) {
	a.mu.Lock()
	snapshot := a.snapshot
	a.mu.Unlock()
	if snapshot == nil {
		return types.LibraryEntry{}, ErrNoTale
	}
	return snapshot(), nil
}

// prefetch narrates the first n pages two at a time
func (a *App) prefetch(ctx context.Context, rdr *reader.Reader, src *reader.StaticSource, n int) {
	if n <= 0 {
		return
	}
	go func() {
		var g errgroup.Group
		g.SetLimit(2)
		for i := 0; i < n; i++ {
			if _, ok := src.Clip(i); ok {
				continue
			}
			g.Go(func() error {
				if _, err := src.Audio(ctx, i); err != nil {
					a.logger.Debug("prefetch failed", "page", i, "error", err)
					return nil
				}
				rdr.PageAudioResolved(i)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (a *App) fetchAudio(ctx context.Context, index int, text string) ([]byte, error) {
	return a.generator.GenerateAudio(ctx, provider.AudioRequest{Text: text, Page: index})
}

// EntryFromRun freezes a run into a library entry with its loaded images
// and cached clips
func EntryFromRun(run *pipeline.Run) types.LibraryEntry {
	tale := run.Tale()
	if tale == nil {
		return types.LibraryEntry{}
	}

	entry := types.LibraryEntry{
		Title:         tale.Title,
		Text:          tale.FullText,
		CharacterName: tale.Request.CharacterName,
		CharacterType: tale.Request.CharacterType,
		Setting:       tale.Request.Setting,
		Theme:         tale.Request.Theme,
		Date:          tale.CreatedAt,
		Pages:         make([]types.EntryPage, len(tale.Pages)),
		Audios:        AudiosFromClips(run.Clips()),
	}
	for i, p := range tale.Pages {
		if p.Image.Loaded {
			entry.Pages[i].Image = p.Image.URL
		}
		entry.Pages[i].Text = p.Text
	}
	if len(entry.Pages) > 0 {
		entry.Image = entry.Pages[0].Image
	}
	return entry
}

// ClipsFromEntry decodes the stored clips keyed by page index
func ClipsFromEntry(entry *types.LibraryEntry) map[int][]byte {
	clips := make(map[int][]byte, len(entry.Audios))
	for key, blob := range entry.Audios {
		i, err := strconv.Atoi(key)
		if err != nil || len(blob.Blob) == 0 {
			continue
		}
		clips[i] = blob.Blob
	}
	return clips
}

// AudiosFromClips is the inverse of ClipsFromEntry
func AudiosFromClips(clips map[int][]byte) map[string]types.AudioBlob {
	if len(clips) == 0 {
		return nil
	}
	audios := make(map[string]types.AudioBlob, len(clips))
	for i, clip := range clips {
		audios[util.AudioKey(i)] = types.AudioBlob{Blob: clip}
	}
	return audios
}
