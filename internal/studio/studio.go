package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"arch-render-studio/internal/prompt"
	"arch-render-studio/internal/render"
	"arch-render-studio/internal/storage"
)

type Options struct {
	Generator render.Generator
	Store     storage.Store
	Prompts   *prompt.Builder
	Logger    *slog.Logger

	HistoryLimit       int
	VariationCount     int
	CompressAboveBytes int
}

// Studio owns every session's state tree and is the only place state
// transitions happen. All workspaces share one mutex.
type Studio struct {
	gen     render.Generator
	store   storage.Store
	prompts *prompt.Builder
	logger  *slog.Logger

	historyLimit       int
	variationCount     int
	compressAboveBytes int

	mu          sync.Mutex
	workspaces  map[string]*Workspace
	subscribers map[string]map[chan Snapshot]struct{}
	messageSeq  int
}

func New(opts Options) (*Studio, error) {
	if opts.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}

	prompts := opts.Prompts
	if prompts == nil {
		prompts = prompt.NewBuilder(nil)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 50
	}
	variations := opts.VariationCount
	if variations <= 0 {
		variations = 3
	}

	return &Studio{
		gen:                opts.Generator,
		store:              opts.Store,
		prompts:            prompts,
		logger:             logger,
		historyLimit:       historyLimit,
		variationCount:     variations,
		compressAboveBytes: opts.CompressAboveBytes,
		workspaces:         make(map[string]*Workspace),
		subscribers:        make(map[string]map[chan Snapshot]struct{}),
	}, nil
}

func (s *Studio) Catalog() *prompt.Catalog {
	return s.prompts.Catalog()
}

func (s *Studio) Store() storage.Store {
	return s.store
}

func (s *Studio) Create(ctx context.Context) (Snapshot, error) {
	return s.Open(ctx, uuid.New().String())
}

// Open returns the live workspace, restoring a persisted one first. While
// the restore runs other callers observe the restoring-session view.
func (s *Studio) Open(ctx context.Context, id string) (Snapshot, error) {
	if id == "" {
		return Snapshot{}, fmt.Errorf("%w: empty session id", ErrInvalidAction)
	}

	s.mu.Lock()
	if w, ok := s.workspaces[id]; ok {
		snap := w.snapshot()
		s.mu.Unlock()
		return snap, nil
	}
	w := newWorkspace(id, s.historyLimit)
	w.Restoring = true
	s.workspaces[id] = w
	s.mu.Unlock()

	rec, err := s.store.LoadSession(ctx, id)

	s.mu.Lock()
	switch {
	case err == nil:
		if rerr := w.restore(rec.Data); rerr != nil {
			s.logger.Warn("session restore failed", "session", id, "err", rerr)
		}
	case !errors.Is(err, storage.ErrNotFound):
		s.logger.Warn("session load failed", "session", id, "err", err)
	}
	w.Restoring = false
	w.UpdatedAt = time.Now()
	snap := w.snapshot()
	s.mu.Unlock()

	s.notify(id, snap)
	return snap, nil
}

// ready opens the session and fails with ErrRestoring while another caller
// is still restoring it. Once restored a workspace never returns to that
// state.
func (s *Studio) ready(ctx context.Context, id string) (Snapshot, error) {
	snap, err := s.Open(ctx, id)
	if err != nil {
		return snap, err
	}
	if snap.View == ViewRestoring {
		return snap, ErrRestoring
	}
	return snap, nil
}

func (s *Studio) Snapshot(id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return w.snapshot(), nil
}

// Subscribe streams a snapshot after every transition. Slow readers miss
// intermediate snapshots rather than blocking the studio.
func (s *Studio) Subscribe(id string) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	subs, ok := s.subscribers[id]
	if !ok {
		subs = make(map[chan Snapshot]struct{})
		s.subscribers[id] = subs
	}
	subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers[id], ch)
			if len(s.subscribers[id]) == 0 {
				delete(s.subscribers, id)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Studio) notify(id string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers[id] {
		select {
		case ch <- snap:
		default:
		}
	}
}

// update runs fn against the workspace under the lock. fn must validate
// before it mutates; a returned error leaves the workspace as it was.
func (s *Studio) update(ctx context.Context, id string, fn func(w *Workspace) error) (Snapshot, error) {
	if _, err := s.Open(ctx, id); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	w, ok := s.workspaces[id]
	if !ok {
		s.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	if w.Restoring {
		snap := w.snapshot()
		s.mu.Unlock()
		return snap, ErrRestoring
	}
	if err := fn(w); err != nil {
		snap := w.snapshot()
		s.mu.Unlock()
		return snap, err
	}
	w.UpdatedAt = time.Now()
	snap := w.snapshot()
	data, merr := w.marshalPersisted()
	s.mu.Unlock()

	s.notify(id, snap)

	if merr != nil {
		s.logger.Error("session marshal failed", "session", id, "err", merr)
		return snap, nil
	}
	if err := s.store.SaveSession(context.WithoutCancel(ctx), storage.SessionRecord{ID: id, Data: data, UpdatedAt: snap.UpdatedAt}); err != nil {
		s.logger.Error("session persist failed", "session", id, "err", err)
	}
	return snap, nil
}

func (s *Studio) nextLoadingMessage() string {
	msgs := s.prompts.Catalog().LoadingMessages
	if len(msgs) == 0 {
		return "Rendering..."
	}
	msg := msgs[s.messageSeq%len(msgs)]
	s.messageSeq++
	return msg
}

func (s *Studio) Image(ctx context.Context, id string) (storage.Image, error) {
	return s.store.GetImage(ctx, id)
}

func (s *Studio) Gallery(ctx context.Context, limit int) ([]storage.GalleryImage, error) {
	return s.store.ListGallery(ctx, limit)
}

func (s *Studio) SavedPrompts(ctx context.Context) ([]storage.SavedPrompt, error) {
	return s.store.ListPrompts(ctx)
}
