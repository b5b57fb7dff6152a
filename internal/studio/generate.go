package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"arch-render-studio/internal/imgutil"
	"arch-render-studio/internal/prompt"
	"arch-render-studio/internal/render"
	"arch-render-studio/internal/storage"
)

// GenerateRequest asks for one generation operation. Upload is the angle
// target for different_angle, Mask the correction mask.
type GenerateRequest struct {
	Op           render.Operation `json:"op"`
	Direction    string           `json:"direction,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
	Upload       *Upload          `json:"-"`
	Mask         *Upload          `json:"-"`
}

type job struct {
	op         render.Operation
	correcting bool
	resetKey   int
	inputs     []FileRef
	prompts    []string
	userPrompt string
	resolution string
}

// Generate runs op against the session. A request arriving while the same
// loading context is busy fails with ErrBusy. Results that arrive after a
// reset are dropped with ErrDiscarded. Backend failures land in the error
// slot and are returned wrapped in ErrGenerationFailed.
func (s *Studio) Generate(ctx context.Context, id string, req GenerateRequest) (Snapshot, error) {
	if !req.Op.Valid() {
		return Snapshot{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidAction, req.Op)
	}
	req.Direction = strings.ToLower(strings.TrimSpace(req.Direction))
	if snap, err := s.ready(ctx, id); err != nil {
		return snap, err
	}

	var extra *FileRef
	switch req.Op {
	case render.OpDifferentAngle:
		if req.Upload.empty() {
			return Snapshot{}, fmt.Errorf("%w: different angle needs a target image", ErrInvalidAction)
		}
		ref, err := s.storeUpload(ctx, req.Upload, true)
		if err != nil {
			return Snapshot{}, err
		}
		extra = ref
	case render.OpCorrection:
		if req.Mask.empty() && strings.TrimSpace(req.Instructions) == "" {
			return Snapshot{}, fmt.Errorf("%w: correction needs a mask or instructions", ErrInvalidAction)
		}
		if !req.Mask.empty() {
			ref, err := s.storeUpload(ctx, req.Mask, true)
			if err != nil {
				return Snapshot{}, err
			}
			extra = ref
		}
	case render.OpNavigate:
		if !prompt.ValidDirection(req.Direction) {
			return Snapshot{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidAction, req.Direction)
		}
	}

	var j job
	if snap, err := s.update(ctx, id, func(w *Workspace) error {
		var err error
		j, err = s.plan(w, req, extra)
		if err != nil {
			return err
		}
		if j.correcting {
			w.Correcting = true
		} else {
			w.Loading = true
		}
		w.LoadingMessage = s.nextLoadingMessage()
		return nil
	}); err != nil {
		return snap, err
	}

	started := time.Now()
	s.logger.Info("generation started", "session", id, "op", j.op, "outputs", len(j.prompts), "resolution", j.resolution)

	entries, genErr := s.run(ctx, j)

	snap, err := s.update(ctx, id, func(w *Workspace) error {
		if w.ResetKey != j.resetKey {
			return ErrDiscarded
		}
		if j.correcting {
			w.Correcting = false
		} else {
			w.Loading = false
		}
		if !w.Loading && !w.Correcting {
			w.LoadingMessage = ""
		}
		if genErr != nil {
			w.Error = "Generation failed: " + genErr.Error()
			return nil
		}

		for _, e := range entries {
			w.History.Push(e)
		}
		w.ShowResult = true
		if j.op == render.OpCorrection {
			w.EditorOpen = false
			w.Layers = nil
			w.ActiveLayerID = ""
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("generation dropped", "session", id, "op", j.op, "err", err)
		return snap, err
	}
	if genErr != nil {
		s.logger.Error("generation failed", "session", id, "op", j.op, "dur_ms", time.Since(started).Milliseconds(), "err", genErr)
		return snap, fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
	}

	s.logger.Info("generation finished", "session", id, "op", j.op, "dur_ms", time.Since(started).Milliseconds(), "index", snap.Index)
	return snap, nil
}

// plan checks preconditions against the current state and captures the
// parameters the generation runs with. It never mutates w.
func (s *Studio) plan(w *Workspace, req GenerateRequest, extra *FileRef) (job, error) {
	j := job{
		op:         req.Op,
		correcting: req.Op == render.OpCorrection,
		resetKey:   w.ResetKey,
		userPrompt: w.Prompt,
		resolution: w.Resolution,
	}

	if (j.correcting && w.Correcting) || (!j.correcting && w.Loading) {
		return j, ErrBusy
	}

	current, hasResult := w.History.Current()
	result := FileRef{ID: current.ImageID}

	opts := prompt.Options{
		Operation:  req.Op,
		UserPrompt: w.Prompt,
		Preset:     string(w.Preset),
		Resolution: w.Resolution,
	}

	switch req.Op {
	case render.OpRender, render.OpRegenerate, render.OpFromSource:
		if w.Source == nil {
			return j, ErrNoSource
		}
		if req.Op == render.OpRegenerate && !hasResult {
			return j, ErrNoResult
		}
		j.inputs = append(j.inputs, *w.Source)
		if w.StyleReference != nil {
			j.inputs = append(j.inputs, *w.StyleReference)
			opts.HasStyleRef = true
		}

	case render.OpNavigate:
		if !w.Explorer || !hasResult {
			return j, ErrNotExplorer
		}
		opts.Direction = req.Direction
		j.inputs = append(j.inputs, result)

	default:
		if !hasResult {
			return j, ErrNoResult
		}
		j.inputs = append(j.inputs, result)
	}

	switch req.Op {
	case render.OpUpscale:
		j.resolution = prompt.NextResolution(w.Resolution)
		opts.Resolution = j.resolution
	case render.OpDifferentAngle:
		j.inputs = append(j.inputs, *extra)
	case render.OpCorrection:
		opts.Instructions = req.Instructions
		if extra != nil {
			j.inputs = append(j.inputs, *extra)
			opts.HasMask = true
		}
	}

	if req.Op == render.OpVariations {
		for i := 1; i <= s.variationCount; i++ {
			opts.Variation = i
			j.prompts = append(j.prompts, s.prompts.Build(opts))
		}
	} else {
		j.prompts = []string{s.prompts.Build(opts)}
	}
	return j, nil
}

// run calls the backend outside the lock and stores every output. Outputs
// keep their request order.
func (s *Studio) run(ctx context.Context, j job) ([]Entry, error) {
	images, err := s.loadInputs(ctx, j.inputs)
	if err != nil {
		return nil, err
	}

	outputs := make([]render.Image, len(j.prompts))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range j.prompts {
		g.Go(func() error {
			res, err := s.gen.Generate(gctx, render.Request{
				Operation:  j.op,
				Prompt:     text,
				Images:     images,
				Resolution: j.resolution,
			})
			if err != nil {
				return err
			}
			if res.Image.Empty() {
				return render.ErrNoImage
			}
			outputs[i] = res.Image
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(outputs))
	for _, out := range outputs {
		mimeType := imgutil.DetectMime(out.MimeType, out.Data)
		img, err := s.store.PutImage(ctx, storage.Image{MimeType: mimeType, Data: out.Data})
		if err != nil {
			return nil, err
		}
		if _, err := s.store.AppendGallery(ctx, storage.GalleryImage{
			ImageID:   img.ID,
			Operation: string(j.op),
			Prompt:    j.userPrompt,
		}); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			ImageID:   img.ID,
			Operation: j.op,
			Prompt:    j.userPrompt,
			Color:     imgutil.DominantColor(out.Data),
			CreatedAt: img.CreatedAt,
		})
	}
	return entries, nil
}

func (s *Studio) loadInputs(ctx context.Context, refs []FileRef) ([]render.Image, error) {
	images := make([]render.Image, 0, len(refs))
	for _, ref := range refs {
		img, err := s.store.GetImage(ctx, ref.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("input image %s is gone", ref.ID)
			}
			return nil, err
		}
		images = append(images, s.shrink(render.Image{Data: img.Data, MimeType: img.MimeType}))
	}
	return images, nil
}

// shrink re-encodes oversized inputs as JPEG. Anything that fails to
// decode is sent as is.
func (s *Studio) shrink(img render.Image) render.Image {
	if s.compressAboveBytes <= 0 || len(img.Data) <= s.compressAboveBytes {
		return img
	}
	data, err := imgutil.CompressToJPEG(img.Data, 85)
	if err != nil || len(data) >= len(img.Data) {
		return img
	}
	return render.Image{Data: data, MimeType: "image/jpeg"}
}
