package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"arch-render-studio/internal/imgutil"
	"arch-render-studio/internal/prompt"
	"arch-render-studio/internal/render"
	"arch-render-studio/internal/storage"
)

type ActionType string

const (
	ActionSelectFile      ActionType = "select_file"
	ActionSelectStyleFile ActionType = "select_style_file"
	ActionRemoveStyleFile ActionType = "remove_style_file"
	ActionSelectPreset    ActionType = "select_preset"
	ActionSetPrompt       ActionType = "set_prompt"
	ActionAddMaterial     ActionType = "add_material"
	ActionSetResolution   ActionType = "set_resolution"

	ActionUndo          ActionType = "undo"
	ActionRedo          ActionType = "redo"
	ActionSelectHistory ActionType = "select_history"
	ActionGoBack        ActionType = "go_back"
	ActionShowResult    ActionType = "show_result"

	ActionEnterExplorer ActionType = "enter_explorer"
	ActionExitExplorer  ActionType = "exit_explorer"
	ActionToggleCompare ActionType = "toggle_compare"
	ActionToggleViewer  ActionType = "toggle_viewer"
	ActionOpenEditor    ActionType = "open_editor"
	ActionCloseEditor   ActionType = "close_editor"
	ActionSetTool       ActionType = "set_tool"
	ActionAddLayer      ActionType = "add_layer"
	ActionSelectLayer   ActionType = "select_layer"
	ActionRemoveLayer   ActionType = "remove_layer"
	ActionDismissError  ActionType = "dismiss_error"

	ActionNewFile ActionType = "new_file"
	ActionReset   ActionType = "reset"

	ActionLoad3D    ActionType = "load_3d"
	ActionCapture3D ActionType = "capture_3d"
	ActionCancel3D  ActionType = "cancel_3d"

	ActionOpenGallery       ActionType = "open_gallery"
	ActionCloseGallery      ActionType = "close_gallery"
	ActionSelectFromGallery ActionType = "select_from_gallery"

	ActionOpenPromptLibrary  ActionType = "open_prompt_library"
	ActionClosePromptLibrary ActionType = "close_prompt_library"
	ActionSavePrompt         ActionType = "save_prompt"
	ActionDeletePrompt       ActionType = "delete_prompt"
	ActionUsePrompt          ActionType = "use_prompt"
)

// Upload carries raw file bytes from a surface into the studio.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

func (u *Upload) empty() bool {
	return u == nil || len(u.Data) == 0
}

// Action is a single user intent. Only the fields relevant to Type are read.
type Action struct {
	Type       ActionType  `json:"type"`
	Index      int         `json:"index,omitempty"`
	Preset     StylePreset `json:"preset,omitempty"`
	Text       string      `json:"text,omitempty"`
	Title      string      `json:"title,omitempty"`
	Category   string      `json:"category,omitempty"`
	Number     int         `json:"number,omitempty"`
	Resolution string      `json:"resolution,omitempty"`
	Tool       Tool        `json:"tool,omitempty"`
	ID         string      `json:"id,omitempty"`
	Upload     *Upload     `json:"-"`
}

// prepared holds what an action needed from storage before taking the lock.
type prepared struct {
	ref      *FileRef
	gallery  storage.GalleryImage
	color    string
	saved    storage.SavedPrompt
	material prompt.Material
}

// Dispatch applies a to the session and returns the resulting snapshot. On
// error the workspace is unchanged. A session still restoring is rejected
// before anything is written to the store.
func (s *Studio) Dispatch(ctx context.Context, id string, a Action) (Snapshot, error) {
	if snap, err := s.ready(ctx, id); err != nil {
		return snap, err
	}

	p, err := s.prepare(ctx, a)
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := s.update(ctx, id, func(w *Workspace) error {
		return s.apply(w, a, p)
	})
	if err != nil {
		return snap, err
	}

	s.logger.Debug("action applied", "session", id, "action", a.Type, "view", snap.View, "index", snap.Index)
	return snap, nil
}

func (s *Studio) prepare(ctx context.Context, a Action) (prepared, error) {
	var p prepared

	switch a.Type {
	case ActionSelectFile, ActionSelectStyleFile, ActionLoad3D, ActionCapture3D:
		if a.Upload.empty() {
			return p, fmt.Errorf("%w: %s needs a file", ErrInvalidAction, a.Type)
		}
		ref, err := s.storeUpload(ctx, a.Upload, a.Type != ActionLoad3D)
		if err != nil {
			return p, err
		}
		p.ref = ref

	case ActionAddMaterial:
		m, ok := s.Catalog().Material(a.Category, a.Number)
		if !ok {
			return p, fmt.Errorf("%w: no material %d in %q", ErrInvalidAction, a.Number, a.Category)
		}
		p.material = m

	case ActionSelectFromGallery:
		g, err := s.store.GetGallery(ctx, a.ID)
		if err != nil {
			return p, notFound(err)
		}
		img, err := s.store.GetImage(ctx, g.ImageID)
		if err != nil {
			return p, notFound(err)
		}
		p.gallery = g
		p.ref = &FileRef{ID: img.ID, MimeType: img.MimeType}
		p.color = imgutil.DominantColor(img.Data)

	case ActionSavePrompt:
		title := strings.TrimSpace(a.Title)
		content := strings.TrimSpace(a.Text)
		if title == "" || content == "" {
			return p, fmt.Errorf("%w: prompt needs a title and content", ErrInvalidAction)
		}
		saved, err := s.store.SavePrompt(ctx, storage.SavedPrompt{Title: title, Content: content})
		if err != nil {
			return p, err
		}
		p.saved = saved

	case ActionDeletePrompt:
		if err := s.store.DeletePrompt(ctx, a.ID); err != nil {
			return p, notFound(err)
		}

	case ActionUsePrompt:
		saved, err := s.store.GetPrompt(ctx, a.ID)
		if err != nil {
			return p, notFound(err)
		}
		p.saved = saved
	}
	return p, nil
}

// storeUpload persists upload bytes. 3D model files are not images, so their
// declared type is kept as is.
func (s *Studio) storeUpload(ctx context.Context, u *Upload, image bool) (*FileRef, error) {
	mimeType := u.MimeType
	if image {
		mimeType = imgutil.DetectMime(u.MimeType, u.Data)
	} else if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	img, err := s.store.PutImage(ctx, storage.Image{MimeType: mimeType, Data: u.Data})
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	return &FileRef{ID: img.ID, MimeType: img.MimeType, Name: u.Name}, nil
}

func (s *Studio) apply(w *Workspace, a Action, p prepared) error {
	switch a.Type {
	case ActionSelectFile:
		w.clearDerived()
		w.Source = p.ref
		w.ThreeD = nil

	case ActionSelectStyleFile:
		w.StyleReference = p.ref
		w.Preset = PresetNone

	case ActionRemoveStyleFile:
		w.StyleReference = nil

	case ActionSelectPreset:
		if !a.Preset.Valid() {
			return fmt.Errorf("%w: unknown preset %q", ErrInvalidAction, a.Preset)
		}
		if a.Preset == w.Preset {
			w.Preset = PresetNone
		} else {
			w.Preset = a.Preset
		}
		if w.Preset != PresetNone {
			w.StyleReference = nil
		}

	case ActionSetPrompt:
		w.Prompt = a.Text

	case ActionAddMaterial:
		w.Prompt = prompt.AppendMaterial(w.Prompt, p.material.Value)

	case ActionSetResolution:
		if !prompt.ValidResolution(a.Resolution) {
			return fmt.Errorf("%w: unknown resolution %q", ErrInvalidAction, a.Resolution)
		}
		w.Resolution = a.Resolution

	case ActionUndo:
		w.History.Undo()

	case ActionRedo:
		w.History.Redo()

	case ActionSelectHistory:
		return w.History.Select(a.Index)

	case ActionGoBack:
		w.ShowResult = false
		w.Explorer = false
		w.Compare = false
		w.ViewerOpen = false

	case ActionShowResult:
		if w.History.Len() == 0 {
			return ErrNoResult
		}
		w.ShowResult = true

	case ActionEnterExplorer:
		if w.View() != ViewResult {
			return fmt.Errorf("%w: explorer opens from the result view", ErrInvalidAction)
		}
		w.Explorer = true
		w.Compare = false
		w.ViewerOpen = false

	case ActionExitExplorer:
		if !w.Explorer {
			return ErrNotExplorer
		}
		w.Explorer = false

	case ActionToggleCompare:
		if !w.inResult() {
			return ErrNoResult
		}
		w.Compare = !w.Compare
		if w.Compare {
			w.ViewerOpen = false
		}

	case ActionToggleViewer:
		if w.ViewerOpen {
			w.ViewerOpen = false
			return nil
		}
		if w.Compare || w.Explorer || w.Correcting || w.EditorOpen {
			return nil
		}
		if w.Source == nil && w.History.Len() == 0 {
			return ErrNoSource
		}
		w.ViewerOpen = true

	case ActionOpenEditor:
		if _, ok := w.History.Current(); !ok {
			return ErrNoResult
		}
		w.EditorOpen = true
		w.ViewerOpen = false
		if len(w.Layers) == 0 {
			w.addLayer("")
		}

	case ActionCloseEditor:
		w.EditorOpen = false
		w.Layers = nil
		w.ActiveLayerID = ""

	case ActionAddLayer:
		if !w.EditorOpen {
			return fmt.Errorf("%w: the editor is closed", ErrInvalidAction)
		}
		w.addLayer(a.Text)

	case ActionSelectLayer:
		if w.layerIndex(a.ID) < 0 {
			return fmt.Errorf("%w: layer %q", ErrNotFound, a.ID)
		}
		w.ActiveLayerID = a.ID

	case ActionRemoveLayer:
		i := w.layerIndex(a.ID)
		if i < 0 {
			return fmt.Errorf("%w: layer %q", ErrNotFound, a.ID)
		}
		if len(w.Layers) == 1 {
			return fmt.Errorf("%w: the editor keeps at least one layer", ErrInvalidAction)
		}
		w.Layers = append(w.Layers[:i:i], w.Layers[i+1:]...)
		if w.ActiveLayerID == a.ID {
			w.ActiveLayerID = w.Layers[max(i-1, 0)].ID
		}

	case ActionSetTool:
		if !a.Tool.Valid() {
			return fmt.Errorf("%w: unknown tool %q", ErrInvalidAction, a.Tool)
		}
		w.Tool = a.Tool

	case ActionDismissError:
		w.Error = ""

	case ActionNewFile:
		w.clearDerived()
		w.Source = nil
		w.ThreeD = nil
		w.GalleryOpen = false
		w.PromptLibOpen = false

	case ActionReset:
		next := newWorkspace(w.ID, w.History.limit)
		next.ResetKey = w.ResetKey + 1
		*w = *next

	case ActionLoad3D:
		w.ThreeD = p.ref

	case ActionCapture3D:
		if w.ThreeD == nil {
			return fmt.Errorf("%w: no 3D model loaded", ErrInvalidAction)
		}
		w.clearDerived()
		w.Source = p.ref
		w.ThreeD = nil

	case ActionCancel3D:
		w.ThreeD = nil

	case ActionOpenGallery:
		w.GalleryOpen = true

	case ActionCloseGallery:
		w.GalleryOpen = false

	case ActionSelectFromGallery:
		w.History.Push(Entry{
			ImageID:   p.ref.ID,
			Operation: render.OpGallery,
			Prompt:    p.gallery.Prompt,
			Color:     p.color,
			CreatedAt: p.gallery.CreatedAt,
		})
		if w.Source == nil {
			w.Source = p.ref
		}
		w.ShowResult = true
		w.Explorer = false
		w.GalleryOpen = false

	case ActionOpenPromptLibrary:
		w.PromptLibOpen = true

	case ActionClosePromptLibrary:
		w.PromptLibOpen = false

	case ActionSavePrompt, ActionDeletePrompt:
		// library contents live in the store

	case ActionUsePrompt:
		w.Prompt = p.saved.Content
		w.PromptLibOpen = false

	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, a.Type)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
