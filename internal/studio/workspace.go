package studio

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type StylePreset string

const (
	PresetNone      StylePreset = ""
	PresetRealistic StylePreset = "realistic"
	PresetSketch    StylePreset = "sketch"
	PresetSitePlan  StylePreset = "site_plan"
	PresetSection   StylePreset = "section"
)

func (p StylePreset) Valid() bool {
	switch p {
	case PresetNone, PresetRealistic, PresetSketch, PresetSitePlan, PresetSection:
		return true
	}
	return false
}

type ViewState string

const (
	ViewRestoring ViewState = "restoring-session"
	ViewEmpty     ViewState = "empty"
	ViewEditing   ViewState = "editing"
	ViewResult    ViewState = "result"
	ViewExplorer  ViewState = "explorer"
	View3D        ViewState = "3d-viewing"
)

type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
	ToolLasso  Tool = "lasso"
)

func (t Tool) Valid() bool {
	return t == ToolBrush || t == ToolEraser || t == ToolLasso
}

// Layer is a mask layer of the correction editor. Layers live only while
// the editor is open.
type Layer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FileRef points at bytes held by the store.
type FileRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name,omitempty"`
}

// Workspace is the full state tree of one session.
type Workspace struct {
	ID string

	Source         *FileRef
	StyleReference *FileRef
	Preset         StylePreset
	Resolution     string
	Prompt         string

	History    History
	ShowResult bool

	Explorer      bool
	Compare       bool
	ViewerOpen    bool
	EditorOpen    bool
	GalleryOpen   bool
	PromptLibOpen bool
	Tool          Tool
	Layers        []Layer
	ActiveLayerID string
	layerSeq      int

	Loading        bool
	Correcting     bool
	LoadingMessage string
	Error          string

	ThreeD    *FileRef
	Restoring bool

	ResetKey  int
	UpdatedAt time.Time
}

func newWorkspace(id string, historyLimit int) *Workspace {
	return &Workspace{
		ID:         id,
		Resolution: "1K",
		History:    NewHistory(historyLimit),
		Tool:       ToolBrush,
		UpdatedAt:  time.Now(),
	}
}

// View derives the display mode. Precedence: restoring, 3D, result or
// explorer, editing, empty.
func (w *Workspace) View() ViewState {
	switch {
	case w.Restoring:
		return ViewRestoring
	case w.ThreeD != nil:
		return View3D
	case w.ShowResult && w.History.Len() > 0:
		if w.Explorer {
			return ViewExplorer
		}
		return ViewResult
	case w.Source != nil:
		return ViewEditing
	default:
		return ViewEmpty
	}
}

// inResult is true for both result and its explorer sub-mode.
func (w *Workspace) inResult() bool {
	v := w.View()
	return v == ViewResult || v == ViewExplorer
}

// clearDerived drops everything produced from the current source. Bumping
// the reset key makes in-flight generations discard their result.
func (w *Workspace) clearDerived() {
	w.History.Clear()
	w.ShowResult = false
	w.Explorer = false
	w.Compare = false
	w.ViewerOpen = false
	w.EditorOpen = false
	w.Layers = nil
	w.ActiveLayerID = ""
	w.Loading = false
	w.Correcting = false
	w.LoadingMessage = ""
	w.ResetKey++
}

// addLayer appends a layer and makes it active.
func (w *Workspace) addLayer(name string) {
	w.layerSeq++
	id := fmt.Sprintf("layer-%d", w.layerSeq)
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Layer %d", w.layerSeq)
	}
	w.Layers = append(w.Layers, Layer{ID: id, Name: name})
	w.ActiveLayerID = id
}

func (w *Workspace) layerIndex(id string) int {
	for i, l := range w.Layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// noColor is the ambient color when the current entry has none.
const noColor = "transparent"

// Snapshot is a read-only copy of a workspace. DominantColor follows the
// history cursor.
type Snapshot struct {
	ID             string      `json:"id"`
	View           ViewState   `json:"view"`
	Source         *FileRef    `json:"source,omitempty"`
	StyleReference *FileRef    `json:"style_reference,omitempty"`
	Preset         StylePreset `json:"preset"`
	Resolution     string      `json:"resolution"`
	Prompt         string      `json:"prompt"`

	History []Entry `json:"history"`
	Index   int     `json:"index"`
	CanUndo bool    `json:"can_undo"`
	CanRedo bool    `json:"can_redo"`
	Result  *Entry  `json:"result,omitempty"`

	DownloadURL string `json:"download_url,omitempty"`

	ShowThumbnails bool `json:"show_thumbnails"`
	ShowActions    bool `json:"show_actions"`
	ShowNavigation bool `json:"show_navigation"`

	Compare       bool    `json:"compare"`
	ViewerOpen    bool    `json:"viewer_open"`
	EditorOpen    bool    `json:"editor_open"`
	GalleryOpen   bool    `json:"gallery_open"`
	PromptLibOpen bool    `json:"prompt_library_open"`
	Tool          Tool    `json:"tool"`
	Layers        []Layer `json:"layers,omitempty"`
	ActiveLayerID string  `json:"active_layer_id,omitempty"`

	Loading        bool   `json:"loading"`
	Correcting     bool   `json:"correcting"`
	LoadingMessage string `json:"loading_message,omitempty"`
	Error          string `json:"error,omitempty"`

	ThreeD        *FileRef  `json:"three_d,omitempty"`
	ResetKey      int       `json:"reset_key"`
	DominantColor string    `json:"dominant_color"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (w *Workspace) snapshot() Snapshot {
	view := w.View()
	snap := Snapshot{
		ID:             w.ID,
		View:           view,
		Source:         cloneRef(w.Source),
		StyleReference: cloneRef(w.StyleReference),
		Preset:         w.Preset,
		Resolution:     w.Resolution,
		Prompt:         w.Prompt,
		History:        w.History.Entries(),
		Index:          w.History.Index(),
		CanUndo:        w.History.CanUndo(),
		CanRedo:        w.History.CanRedo(),
		ShowThumbnails: view == ViewResult,
		ShowActions:    view == ViewResult,
		ShowNavigation: view == ViewExplorer,
		Compare:        w.Compare,
		ViewerOpen:     w.ViewerOpen,
		EditorOpen:     w.EditorOpen,
		GalleryOpen:    w.GalleryOpen,
		PromptLibOpen:  w.PromptLibOpen,
		Tool:           w.Tool,
		Layers:         append([]Layer(nil), w.Layers...),
		ActiveLayerID:  w.ActiveLayerID,
		Loading:        w.Loading,
		Correcting:     w.Correcting,
		LoadingMessage: w.LoadingMessage,
		Error:          w.Error,
		ThreeD:         cloneRef(w.ThreeD),
		ResetKey:       w.ResetKey,
		DominantColor:  noColor,
		UpdatedAt:      w.UpdatedAt,
	}
	if snap.History == nil {
		snap.History = []Entry{}
	}
	if cur, ok := w.History.Current(); ok {
		snap.Result = &cur
		snap.DownloadURL = "/api/images/" + cur.ImageID
		if cur.Color != "" {
			snap.DominantColor = cur.Color
		}
	}
	return snap
}

type persistedWorkspace struct {
	Source         *FileRef    `json:"source,omitempty"`
	StyleReference *FileRef    `json:"style_reference,omitempty"`
	Preset         StylePreset `json:"preset"`
	Resolution     string      `json:"resolution"`
	Prompt         string      `json:"prompt"`
	History        History     `json:"history"`
	ShowResult     bool        `json:"show_result"`
	ResetKey       int         `json:"reset_key"`
}

// marshalPersisted keeps only what survives a restart; overlays, loading
// flags and the error slot are transient.
func (w *Workspace) marshalPersisted() ([]byte, error) {
	return json.Marshal(persistedWorkspace{
		Source:         w.Source,
		StyleReference: w.StyleReference,
		Preset:         w.Preset,
		Resolution:     w.Resolution,
		Prompt:         w.Prompt,
		History:        w.History,
		ShowResult:     w.ShowResult,
		ResetKey:       w.ResetKey,
	})
}

func (w *Workspace) restore(data []byte) error {
	p := persistedWorkspace{History: NewHistory(w.History.limit)}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if !p.Preset.Valid() {
		p.Preset = PresetNone
	}
	w.Source = p.Source
	w.StyleReference = p.StyleReference
	w.Preset = p.Preset
	if p.Resolution != "" {
		w.Resolution = p.Resolution
	}
	w.Prompt = p.Prompt
	w.History = p.History
	w.ShowResult = p.ShowResult
	w.ResetKey = p.ResetKey
	return nil
}

func cloneRef(r *FileRef) *FileRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
