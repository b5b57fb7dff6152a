package studio

import (
	"encoding/json"
	"time"

	"arch-render-studio/internal/render"
)

// Entry is one generated image in the history. Entries are never mutated.
type Entry struct {
	ImageID   string           `json:"image_id"`
	Operation render.Operation `json:"operation"`
	Prompt    string           `json:"prompt,omitempty"`
	Color     string           `json:"color,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// History is an append-only arena of entries plus a cursor. Index is -1 when
// empty and always within bounds otherwise. Pushing from a non-head position
// discards the entries after the cursor.
type History struct {
	entries []Entry
	index   int
	limit   int
}

func NewHistory(limit int) History {
	return History{index: -1, limit: limit}
}

func (h *History) Push(e Entry) {
	// The three-index slice forces a fresh backing array on truncation so
	// previously handed out copies never see the overwrite.
	h.entries = append(h.entries[:h.index+1:h.index+1], e)
	if h.limit > 0 && len(h.entries) > h.limit {
		h.entries = append([]Entry(nil), h.entries[len(h.entries)-h.limit:]...)
	}
	h.index = len(h.entries) - 1
}

func (h *History) Select(index int) error {
	if index < 0 || index >= len(h.entries) {
		return ErrInvalidIndex
	}
	h.index = index
	return nil
}

func (h *History) Undo() bool {
	if !h.CanUndo() {
		return false
	}
	h.index--
	return true
}

func (h *History) Redo() bool {
	if !h.CanRedo() {
		return false
	}
	h.index++
	return true
}

func (h *History) Clear() {
	h.entries = nil
	h.index = -1
}

func (h History) CanUndo() bool {
	return h.index > 0
}

func (h History) CanRedo() bool {
	return h.index >= 0 && h.index < len(h.entries)-1
}

func (h History) Current() (Entry, bool) {
	if h.index < 0 || h.index >= len(h.entries) {
		return Entry{}, false
	}
	return h.entries[h.index], true
}

func (h History) Entries() []Entry {
	return append([]Entry(nil), h.entries...)
}

func (h History) Index() int {
	return h.index
}

func (h History) Len() int {
	return len(h.entries)
}

type historyJSON struct {
	Stack []Entry `json:"stack"`
	Index int     `json:"index"`
}

func (h History) MarshalJSON() ([]byte, error) {
	stack := h.entries
	if stack == nil {
		stack = []Entry{}
	}
	return json.Marshal(historyJSON{Stack: stack, Index: h.index})
}

// UnmarshalJSON keeps the limit already configured on h and repairs an
// out-of-range cursor.
func (h *History) UnmarshalJSON(data []byte) error {
	var raw historyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.entries = raw.Stack
	if h.limit > 0 && len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
		raw.Index -= len(raw.Stack) - h.limit
	}
	switch {
	case len(h.entries) == 0:
		h.entries = nil
		h.index = -1
	case raw.Index < 0:
		h.index = 0
	case raw.Index >= len(h.entries):
		h.index = len(h.entries) - 1
	default:
		h.index = raw.Index
	}
	return nil
}
