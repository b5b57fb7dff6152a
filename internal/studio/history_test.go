package studio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func push(h *History, ids ...string) {
	for _, id := range ids {
		h.Push(Entry{ImageID: id})
	}
}

func ids(h History) []string {
	var out []string
	for _, e := range h.Entries() {
		out = append(out, e.ImageID)
	}
	return out
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory(0)

	assert.Equal(t, -1, h.Index())
	assert.False(t, h.CanUndo())
	assert.False(t, h.CanRedo())
	assert.False(t, h.Undo())
	_, ok := h.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, h.Select(0), ErrInvalidIndex)
}

func TestHistoryPushMovesCursorToHead(t *testing.T) {
	h := NewHistory(0)
	for i, id := range []string{"a", "b", "c"} {
		push(&h, id)
		assert.Equal(t, i, h.Index())
		assert.Equal(t, i+1, h.Len())
	}
	cur, ok := h.Current()
	require.True(t, ok)
	assert.Equal(t, "c", cur.ImageID)
}

func TestHistoryUndoRedo(t *testing.T) {
	h := NewHistory(0)
	push(&h, "a", "b")

	assert.True(t, h.CanUndo())
	assert.True(t, h.Undo())
	assert.Equal(t, 0, h.Index())
	assert.False(t, h.Undo(), "undo at the first entry is a no-op")
	assert.Equal(t, 0, h.Index())
	assert.Equal(t, 2, h.Len())

	assert.True(t, h.Redo())
	assert.Equal(t, 1, h.Index())
	assert.False(t, h.Redo())
}

func TestHistorySelectDoesNotMutateStack(t *testing.T) {
	h := NewHistory(0)
	push(&h, "a", "b", "c")

	require.NoError(t, h.Select(1))
	assert.Equal(t, 1, h.Index())
	assert.Equal(t, []string{"a", "b", "c"}, ids(h))

	assert.ErrorIs(t, h.Select(3), ErrInvalidIndex)
	assert.ErrorIs(t, h.Select(-1), ErrInvalidIndex)
	assert.Equal(t, 1, h.Index())
}

func TestHistoryPushTruncatesForwardBranch(t *testing.T) {
	h := NewHistory(0)
	push(&h, "a", "b", "c")
	before := h.Entries()

	require.NoError(t, h.Select(0))
	push(&h, "d")

	assert.Equal(t, []string{"a", "d"}, ids(h))
	assert.Equal(t, 1, h.Index())
	assert.False(t, h.CanRedo())
	assert.Equal(t, "b", before[1].ImageID, "copies handed out earlier are untouched")
}

func TestHistoryLimitEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	push(&h, "a", "b", "c", "d", "e")

	assert.Equal(t, []string{"c", "d", "e"}, ids(h))
	assert.Equal(t, 2, h.Index())
}

func TestHistoryJSON(t *testing.T) {
	h := NewHistory(0)
	push(&h, "a", "b", "c")
	require.NoError(t, h.Select(1))

	data, err := json.Marshal(h)
	require.NoError(t, err)

	got := NewHistory(0)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	assert.Equal(t, 1, got.Index())
}

func TestHistoryJSONRepairsCursor(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		limit int
		ids   []string
		index int
	}{
		{"empty", `{"stack":[],"index":4}`, 0, nil, -1},
		{"index past end", `{"stack":[{"image_id":"a"},{"image_id":"b"}],"index":9}`, 0, []string{"a", "b"}, 1},
		{"negative index", `{"stack":[{"image_id":"a"}],"index":-1}`, 0, []string{"a"}, 0},
		{"over limit", `{"stack":[{"image_id":"a"},{"image_id":"b"},{"image_id":"c"}],"index":2}`, 2, []string{"b", "c"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory(tt.limit)
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &h))
			assert.Equal(t, tt.ids, ids(h))
			assert.Equal(t, tt.index, h.Index())
		})
	}
}
