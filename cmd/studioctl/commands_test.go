package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arch-render-studio/internal/storage"
)

func testRoot(store storage.Store) *cobra.Command {
	a := &app{
		openDB: func(string) (storage.Store, error) { return store, nil },
	}
	return a.rootCmd()
}

func execute(t *testing.T, store storage.Store, args ...string) string {
	t.Helper()
	root := testRoot(store)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestPromptsCommands(t *testing.T) {
	store := storage.NewMemory()

	assert.Contains(t, execute(t, store, "prompts", "list"), "No saved prompts.")

	id := strings.TrimSpace(execute(t, store, "prompts", "add", "Dusk", "villa at dusk"))
	require.NotEmpty(t, id)

	var listed []storage.SavedPrompt
	require.NoError(t, json.Unmarshal([]byte(execute(t, store, "--json", "prompts", "list")), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Dusk", listed[0].Title)
	assert.Equal(t, id, listed[0].ID)

	assert.Contains(t, execute(t, store, "prompts", "rm", id), "deleted "+id)

	root := testRoot(store)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"prompts", "rm", id})
	assert.ErrorIs(t, root.Execute(), storage.ErrNotFound)
}

func TestGalleryExport(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	img, err := store.PutImage(ctx, storage.Image{MimeType: "image/png", Data: []byte("png-bytes")})
	require.NoError(t, err)
	g, err := store.AppendGallery(ctx, storage.GalleryImage{ImageID: img.ID, Operation: "render", Prompt: "pavilion"})
	require.NoError(t, err)

	assert.Contains(t, execute(t, store, "gallery", "list"), "pavilion")

	dir := t.TempDir()
	out := execute(t, store, "gallery", "export", "--out", dir)
	want := filepath.Join(dir, g.ID+".png")
	assert.Equal(t, want, strings.TrimSpace(out))

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestSessionsPurge(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.SaveSession(ctx, storage.SessionRecord{ID: "old", Data: []byte("{}"), UpdatedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, store.SaveSession(ctx, storage.SessionRecord{ID: "fresh", Data: []byte("{}"), UpdatedAt: time.Now()}))

	assert.Contains(t, execute(t, store, "sessions", "purge", "--older-than", "1d"), "purged 1 session(s)")

	out := execute(t, store, "sessions", "list")
	assert.Contains(t, out, "fresh")
	assert.NotContains(t, out, "old")
}

func TestParseAge(t *testing.T) {
	d, err := parseAge("30d")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, d)

	d, err = parseAge("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	for _, bad := range []string{"", "d", "-3d", "0s", "soon"} {
		_, err := parseAge(bad)
		assert.Error(t, err, bad)
	}
}
