package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": db,
	}
}

func TestImages(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			img, err := s.PutImage(ctx, Image{MimeType: "image/png", Data: []byte("abc")})
			require.NoError(t, err)
			assert.NotEmpty(t, img.ID)

			got, err := s.GetImage(ctx, img.ID)
			require.NoError(t, err)
			assert.Equal(t, []byte("abc"), got.Data)
			assert.Equal(t, "image/png", got.MimeType)

			_, err = s.GetImage(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.PutImage(ctx, Image{MimeType: "image/png"})
			assert.Error(t, err)
		})
	}
}

func TestPrompts(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a, err := s.SavePrompt(ctx, SavedPrompt{Title: "Villa", Content: "modern villa"})
			require.NoError(t, err)
			b, err := s.SavePrompt(ctx, SavedPrompt{Title: "Night", Content: "night time"})
			require.NoError(t, err)

			a.Content = "modern villa at dusk"
			_, err = s.SavePrompt(ctx, a)
			require.NoError(t, err)

			list, err := s.ListPrompts(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, a.ID, list[0].ID)
			assert.Equal(t, "modern villa at dusk", list[0].Content)
			assert.Equal(t, b.ID, list[1].ID)

			require.NoError(t, s.DeletePrompt(ctx, a.ID))
			assert.ErrorIs(t, s.DeletePrompt(ctx, a.ID), ErrNotFound)

			_, err = s.GetPrompt(ctx, a.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			got, err := s.GetPrompt(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, "Night", got.Title)
		})
	}
}

func TestGalleryIsAppendOnlyAndOrdered(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var ids []string
			for i := 0; i < 3; i++ {
				img, err := s.PutImage(ctx, Image{MimeType: "image/png", Data: []byte{byte(i + 1)}})
				require.NoError(t, err)
				g, err := s.AppendGallery(ctx, GalleryImage{ImageID: img.ID, Operation: "render", Prompt: "p"})
				require.NoError(t, err)
				ids = append(ids, g.ID)
			}

			all, err := s.ListGallery(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			for i := range ids {
				assert.Equal(t, ids[i], all[i].ID)
			}

			last2, err := s.ListGallery(ctx, 2)
			require.NoError(t, err)
			require.Len(t, last2, 2)
			assert.Equal(t, ids[1], last2[0].ID)
			assert.Equal(t, ids[2], last2[1].ID)

			g, err := s.GetGallery(ctx, ids[0])
			require.NoError(t, err)
			assert.Equal(t, "render", g.Operation)
		})
	}
}

func TestSessions(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := time.Now().Add(-48 * time.Hour)

			require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "old", Data: []byte(`{}`), UpdatedAt: old}))
			require.NoError(t, s.SaveSession(ctx, SessionRecord{ID: "new", Data: []byte(`{"a":1}`)}))

			rec, err := s.LoadSession(ctx, "new")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(rec.Data))

			list, err := s.ListSessions(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "new", list[0].ID)

			n, err := s.DeleteSessionsBefore(ctx, time.Now().Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			_, err = s.LoadSession(ctx, "old")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
