package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type Image struct {
	ID        string
	MimeType  string
	Data      []byte
	CreatedAt time.Time
}

type SavedPrompt struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type GalleryImage struct {
	ID        string    `json:"id"`
	ImageID   string    `json:"image_id"`
	Operation string    `json:"operation"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRecord holds a serialized workspace. Data is opaque to the store.
// Saving never replaces a record with a newer UpdatedAt.
type SessionRecord struct {
	ID        string
	Data      []byte
	UpdatedAt time.Time
}

// Store is the persistence surface shared by the SQLite and in-memory
// implementations. Prompts and gallery images list in insertion order,
// sessions most recently updated first.
type Store interface {
	PutImage(ctx context.Context, img Image) (Image, error)
	GetImage(ctx context.Context, id string) (Image, error)

	SavePrompt(ctx context.Context, p SavedPrompt) (SavedPrompt, error)
	GetPrompt(ctx context.Context, id string) (SavedPrompt, error)
	DeletePrompt(ctx context.Context, id string) error
	ListPrompts(ctx context.Context) ([]SavedPrompt, error)

	AppendGallery(ctx context.Context, g GalleryImage) (GalleryImage, error)
	GetGallery(ctx context.Context, id string) (GalleryImage, error)
	ListGallery(ctx context.Context, limit int) ([]GalleryImage, error)

	SaveSession(ctx context.Context, rec SessionRecord) error
	LoadSession(ctx context.Context, id string) (SessionRecord, error)
	ListSessions(ctx context.Context) ([]SessionRecord, error)
	DeleteSessionsBefore(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

func newID() string {
	return uuid.New().String()
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
