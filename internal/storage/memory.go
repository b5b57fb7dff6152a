package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type Memory struct {
	mu       sync.Mutex
	images   map[string]Image
	prompts  []SavedPrompt
	gallery  []GalleryImage
	sessions map[string]SessionRecord
}

func NewMemory() *Memory {
	return &Memory{
		images:   make(map[string]Image),
		sessions: make(map[string]SessionRecord),
	}
}

func (m *Memory) PutImage(_ context.Context, img Image) (Image, error) {
	if len(img.Data) == 0 {
		return Image{}, fmt.Errorf("put image: empty data")
	}
	if img.ID == "" {
		img.ID = newID()
	}
	img.CreatedAt = stamp(img.CreatedAt)
	img.Data = append([]byte(nil), img.Data...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[img.ID] = img
	return img, nil
}

func (m *Memory) GetImage(_ context.Context, id string) (Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return Image{}, fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	return img, nil
}

func (m *Memory) SavePrompt(_ context.Context, p SavedPrompt) (SavedPrompt, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = stamp(p.CreatedAt)

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.prompts {
		if m.prompts[i].ID == p.ID {
			m.prompts[i] = p
			return p, nil
		}
	}
	m.prompts = append(m.prompts, p)
	return p, nil
}

func (m *Memory) GetPrompt(_ context.Context, id string) (SavedPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.prompts {
		if p.ID == id {
			return p, nil
		}
	}
	return SavedPrompt{}, fmt.Errorf("prompt %s: %w", id, ErrNotFound)
}

func (m *Memory) DeletePrompt(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.prompts {
		if p.ID == id {
			m.prompts = append(m.prompts[:i], m.prompts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("prompt %s: %w", id, ErrNotFound)
}

func (m *Memory) ListPrompts(_ context.Context) ([]SavedPrompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SavedPrompt(nil), m.prompts...), nil
}

func (m *Memory) AppendGallery(_ context.Context, g GalleryImage) (GalleryImage, error) {
	if g.ID == "" {
		g.ID = newID()
	}
	g.CreatedAt = stamp(g.CreatedAt)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gallery = append(m.gallery, g)
	return g, nil
}

func (m *Memory) GetGallery(_ context.Context, id string) (GalleryImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.gallery {
		if g.ID == id {
			return g, nil
		}
	}
	return GalleryImage{}, fmt.Errorf("gallery image %s: %w", id, ErrNotFound)
}

func (m *Memory) ListGallery(_ context.Context, limit int) ([]GalleryImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.gallery
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return append([]GalleryImage(nil), items...), nil
}

func (m *Memory) SaveSession(_ context.Context, rec SessionRecord) error {
	rec.UpdatedAt = stamp(rec.UpdatedAt)
	rec.Data = append([]byte(nil), rec.Data...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sessions[rec.ID]; ok && prev.UpdatedAt.After(rec.UpdatedAt) {
		return nil
	}
	m.sessions[rec.ID] = rec
	return nil
}

func (m *Memory) LoadSession(_ context.Context, id string) (SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (m *Memory) ListSessions(_ context.Context) ([]SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, SessionRecord{ID: rec.ID, UpdatedAt: rec.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) DeleteSessionsBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.sessions {
		if rec.UpdatedAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error {
	return nil
}
