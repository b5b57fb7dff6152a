package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
	id         TEXT PRIMARY KEY,
	mime_type  TEXT NOT NULL,
	data       BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS prompts (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS gallery (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	image_id   TEXT NOT NULL REFERENCES images(id),
	operation  TEXT NOT NULL,
	prompt     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
`

type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) PutImage(ctx context.Context, img Image) (Image, error) {
	if len(img.Data) == 0 {
		return Image{}, fmt.Errorf("put image: empty data")
	}
	if img.ID == "" {
		img.ID = newID()
	}
	img.CreatedAt = stamp(img.CreatedAt)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO images (id, mime_type, data, created_at) VALUES (?, ?, ?, ?)`,
		img.ID, img.MimeType, img.Data, img.CreatedAt.UnixNano())
	if err != nil {
		return Image{}, fmt.Errorf("put image: %w", err)
	}
	return img, nil
}

func (s *SQLite) GetImage(ctx context.Context, id string) (Image, error) {
	var img Image
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, mime_type, data, created_at FROM images WHERE id = ?`, id).
		Scan(&img.ID, &img.MimeType, &img.Data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Image{}, fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Image{}, fmt.Errorf("get image: %w", err)
	}
	img.CreatedAt = time.Unix(0, created).UTC()
	return img, nil
}

func (s *SQLite) SavePrompt(ctx context.Context, p SavedPrompt) (SavedPrompt, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = stamp(p.CreatedAt)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts (id, title, content, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, content = excluded.content`,
		p.ID, p.Title, p.Content, p.CreatedAt.UnixNano())
	if err != nil {
		return SavedPrompt{}, fmt.Errorf("save prompt: %w", err)
	}
	return p, nil
}

func (s *SQLite) GetPrompt(ctx context.Context, id string) (SavedPrompt, error) {
	var p SavedPrompt
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at FROM prompts WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &p.Content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedPrompt{}, fmt.Errorf("prompt %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SavedPrompt{}, fmt.Errorf("get prompt: %w", err)
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	return p, nil
}

func (s *SQLite) DeletePrompt(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("prompt %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) ListPrompts(ctx context.Context) ([]SavedPrompt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, content, created_at FROM prompts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var out []SavedPrompt
	for rows.Next() {
		var p SavedPrompt
		var created int64
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &created); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		p.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendGallery(ctx context.Context, g GalleryImage) (GalleryImage, error) {
	if g.ID == "" {
		g.ID = newID()
	}
	g.CreatedAt = stamp(g.CreatedAt)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gallery (id, image_id, operation, prompt, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.ID, g.ImageID, g.Operation, g.Prompt, g.CreatedAt.UnixNano())
	if err != nil {
		return GalleryImage{}, fmt.Errorf("append gallery: %w", err)
	}
	return g, nil
}

func (s *SQLite) GetGallery(ctx context.Context, id string) (GalleryImage, error) {
	var g GalleryImage
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, image_id, operation, prompt, created_at FROM gallery WHERE id = ?`, id).
		Scan(&g.ID, &g.ImageID, &g.Operation, &g.Prompt, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return GalleryImage{}, fmt.Errorf("gallery image %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return GalleryImage{}, fmt.Errorf("get gallery image: %w", err)
	}
	g.CreatedAt = time.Unix(0, created).UTC()
	return g, nil
}

func (s *SQLite) ListGallery(ctx context.Context, limit int) ([]GalleryImage, error) {
	query := `SELECT id, image_id, operation, prompt, created_at FROM gallery ORDER BY seq`
	args := []any{}
	if limit > 0 {
		query = `SELECT id, image_id, operation, prompt, created_at FROM (
			SELECT * FROM gallery ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list gallery: %w", err)
	}
	defer rows.Close()

	var out []GalleryImage
	for rows.Next() {
		var g GalleryImage
		var created int64
		if err := rows.Scan(&g.ID, &g.ImageID, &g.Operation, &g.Prompt, &created); err != nil {
			return nil, fmt.Errorf("scan gallery image: %w", err)
		}
		g.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveSession(ctx context.Context, rec SessionRecord) error {
	rec.UpdatedAt = stamp(rec.UpdatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		 WHERE excluded.updated_at >= sessions.updated_at`,
		rec.ID, rec.Data, rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLite) LoadSession(ctx context.Context, id string) (SessionRecord, error) {
	var rec SessionRecord
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, data, updated_at FROM sessions WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("load session: %w", err)
	}
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return rec, nil
}

func (s *SQLite) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var updated int64
		if err := rows.Scan(&rec.ID, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteSessionsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, before.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return res.RowsAffected()
}
