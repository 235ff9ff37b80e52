// Package store keeps program images in a SQLite database, indexed by
// content hash and by name.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/vainilla/image"
)

var log = commonlog.GetLogger("vainilla.store")

var (
	ErrNotFound  = errors.New("image not found")
	ErrAmbiguous = errors.New("ambiguous hash prefix")
)

const schemaImages = `
CREATE TABLE IF NOT EXISTS images (
	hash       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	data       BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`

const schemaNameIndex = `CREATE INDEX IF NOT EXISTS images_by_name ON images (name, created_at)`

// Entry describes a stored image without decoding it.
type Entry struct {
	Hash      string
	Name      string
	Size      int // instruction count
	CreatedAt time.Time
}

// Store is a SQLite-backed image store. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: cannot create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{schemaImages, schemaNameIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: init schema: %w", err)
		}
	}

	log.Debugf("opened image store %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Put stores img and returns its hash. Storing an image whose code is
// already present keeps the existing row.
func (s *Store) Put(ctx context.Context, img *image.Image) (string, error) {
	if err := img.Verify(); err != nil {
		return "", err
	}
	data, err := image.Marshal(img)
	if err != nil {
		return "", err
	}

	hash := img.Hash.String()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO images (hash, name, size, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		hash, img.Name, img.Len(), data, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("store: put %s: %w", img.Hash.Short(), err)
	}
	log.Infof("stored image %s (%s, %d instructions)", img.Hash.Short(), img.Name, img.Len())
	return hash, nil
}

// Resolve expands a hash prefix to a full hash.
func (s *Store) Resolve(ctx context.Context, prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || strings.Trim(prefix, "0123456789abcdef") != "" {
		return "", fmt.Errorf("store: %w: %q", ErrNotFound, prefix)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM images WHERE substr(hash, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("store: resolve %s: %w", prefix, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return "", fmt.Errorf("store: resolve %s: %w", prefix, err)
		}
		matches = append(matches, h)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("store: resolve %s: %w", prefix, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("store: %w: %s", ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("store: %w: %s", ErrAmbiguous, prefix)
	}
}

// Get loads the image whose hash starts with prefix.
func (s *Store) Get(ctx context.Context, prefix string) (*image.Image, error) {
	hash, err := s.Resolve(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM images WHERE hash = ?`, hash).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: %w: %s", ErrNotFound, hash)
		}
		return nil, fmt.Errorf("store: get %s: %w", hash, err)
	}
	return image.Unmarshal(data)
}

// GetByName loads the most recently stored image with the given name.
func (s *Store) GetByName(ctx context.Context, name string) (*image.Image, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM images WHERE name = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: %w: name %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("store: get %q: %w", name, err)
	}
	return image.Unmarshal(data)
}

// List returns every stored image, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, name, size, created_at FROM images ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Hash, &e.Name, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("store: list: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the image whose hash starts with prefix.
func (s *Store) Delete(ctx context.Context, prefix string) error {
	hash, err := s.Resolve(ctx, prefix)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("store: delete %s: %w", hash, err)
	}
	log.Infof("deleted image %s", hash[:12])
	return nil
}
