package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loganrenz/narduk-grib/internal/domain"
)

// ErrNotFound reports a file ID with no catalog entry.
var ErrNotFound = errors.New("file not found")

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	size        INTEGER NOT NULL,
	source      TEXT NOT NULL,
	origin_url  TEXT NOT NULL DEFAULT '',
	uploaded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_uploaded_at ON files (uploaded_at DESC);
`

// Catalog persists file metadata in SQLite. Unlike a directory scan it
// preserves the original filename and the download origin.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (creating if needed) the catalog database at path.
func OpenCatalog(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the SQLite handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Ping verifies the catalog is reachable, for readiness checks.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Insert records a new file.
func (c *Catalog) Insert(ctx context.Context, info domain.FileInfo) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO files (id, filename, size, source, origin_url, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, info.Filename, info.Size, string(info.Source), info.OriginURL,
		info.UploadedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// Get returns the catalog entry for id, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (domain.FileInfo, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, filename, size, source, origin_url, uploaded_at
		 FROM files WHERE id = ?`, id)

	info, err := scanFile(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FileInfo{}, ErrNotFound
	}
	if err != nil {
		return domain.FileInfo{}, fmt.Errorf("get file: %w", err)
	}
	return info, nil
}

// List returns all catalog entries, newest first.
func (c *Catalog) List(ctx context.Context) ([]domain.FileInfo, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, filename, size, source, origin_url, uploaded_at
		 FROM files ORDER BY uploaded_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := []domain.FileInfo{}
	for rows.Next() {
		info, err := scanFile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// Delete removes the catalog entry for id, or returns ErrNotFound.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of cataloged files.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

func scanFile(scan func(dest ...any) error) (domain.FileInfo, error) {
	var (
		info   domain.FileInfo
		source string
		millis int64
	)
	if err := scan(&info.ID, &info.Filename, &info.Size, &source, &info.OriginURL, &millis); err != nil {
		return domain.FileInfo{}, err
	}
	info.Source = domain.FileSource(source)
	info.UploadedAt = time.UnixMilli(millis).UTC()
	return info, nil
}
