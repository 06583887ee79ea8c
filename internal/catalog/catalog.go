package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document is one PDF the retrieval service accepted.
type Document struct {
	File       string
	Chunks     int
	Path       string
	UploadedAt int64
}

// Catalog remembers uploaded documents so answers can be restricted to one
// source across restarts. It holds no chat content.
type Catalog struct {
	db     *sql.DB
	mu     sync.Mutex
	now    func() time.Time
}

func Open(dbPath string, reset bool) (*Catalog, error) {
	if reset {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(dbPath + suffix)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	c := &Catalog{db: db, now: time.Now}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS documents (
			file TEXT PRIMARY KEY,
			chunks INTEGER NOT NULL DEFAULT 0,
			path TEXT,
			uploaded_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents(uploaded_at);`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Record upserts d by file name. A zero UploadedAt is stamped with now.
func (c *Catalog) Record(ctx context.Context, d Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d.File = strings.TrimSpace(d.File)
	if d.File == "" {
		return errors.New("record document: empty file name")
	}
	if d.UploadedAt == 0 {
		d.UploadedAt = c.now().Unix()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO documents (file, chunks, path, uploaded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file) DO UPDATE SET
			chunks = excluded.chunks,
			path = excluded.path,
			uploaded_at = excluded.uploaded_at
	`, d.File, d.Chunks, d.Path, d.UploadedAt)
	if err != nil {
		return fmt.Errorf("record document %s: %w", d.File, err)
	}
	return nil
}

// List returns documents newest first.
func (c *Catalog) List(ctx context.Context, limit int) ([]Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 {
		limit = 200
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT file, chunks, COALESCE(path, ''), uploaded_at
		FROM documents
		ORDER BY uploaded_at DESC, file
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]Document, 0, 16)
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.File, &d.Chunks, &d.Path, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return out, nil
}

// FormatUnix renders an upload time for the status bar.
func FormatUnix(ts int64) string {
	if ts <= 0 {
		return "n/a"
	}
	return time.Unix(ts, 0).Local().Format("2006-01-02 15:04")
}
