package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
)

// SQLiteStorage implements Storage using SQLite. Entities are stored as JSON with their
// status and version in indexed columns.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers so compare-and-set updates never see SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		data TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	CREATE INDEX IF NOT EXISTS idx_documents_template ON documents(template_id);

	CREATE TABLE IF NOT EXISTS signatures (
		signer_id TEXT PRIMARY KEY,
		ref TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

func isConstraint(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

// CreateTemplate inserts a template.
func (s *SQLiteStorage) CreateTemplate(ctx context.Context, tmpl *models.Template) error {
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	data, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, name, status, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tmpl.ID, tmpl.Name, string(tmpl.Status), string(data), tmpl.CreatedAt, tmpl.UpdatedAt,
	)
	if isConstraint(err) {
		return fmt.Errorf("template %s: %w", tmpl.ID, ErrExists)
	}
	return err
}

// GetTemplate returns a template by ID.
func (s *SQLiteStorage) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM templates WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var tmpl models.Template
	if err := json.Unmarshal([]byte(data), &tmpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	return &tmpl, nil
}

// UpdateTemplate replaces an existing template.
func (s *SQLiteStorage) UpdateTemplate(ctx context.Context, tmpl *models.Template) error {
	tmpl.Touch(time.Now().UTC())
	data, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE templates SET name = ?, status = ?, data = ?, updated_at = ? WHERE id = ?`,
		tmpl.Name, string(tmpl.Status), string(data), tmpl.UpdatedAt, tmpl.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("template %s: %w", tmpl.ID, ErrNotFound)
	}
	return nil
}

// ListTemplates returns templates, newest first.
func (s *SQLiteStorage) ListTemplates(ctx context.Context, offset, limit int) ([]*models.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM templates ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var tmpl models.Template
		if err := json.Unmarshal([]byte(data), &tmpl); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template: %w", err)
		}
		out = append(out, &tmpl)
	}
	return out, rows.Err()
}

// CreateDocument inserts a document record at version 1.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.DocumentRecord) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.Version = 1
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, template_id, status, version, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TemplateID, string(doc.Status), doc.Version, string(data), doc.CreatedAt, doc.UpdatedAt,
	)
	if isConstraint(err) {
		return fmt.Errorf("document %s: %w", doc.ID, ErrExists)
	}
	return err
}

// GetDocument returns a document record by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(data)
}

func decodeDocument(data string) (*models.DocumentRecord, error) {
	var doc models.DocumentRecord
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns document records, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DocumentRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// SwapDocument is a single conditional UPDATE keyed on (id, version).
func (s *SQLiteStorage) SwapDocument(ctx context.Context, doc *models.DocumentRecord, expectedVersion int64) (bool, error) {
	next := doc.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to marshal document: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, version = ?, data = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(next.Status), next.Version, string(data), next.UpdatedAt, doc.ID, expectedVersion,
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, doc.ID).Scan(&exists)
		if err == sql.ErrNoRows {
			return false, fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
		}
		return false, err
	}
	doc.Version = next.Version
	doc.UpdatedAt = next.UpdatedAt
	return true, nil
}

// SetDefaultSignature registers the signature image a signer uses when none is given.
func (s *SQLiteStorage) SetDefaultSignature(ctx context.Context, signerID, ref string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signatures (signer_id, ref, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(signer_id) DO UPDATE SET ref = excluded.ref, updated_at = excluded.updated_at`,
		signerID, ref, time.Now().UTC(),
	)
	return err
}

// DefaultSignature returns the registered signature reference of a signer.
func (s *SQLiteStorage) DefaultSignature(ctx context.Context, signerID string) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx, `SELECT ref FROM signatures WHERE signer_id = ?`, signerID).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("signature of %s: %w", signerID, ErrNotFound)
	}
	return ref, err
}

// CountTemplates returns the total number of templates.
func (s *SQLiteStorage) CountTemplates(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&count)
	return count, err
}

// CountDocuments returns the total number of document records.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
