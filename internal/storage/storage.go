// Package storage defines the persistence interface for templates and document records.
package storage

import (
	"context"
	"errors"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
)

// ErrNotFound is returned when a template, document or signature does not exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned when creating an entity whose ID is already taken.
var ErrExists = errors.New("already exists")

// Storage defines template, document record and signature registry persistence.
type Storage interface {
	// Template operations
	CreateTemplate(ctx context.Context, tmpl *models.Template) error
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	UpdateTemplate(ctx context.Context, tmpl *models.Template) error
	ListTemplates(ctx context.Context, offset, limit int) ([]*models.Template, error)

	// Document record operations
	CreateDocument(ctx context.Context, doc *models.DocumentRecord) error
	GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.DocumentRecord, error)

	// SwapDocument stores doc only if the stored version still equals expectedVersion.
	// A lost race is reported as (false, nil) so callers can reload and re-evaluate.
	// On success doc.Version is expectedVersion+1.
	SwapDocument(ctx context.Context, doc *models.DocumentRecord, expectedVersion int64) (bool, error)

	// Signature registry
	SetDefaultSignature(ctx context.Context, signerID, ref string) error
	DefaultSignature(ctx context.Context, signerID string) (string, error)

	// Stats
	CountTemplates(ctx context.Context) (int64, error)
	CountDocuments(ctx context.Context) (int64, error)

	Close() error
}
