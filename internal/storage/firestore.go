package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
)

// errVersionMoved aborts a swap transaction whose precondition no longer holds.
var errVersionMoved = errors.New("document version moved")

// FirestoreStorage implements Storage on Cloud Firestore. Collections are named
// <prefix>_templates, <prefix>_documents and <prefix>_signatures.
type FirestoreStorage struct {
	client     *firestore.Client
	templates  *firestore.CollectionRef
	documents  *firestore.CollectionRef
	signatures *firestore.CollectionRef
}

// NewFirestoreClient creates a Firestore client for projectID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// NewFirestoreStorage uses client with the given collection prefix. Close closes client.
func NewFirestoreStorage(client *firestore.Client, prefix string) *FirestoreStorage {
	return &FirestoreStorage{
		client:     client,
		templates:  client.Collection(prefix + "_templates"),
		documents:  client.Collection(prefix + "_documents"),
		signatures: client.Collection(prefix + "_signatures"),
	}
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *FirestoreStorage) CreateTemplate(ctx context.Context, tmpl *models.Template) error {
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	_, err := s.templates.Doc(tmpl.ID).Create(ctx, tmpl)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("template %s: %w", tmpl.ID, ErrExists)
	}
	return err
}

func (s *FirestoreStorage) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	snap, err := s.templates.Doc(id).Get(ctx)
	if notFound(err) {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var tmpl models.Template
	if err := snap.DataTo(&tmpl); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return &tmpl, nil
}

func (s *FirestoreStorage) UpdateTemplate(ctx context.Context, tmpl *models.Template) error {
	tmpl.Touch(time.Now().UTC())
	ref := s.templates.Doc(tmpl.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, tmpl)
	})
	if notFound(err) {
		return fmt.Errorf("template %s: %w", tmpl.ID, ErrNotFound)
	}
	return err
}

func (s *FirestoreStorage) ListTemplates(ctx context.Context, offset, limit int) ([]*models.Template, error) {
	iter := s.templates.OrderBy("createdAt", firestore.Desc).Offset(offset).Limit(limit).Documents(ctx)
	defer iter.Stop()
	var out []*models.Template
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var tmpl models.Template
		if err := snap.DataTo(&tmpl); err != nil {
			return nil, fmt.Errorf("failed to decode template: %w", err)
		}
		out = append(out, &tmpl)
	}
	return out, nil
}

func (s *FirestoreStorage) CreateDocument(ctx context.Context, doc *models.DocumentRecord) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.Version = 1
	_, err := s.documents.Doc(doc.ID).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("document %s: %w", doc.ID, ErrExists)
	}
	return err
}

func (s *FirestoreStorage) GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error) {
	snap, err := s.documents.Doc(id).Get(ctx)
	if notFound(err) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var doc models.DocumentRecord
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}

func (s *FirestoreStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.DocumentRecord, error) {
	iter := s.documents.OrderBy("createdAt", firestore.Desc).Offset(offset).Limit(limit).Documents(ctx)
	defer iter.Stop()
	var out []*models.DocumentRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var doc models.DocumentRecord
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, &doc)
	}
	return out, nil
}

// SwapDocument reads the stored version and writes inside one transaction; Firestore
// retries the transaction on contention, so a moved version is reported as a lost race.
func (s *FirestoreStorage) SwapDocument(ctx context.Context, doc *models.DocumentRecord, expectedVersion int64) (bool, error) {
	ref := s.documents.Doc(doc.ID)
	next := doc.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		v, err := snap.DataAt("version")
		if err != nil {
			return err
		}
		if current, _ := v.(int64); current != expectedVersion {
			return errVersionMoved
		}
		return tx.Set(ref, next)
	})
	switch {
	case errors.Is(err, errVersionMoved):
		return false, nil
	case notFound(err):
		return false, fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
	case err != nil:
		return false, err
	}
	doc.Version = next.Version
	doc.UpdatedAt = next.UpdatedAt
	return true, nil
}

type signatureEntry struct {
	Ref       string    `firestore:"ref"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (s *FirestoreStorage) SetDefaultSignature(ctx context.Context, signerID, ref string) error {
	_, err := s.signatures.Doc(signerID).Set(ctx, signatureEntry{Ref: ref, UpdatedAt: time.Now().UTC()})
	return err
}

func (s *FirestoreStorage) DefaultSignature(ctx context.Context, signerID string) (string, error) {
	snap, err := s.signatures.Doc(signerID).Get(ctx)
	if notFound(err) {
		return "", fmt.Errorf("signature of %s: %w", signerID, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	var e signatureEntry
	if err := snap.DataTo(&e); err != nil {
		return "", fmt.Errorf("failed to decode signature: %w", err)
	}
	return e.Ref, nil
}

func (s *FirestoreStorage) count(ctx context.Context, col *firestore.CollectionRef) (int64, error) {
	res, err := col.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, err
	}
	v, ok := res["all"]
	if !ok {
		return 0, fmt.Errorf("count aggregation missing")
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case interface{ GetIntegerValue() int64 }:
		return n.GetIntegerValue(), nil
	}
	return 0, fmt.Errorf("unexpected count type %T", v)
}

func (s *FirestoreStorage) CountTemplates(ctx context.Context) (int64, error) {
	return s.count(ctx, s.templates)
}

func (s *FirestoreStorage) CountDocuments(ctx context.Context) (int64, error) {
	return s.count(ctx, s.documents)
}

func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
