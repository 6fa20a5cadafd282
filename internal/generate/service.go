// Package generate fills templates into document records: variable resolution, placeholder
// splicing, rendering and signature roster setup. It also manages the template lifecycle.
package generate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/blob"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/docx"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/placeholder"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/render"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/signing"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/storage"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/variables"
)

// Renderer converts a filled .docx to PDF.
type Renderer interface {
	Render(ctx context.Context, content []byte) (render.Result, error)
}

// Service generates documents from templates.
type Service struct {
	store        storage.Storage
	blobs        blob.Store
	resolver     variables.FieldResolver
	renderer     Renderer
	workflow     *signing.Workflow
	format       models.ValueFormat
	autoActivate bool
	now          func() time.Time
	logger       *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithValueFormat sets how dates and booleans are written into documents.
func WithValueFormat(f models.ValueFormat) Option { return func(s *Service) { s.format = f } }

// WithAutoActivate makes imported templates active as soon as they have a source.
func WithAutoActivate(on bool) Option { return func(s *Service) { s.autoActivate = on } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService wires the generation pipeline. workflow is used to stamp documents that
// need no signature and to attach deferred renders.
func NewService(
	store storage.Storage,
	blobs blob.Store,
	resolver variables.FieldResolver,
	renderer Renderer,
	workflow *signing.Workflow,
	opts ...Option,
) *Service {
	s := &Service{
		store:    store,
		blobs:    blobs,
		resolver: resolver,
		renderer: renderer,
		workflow: workflow,
		format:   models.DefaultValueFormat,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// generatable loads a template and checks it can produce documents.
func (s *Service) generatable(ctx context.Context, templateID string) (*models.Template, error) {
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl.Status != models.TemplateActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrTemplateInactive, tmpl.ID, tmpl.Status)
	}
	if tmpl.SourceRef == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSource, tmpl.ID)
	}
	return tmpl, nil
}

// Validate reports the placeholders of a template that bundle cannot fill.
func (s *Service) Validate(ctx context.Context, templateID string, bundle variables.Context) (variables.Report, error) {
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return variables.Report{}, err
	}
	return variables.Validate(ctx, s.resolver, tmpl, bundle)
}

// Generate fills the template from bundle, renders it and creates a document record with
// the template's signature roster. A render that finds no converter still creates the
// record, with PDFStatus pending and the filled source retained.
func (s *Service) Generate(ctx context.Context, templateID string, bundle variables.Context) (*models.DocumentRecord, error) {
	tmpl, err := s.generatable(ctx, templateID)
	if err != nil {
		return nil, err
	}
	table, report, err := variables.Resolve(ctx, s.resolver, tmpl, bundle)
	if err != nil {
		return nil, err
	}
	if !report.OK() {
		return nil, &ValidationError{Report: report}
	}

	source, err := s.blobs.Get(ctx, tmpl.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load template source: %w", err)
	}
	splicer := placeholder.NewSplicer(table, s.format, placeholder.WithLogger(s.logger))
	filled, subs, err := docx.Fill(source, splicer)
	if err != nil {
		return nil, err
	}
	sourceRef, err := s.blobs.Put(ctx, filled)
	if err != nil {
		return nil, fmt.Errorf("failed to store filled document: %w", err)
	}

	result, err := s.renderer.Render(ctx, filled)
	if err != nil {
		return nil, err
	}
	now := s.now()
	doc := &models.DocumentRecord{
		ID:            uuid.New().String(),
		TemplateID:    tmpl.ID,
		SourceRef:     sourceRef,
		PDFStatus:     result.Status,
		Sequential:    tmpl.SequentialSigning,
		Slots:         slotsFor(tmpl.Signatories),
		Variables:     map[string]any(table),
		Substitutions: subs,
	}
	if !result.Pending() {
		if doc.DraftRef, err = s.blobs.Put(ctx, result.PDF); err != nil {
			return nil, fmt.Errorf("failed to store draft: %w", err)
		}
	}
	doc.Status = models.DocumentPendingSignatures
	if doc.RequiredSigned() {
		doc.Status = models.DocumentCompleted
		doc.CompletedAt = &now
	}
	doc.Touch(now)
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	s.logger.Info("document generated",
		zap.String("document_id", doc.ID),
		zap.String("template_id", tmpl.ID),
		zap.String("pdf_status", string(doc.PDFStatus)),
		zap.Int("slots", len(doc.Slots)),
	)

	if doc.Status == models.DocumentCompleted && doc.HasDraft() && s.workflow != nil {
		return s.workflow.RetryStamp(ctx, doc.ID)
	}
	return doc, nil
}

// slotsFor creates one pending slot per signatory, ordered by position.
func slotsFor(specs []models.SignatorySpec) []models.SignatureSlot {
	sorted := append([]models.SignatorySpec(nil), specs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	slots := make([]models.SignatureSlot, len(sorted))
	for i, sp := range sorted {
		slots[i] = models.SignatureSlot{
			Role:       sp.Role,
			Label:      sp.Label,
			Required:   sp.Required,
			Position:   sp.Position,
			Geometry:   sp.Geometry,
			Status:     models.SlotPending,
			AssigneeID: sp.AssigneeID,
			ClaimRole:  sp.ClaimRole,
		}
	}
	return slots
}

// AttachRender stores a PDF produced by a deferred render job and attaches it as the
// document's draft. A completed document is stamped right away.
func (s *Service) AttachRender(ctx context.Context, documentID string, pdf []byte) (*models.DocumentRecord, error) {
	if err := render.Verify(pdf); err != nil {
		return nil, fmt.Errorf("invalid render: %w", err)
	}
	ref, err := s.blobs.Put(ctx, pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to store draft: %w", err)
	}
	return s.workflow.AttachDraft(ctx, documentID, ref)
}

// Rerender retries the render pipeline for a document whose render is pending.
func (s *Service) Rerender(ctx context.Context, documentID string) (*models.DocumentRecord, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.HasDraft() {
		return doc, nil
	}
	source, err := s.blobs.Get(ctx, doc.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load filled document: %w", err)
	}
	result, err := s.renderer.Render(ctx, source)
	if err != nil {
		return nil, err
	}
	if result.Pending() {
		return nil, ErrRenderPending
	}
	doc, err = s.AttachRender(ctx, documentID, result.PDF)
	if errors.Is(err, signing.ErrDraftExists) {
		return s.store.GetDocument(ctx, documentID)
	}
	return doc, err
}
