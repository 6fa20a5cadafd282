package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/docx"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/fileid"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/storage"
)

// ImportTemplate stores a .docx source as a new draft template (or active with auto
// activation) and records its declared placeholders and a rendered preview.
func (s *Service) ImportTemplate(ctx context.Context, name string, content []byte) (*models.Template, error) {
	tmpl := &models.Template{ID: uuid.New().String(), Name: name, Status: models.TemplateDraft}
	if err := s.loadSource(ctx, tmpl, content); err != nil {
		return nil, err
	}
	if s.autoActivate {
		tmpl.Status = models.TemplateActive
	}
	if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("failed to store template: %w", err)
	}
	s.logger.Info("template imported", zap.String("template_id", tmpl.ID), zap.Strings("placeholders", tmpl.Placeholders))
	return tmpl, nil
}

// loadSource parses content and sets the template's source, placeholders and preview.
func (s *Service) loadSource(ctx context.Context, tmpl *models.Template, content []byte) error {
	names, err := docx.Placeholders(content)
	if err != nil {
		return err
	}
	ref, err := s.blobs.Put(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to store template source: %w", err)
	}
	tmpl.SourceRef = ref
	tmpl.Placeholders = names
	tmpl.PreviewRef = ""
	result, err := s.renderer.Render(ctx, content)
	if err != nil {
		return err
	}
	if !result.Pending() {
		if tmpl.PreviewRef, err = s.blobs.Put(ctx, result.PDF); err != nil {
			return fmt.Errorf("failed to store preview: %w", err)
		}
	}
	return nil
}

// ImportFile imports the .docx at path. The template ID is derived from the absolute path
// so re-importing updates the same template, keeping its field map, signatories and
// status. It reports false when the stored source is already identical.
func (s *Service) ImportFile(ctx context.Context, path string, allowedExts []string) (*models.Template, bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("absolute path: %w", err)
	}
	if len(allowedExts) > 0 && !ExtensionAllowed(filepath.Ext(absPath), allowedExts) {
		return nil, false, fmt.Errorf("extension %q not in allowed list", filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, fmt.Errorf("not a regular file: %s", absPath)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("read file: %w", err)
	}

	id := fileid.TemplateID(absPath)
	tmpl, err := s.store.GetTemplate(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		tmpl = &models.Template{
			ID:         id,
			Name:       strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath)),
			Status:     models.TemplateDraft,
			SourcePath: absPath,
		}
		if err := s.loadSource(ctx, tmpl, content); err != nil {
			return nil, false, err
		}
		if s.autoActivate {
			tmpl.Status = models.TemplateActive
		}
		if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
			return nil, false, fmt.Errorf("failed to store template: %w", err)
		}
	case err != nil:
		return nil, false, err
	case tmpl.SourceRef == fileid.ContentRef(content):
		s.logger.Debug("template unchanged", zap.String("path", absPath))
		return tmpl, false, nil
	default:
		if err := s.loadSource(ctx, tmpl, content); err != nil {
			return nil, false, err
		}
		if err := s.store.UpdateTemplate(ctx, tmpl); err != nil {
			return nil, false, fmt.Errorf("failed to update template: %w", err)
		}
	}
	s.logger.Info("template file imported",
		zap.String("path", absPath),
		zap.String("template_id", tmpl.ID),
		zap.Strings("placeholders", tmpl.Placeholders),
	)
	return tmpl, true, nil
}

// ImportDirectory walks dir and imports every regular file whose extension is allowed.
// It returns the number of templates created or updated and the first error.
func (s *Service) ImportDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !ExtensionAllowed(filepath.Ext(path), allowedExts) || isLockFile(path) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		_, changed, importErr := s.ImportFile(ctx, path, allowedExts)
		if importErr != nil {
			return importErr
		}
		if changed {
			n++
		}
		return nil
	})
	return n, err
}

// ExtensionAllowed reports whether ext is in allowed. An empty list allows everything.
func ExtensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// isLockFile reports word processor owner files such as "~$contrato.docx".
func isLockFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "~$")
}

// Activate makes a template available for generation.
func (s *Service) Activate(ctx context.Context, templateID string) (*models.Template, error) {
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl.SourceRef == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSource, tmpl.ID)
	}
	return s.setStatus(ctx, tmpl, models.TemplateActive)
}

// Archive retires a template. Existing documents are unaffected.
func (s *Service) Archive(ctx context.Context, templateID string) (*models.Template, error) {
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return s.setStatus(ctx, tmpl, models.TemplateArchived)
}

func (s *Service) setStatus(ctx context.Context, tmpl *models.Template, status models.TemplateStatus) (*models.Template, error) {
	if tmpl.Status == status {
		return tmpl, nil
	}
	tmpl.Status = status
	if err := s.store.UpdateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	s.logger.Info("template status changed", zap.String("template_id", tmpl.ID), zap.String("status", string(status)))
	return tmpl, nil
}

// TemplateSettings replaces the configurable parts of a template. Nil fields are kept.
type TemplateSettings struct {
	Name              string                 `json:"name,omitempty" yaml:"name,omitempty"`
	FieldMap          map[string]string      `json:"field_map,omitempty" yaml:"field_map,omitempty"`
	Signatories       []models.SignatorySpec `json:"signatories,omitempty" yaml:"signatories,omitempty"`
	SequentialSigning *bool                  `json:"sequential_signing,omitempty" yaml:"sequential_signing,omitempty"`
}

// ConfigureTemplate updates the field map, signatories and ordering policy of a template.
func (s *Service) ConfigureTemplate(ctx context.Context, templateID string, settings TemplateSettings) (*models.Template, error) {
	if err := checkSignatories(settings.Signatories); err != nil {
		return nil, err
	}
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if settings.Name != "" {
		tmpl.Name = settings.Name
	}
	if settings.FieldMap != nil {
		tmpl.FieldMap = settings.FieldMap
	}
	if settings.Signatories != nil {
		tmpl.Signatories = settings.Signatories
	}
	if settings.SequentialSigning != nil {
		tmpl.SequentialSigning = *settings.SequentialSigning
	}
	if err := s.store.UpdateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func checkSignatories(specs []models.SignatorySpec) error {
	labels := make(map[string]bool, len(specs))
	for i, sp := range specs {
		if strings.TrimSpace(sp.Label) == "" {
			return fmt.Errorf("%w: signatory %d has no label", ErrInvalidSignatory, i)
		}
		if labels[sp.Label] {
			return fmt.Errorf("%w: duplicate label %q", ErrInvalidSignatory, sp.Label)
		}
		labels[sp.Label] = true
		g := sp.Geometry
		if g.Page < 1 || g.Width <= 0 || g.Height <= 0 || g.X < 0 || g.Y < 0 {
			return fmt.Errorf("%w: %q has invalid geometry", ErrInvalidSignatory, sp.Label)
		}
	}
	return nil
}

// ArchiveFile archives the template imported from path, if any.
func (s *Service) ArchiveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	_, err = s.Archive(ctx, fileid.TemplateID(absPath))
	return err
}
