package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/blob"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/config"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/generate"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/signing"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/variables"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templates, err := s.storage.CountTemplates(ctx)
	if err != nil {
		s.fail(w, "status: count templates failed", err)
		return
	}
	documents, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.fail(w, "status: count documents failed", err)
		return
	}
	resp := map[string]any{
		"templates": templates,
		"documents": documents,
	}
	if s.config != nil {
		resp["config"] = map[string]any{
			"storage_backend": s.config.Storage.Backend,
			"blob_backend":    s.config.Blob.Backend,
			"remote_render":   s.config.Render.RemoteURL != "",
		}
		if s.config.Blob.Backend == config.BackendDisk {
			if n, err := blob.DiskUsageBytes(s.config.Blob.Dir, s.config.Storage.DatabasePath); err == nil {
				resp["disk_usage_bytes"] = n
			}
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// page reads offset and limit query parameters.
func page(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return offset, limit
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	offset, limit := page(r)
	list, err := s.storage.ListTemplates(r.Context(), offset, limit)
	if err != nil {
		s.fail(w, "list templates failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"templates": list})
}

// handleImportTemplate accepts a multipart form with a "file" field, or a raw .docx body
// with the name in the "name" query parameter.
func (s *Server) handleImportTemplate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	name := r.URL.Query().Get("name")
	var content []byte
	var err error
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			s.respondError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()
		content, err = io.ReadAll(file)
		if name == "" {
			name = r.FormValue("name")
		}
		if name == "" {
			name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}
	} else {
		content, err = io.ReadAll(r.Body)
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	tmpl, err := s.generator.ImportTemplate(r.Context(), name, content)
	if err != nil {
		s.fail(w, "import template failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.storage.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get template failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleConfigureTemplate(w http.ResponseWriter, r *http.Request) {
	var settings generate.TemplateSettings
	if !s.decode(w, r, &settings) {
		return
	}
	tmpl, err := s.generator.ConfigureTemplate(r.Context(), chi.URLParam(r, "id"), settings)
	if err != nil {
		s.fail(w, "configure template failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.generator.Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "activate template failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.generator.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "archive template failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var bundle variables.Context
	if !s.decode(w, r, &bundle) {
		return
	}
	report, err := s.generator.Validate(r.Context(), chi.URLParam(r, "id"), bundle)
	if err != nil {
		s.fail(w, "validate failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"ok":      report.OK(),
		"missing": report.BySource(),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var bundle variables.Context
	if !s.decode(w, r, &bundle) {
		return
	}
	doc, err := s.generator.Generate(r.Context(), chi.URLParam(r, "id"), bundle)
	if err != nil {
		s.fail(w, "generate failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, limit := page(r)
	list, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": list})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.storage.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// handleArtifact streams the source, draft or final artifact of a document.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	doc, err := s.storage.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get document failed", err)
		return
	}
	var ref, contentType, ext string
	switch chi.URLParam(r, "kind") {
	case "source":
		ref, contentType, ext = doc.SourceRef, docxContentType, ".docx"
	case "draft":
		ref, contentType, ext = doc.DraftRef, "application/pdf", ".pdf"
	case "final":
		ref, contentType, ext = doc.FinalRef, "application/pdf", ".pdf"
	default:
		s.respondError(w, http.StatusBadRequest, "kind must be source, draft or final")
		return
	}
	if ref == "" {
		s.respondError(w, http.StatusNotFound, "artifact not available")
		return
	}
	data, err := s.blobs.Get(r.Context(), ref)
	if err != nil {
		s.fail(w, "get artifact failed", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.ID+ext+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type signRequest struct {
	Signer struct {
		ID    string   `json:"id"`
		Name  string   `json:"name"`
		Roles []string `json:"roles"`
	} `json:"signer"`
	SignatureRef string           `json:"signature_ref,omitempty"`
	Geometry     *models.Geometry `json:"geometry,omitempty"`
	Role         string           `json:"role,omitempty"`
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Signer.ID == "" {
		s.respondError(w, http.StatusBadRequest, "signer.id is required")
		return
	}
	doc, err := s.workflow.Sign(r.Context(), signing.SignRequest{
		DocumentID:   chi.URLParam(r, "id"),
		Signer:       signing.Signer{ID: req.Signer.ID, Name: req.Signer.Name, Roles: req.Signer.Roles},
		SignatureRef: req.SignatureRef,
		Geometry:     req.Geometry,
		Role:         req.Role,
	})
	if err != nil {
		s.fail(w, "sign failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	doc, err := s.workflow.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "cancel failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

// handleRender attaches an externally rendered PDF body, or retries the render pipeline
// when the body is empty.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	pdf, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	var doc *models.DocumentRecord
	if len(pdf) == 0 {
		doc, err = s.generator.Rerender(r.Context(), id)
	} else {
		doc, err = s.generator.AttachRender(r.Context(), id, pdf)
	}
	if err != nil {
		s.fail(w, "render failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStamp(w http.ResponseWriter, r *http.Request) {
	doc, err := s.workflow.RetryStamp(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "stamp failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

// handleRegisterSignature stores the image body as the signer's default signature.
func (s *Server) handleRegisterSignature(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	img, err := io.ReadAll(r.Body)
	if err != nil || len(img) == 0 {
		s.respondError(w, http.StatusBadRequest, "signature image is required")
		return
	}
	if ct := http.DetectContentType(img); ct != "image/png" && ct != "image/jpeg" {
		s.respondError(w, http.StatusBadRequest, "signature must be a PNG or JPEG image")
		return
	}
	ref, err := s.blobs.Put(r.Context(), img)
	if err != nil {
		s.fail(w, "store signature failed", err)
		return
	}
	signerID := chi.URLParam(r, "id")
	if err := s.storage.SetDefaultSignature(r.Context(), signerID, ref); err != nil {
		s.fail(w, "register signature failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"signer_id": signerID, "signature_ref": ref})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail logs unexpected errors and writes the mapped status.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondJSON(w, status, bodyFor(err))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
