package generate

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/blob"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/config"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/docx/docxtest"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/render"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/render/pdftest"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/signing"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/stamp"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/storage"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/variables"
)

// fakeRenderer returns pdf, or a pending result when pdf is nil.
type fakeRenderer struct {
	pdf   []byte
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, _ []byte) (render.Result, error) {
	f.calls++
	if f.pdf == nil {
		return render.Result{Status: models.PDFPending}, nil
	}
	return render.Result{PDF: f.pdf, Status: models.PDFCompleted, Strategy: "fake"}, nil
}

type fixture struct {
	svc      *Service
	store    *storage.SQLiteStorage
	blobs    *blob.MemoryStore
	renderer *fakeRenderer
	workflow *signing.Workflow
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "valkiria.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	blobs := blob.NewMemoryStore()
	stamper, err := stamp.New(blobs, stamp.BlobImages{Store: blobs}, config.StampConfig{LabelPrefix: "Firmado por"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	wf := signing.NewWorkflow(store, stamper, signing.WithRegistry(store))
	r := &fakeRenderer{}
	return &fixture{
		svc:      NewService(store, blobs, variables.MapResolver{}, r, wf, opts...),
		store:    store,
		blobs:    blobs,
		renderer: r,
		workflow: wf,
	}
}

var certificate = docxtest.Minimal(
	"Certificamos que |{{Nom|bre}}| trabaja desde el {{Fecha}}.",
	"Cargo: {{Cargo}}",
)

func (f *fixture) activeTemplate(t *testing.T, signatories ...models.SignatorySpec) *models.Template {
	t.Helper()
	ctx := context.Background()
	tmpl, err := f.svc.ImportTemplate(ctx, "Certificado laboral", certificate)
	if err != nil {
		t.Fatal(err)
	}
	seq := true
	if _, err := f.svc.ConfigureTemplate(ctx, tmpl.ID, TemplateSettings{
		FieldMap: map[string]string{
			"Nombre": "employee.full_name",
			"Fecha":  "employee.hire_date",
			"Cargo":  "employee.position",
		},
		Signatories:       signatories,
		SequentialSigning: &seq,
	}); err != nil {
		t.Fatal(err)
	}
	tmpl, err = f.svc.Activate(ctx, tmpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	return tmpl
}

func box(page int) models.Geometry {
	return models.Geometry{Page: page, X: 72, Y: 120, Width: 160, Height: 60}
}

func employee() variables.Context {
	return variables.Context{
		Kind: variables.KindCertification,
		Subject: variables.Record{
			"full_name": "Ana Pérez",
			"hire_date": time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC),
			"position":  "Analista",
		},
	}
}

func TestImportTemplate(t *testing.T) {
	f := newFixture(t)
	tmpl, err := f.svc.ImportTemplate(context.Background(), "Certificado", certificate)
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.Status != models.TemplateDraft {
		t.Errorf("Status = %s, want draft", tmpl.Status)
	}
	if want := []string{"Nombre", "Fecha", "Cargo"}; !reflect.DeepEqual(tmpl.Placeholders, want) {
		t.Errorf("Placeholders = %v, want %v", tmpl.Placeholders, want)
	}
	if tmpl.SourceRef == "" || tmpl.PreviewRef != "" {
		t.Errorf("SourceRef = %q, PreviewRef = %q", tmpl.SourceRef, tmpl.PreviewRef)
	}

	_, err = f.svc.ImportTemplate(context.Background(), "broken", []byte("not a zip"))
	if err == nil {
		t.Fatal("expected error for unreadable source")
	}
}

func TestGenerate_degradesToPending(t *testing.T) {
	f := newFixture(t)
	f.svc.renderer = render.NewPipeline(nil)
	tmpl := f.activeTemplate(t, models.SignatorySpec{Role: "hr", Label: "RRHH", Required: true, Geometry: box(1), ClaimRole: "hr"})

	doc, err := f.svc.Generate(context.Background(), tmpl.ID, employee())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if doc.PDFStatus != models.PDFPending || doc.HasDraft() {
		t.Errorf("PDFStatus = %s, DraftRef = %q", doc.PDFStatus, doc.DraftRef)
	}
	if doc.Status != models.DocumentPendingSignatures {
		t.Errorf("Status = %s", doc.Status)
	}
	filled, err := f.blobs.Get(context.Background(), doc.SourceRef)
	if err != nil {
		t.Fatalf("filled source not retained: %v", err)
	}
	body := string(docxtest.Entry(filled, "word/document.xml"))
	for _, want := range []string{"Ana Pérez", "01/02/2021", "Analista"} {
		if !strings.Contains(body, want) {
			t.Errorf("filled body missing %q", want)
		}
	}
	if strings.Contains(body, "{{") {
		t.Errorf("filled body still has placeholders: %s", body)
	}
	if len(doc.Substitutions) != 3 {
		t.Errorf("Substitutions = %+v", doc.Substitutions)
	}
}

func TestGenerate_validationError(t *testing.T) {
	f := newFixture(t)
	tmpl := f.activeTemplate(t)
	bundle := employee()
	bundle.Subject["hire_date"] = nil

	_, err := f.svc.Generate(context.Background(), tmpl.ID, bundle)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if got := verr.Report.Names(); !reflect.DeepEqual(got, []string{"Fecha"}) {
		t.Errorf("missing = %v, want [Fecha]", got)
	}
	if n, _ := f.store.CountDocuments(context.Background()); n != 0 {
		t.Errorf("documents = %d, want 0", n)
	}

	report, err := f.svc.Validate(context.Background(), tmpl.ID, bundle)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report, verr.Report) {
		t.Errorf("Validate = %+v, want %+v", report, verr.Report)
	}
}

func TestGenerate_templateNotReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl, err := f.svc.ImportTemplate(ctx, "Certificado", certificate)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Generate(ctx, tmpl.ID, employee()); !errors.Is(err, ErrTemplateInactive) {
		t.Errorf("draft template: err = %v, want ErrTemplateInactive", err)
	}

	empty := &models.Template{ID: "tpl-empty", Status: models.TemplateActive}
	if err := f.store.CreateTemplate(ctx, empty); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Generate(ctx, empty.ID, employee()); !errors.Is(err, ErrNoSource) {
		t.Errorf("no source: err = %v, want ErrNoSource", err)
	}
	if _, err := f.svc.Activate(ctx, empty.ID); !errors.Is(err, ErrNoSource) {
		t.Errorf("Activate: err = %v, want ErrNoSource", err)
	}

	if _, err := f.svc.Archive(ctx, tmpl.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Generate(ctx, tmpl.ID, employee()); !errors.Is(err, ErrTemplateInactive) {
		t.Errorf("archived template: err = %v, want ErrTemplateInactive", err)
	}
}

func signaturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 120, 40))
	for x := 10; x < 110; x++ {
		img.Set(x, 20, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestGenerate_signAndStamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.renderer.pdf = pdftest.Minimal(1)
	tmpl := f.activeTemplate(t,
		models.SignatorySpec{Role: "employee", Label: "Empleado", Required: true, Position: 1, Geometry: box(1), AssigneeID: "u-ana"},
		models.SignatorySpec{Role: "hr", Label: "RRHH", Required: true, Position: 0, Geometry: models.Geometry{Page: 1, X: 320, Y: 120, Width: 160, Height: 60}, ClaimRole: "hr"},
	)

	doc, err := f.svc.Generate(ctx, tmpl.ID, employee())
	if err != nil {
		t.Fatal(err)
	}
	if !doc.HasDraft() || doc.PDFStatus != models.PDFCompleted {
		t.Fatalf("draft = %q, status %s", doc.DraftRef, doc.PDFStatus)
	}
	if doc.Slots[0].Label != "RRHH" || doc.Slots[1].Label != "Empleado" {
		t.Fatalf("slots not ordered by position: %+v", doc.Slots)
	}

	sig, err := f.blobs.Put(ctx, signaturePNG(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetDefaultSignature(ctx, "u-ana", sig); err != nil {
		t.Fatal(err)
	}

	ana := signing.Signer{ID: "u-ana", Name: "Ana Pérez"}
	_, err = f.workflow.Sign(ctx, signing.SignRequest{DocumentID: doc.ID, Signer: ana})
	var wait *signing.WaitingForError
	if !errors.As(err, &wait) || !reflect.DeepEqual(wait.Labels, []string{"RRHH"}) {
		t.Fatalf("err = %v, want waiting for RRHH", err)
	}

	hr := signing.Signer{ID: "u-hr", Name: "Luis Gómez", Roles: []string{"hr"}}
	if _, err := f.workflow.Sign(ctx, signing.SignRequest{DocumentID: doc.ID, Signer: hr}); !errors.Is(err, signing.ErrNoSignatureConfigured) {
		t.Fatalf("err = %v, want ErrNoSignatureConfigured", err)
	}
	if _, err := f.workflow.Sign(ctx, signing.SignRequest{DocumentID: doc.ID, Signer: hr, SignatureRef: sig}); err != nil {
		t.Fatal(err)
	}
	doc, err = f.workflow.Sign(ctx, signing.SignRequest{DocumentID: doc.ID, Signer: ana})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != models.DocumentCompleted || doc.FinalRef == "" || doc.FinalRef == doc.DraftRef {
		t.Fatalf("status %s, final %q, draft %q, stamp error %q", doc.Status, doc.FinalRef, doc.DraftRef, doc.StampError)
	}
	final, err := f.blobs.Get(ctx, doc.FinalRef)
	if err != nil {
		t.Fatal(err)
	}
	if err := render.Verify(final); err != nil {
		t.Errorf("final artifact: %v", err)
	}
}

func TestGenerate_noRequiredSlotsCompletes(t *testing.T) {
	f := newFixture(t)
	f.renderer.pdf = pdftest.Minimal(1)
	tmpl := f.activeTemplate(t, models.SignatorySpec{Role: "witness", Label: "Testigo", Geometry: box(1)})

	doc, err := f.svc.Generate(context.Background(), tmpl.ID, employee())
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != models.DocumentCompleted || doc.CompletedAt == nil {
		t.Fatalf("Status = %s", doc.Status)
	}
	if doc.FinalRef == "" {
		t.Errorf("FinalRef not set, stamp error %q", doc.StampError)
	}
}

func TestRerenderAndAttachRender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := f.activeTemplate(t, models.SignatorySpec{Role: "hr", Label: "RRHH", Required: true, Geometry: box(1), ClaimRole: "hr"})

	doc, err := f.svc.Generate(ctx, tmpl.ID, employee())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Rerender(ctx, doc.ID); !errors.Is(err, ErrRenderPending) {
		t.Fatalf("err = %v, want ErrRenderPending", err)
	}
	if _, err := f.svc.AttachRender(ctx, doc.ID, []byte("%PDF-1.4 garbage")); err == nil {
		t.Fatal("expected invalid render to be rejected")
	}

	f.renderer.pdf = pdftest.Minimal(1)
	doc, err = f.svc.Rerender(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.HasDraft() || doc.PDFStatus != models.PDFCompleted {
		t.Fatalf("draft = %q, status %s", doc.DraftRef, doc.PDFStatus)
	}
	calls := f.renderer.calls
	if _, err := f.svc.Rerender(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	if f.renderer.calls != calls {
		t.Error("rendered again although a draft exists")
	}
}

func TestConfigureTemplate_invalidSignatories(t *testing.T) {
	f := newFixture(t)
	tmpl, err := f.svc.ImportTemplate(context.Background(), "Contrato", certificate)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		specs []models.SignatorySpec
	}{
		{"missing label", []models.SignatorySpec{{Geometry: box(1)}}},
		{"duplicate label", []models.SignatorySpec{{Label: "A", Geometry: box(1)}, {Label: "A", Geometry: box(1)}}},
		{"zero page", []models.SignatorySpec{{Label: "A", Geometry: box(0)}}},
		{"empty box", []models.SignatorySpec{{Label: "A", Geometry: models.Geometry{Page: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ConfigureTemplate(context.Background(), tmpl.ID, TemplateSettings{Signatories: tt.specs})
			if !errors.Is(err, ErrInvalidSignatory) {
				t.Errorf("err = %v, want ErrInvalidSignatory", err)
			}
		})
	}
}

func TestImportFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "certificado.docx")
	if err := os.WriteFile(path, certificate, 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl, changed, err := f.svc.ImportFile(ctx, path, []string{".docx"})
	if err != nil || !changed {
		t.Fatalf("ImportFile = %v, %v", changed, err)
	}
	if tmpl.Name != "certificado" || !strings.HasPrefix(tmpl.ID, "tpl-") {
		t.Errorf("template = %+v", tmpl)
	}
	if _, err := f.svc.ConfigureTemplate(ctx, tmpl.ID, TemplateSettings{FieldMap: map[string]string{"Nombre": "employee.full_name"}}); err != nil {
		t.Fatal(err)
	}

	_, changed, err = f.svc.ImportFile(ctx, path, nil)
	if err != nil || changed {
		t.Fatalf("unchanged re-import = %v, %v", changed, err)
	}

	if err := os.WriteFile(path, docxtest.Minimal("Hola {{Nombre}} {{Apellido}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	updated, changed, err := f.svc.ImportFile(ctx, path, nil)
	if err != nil || !changed {
		t.Fatalf("changed re-import = %v, %v", changed, err)
	}
	if updated.ID != tmpl.ID {
		t.Errorf("ID changed: %s -> %s", tmpl.ID, updated.ID)
	}
	if !reflect.DeepEqual(updated.Placeholders, []string{"Nombre", "Apellido"}) {
		t.Errorf("Placeholders = %v", updated.Placeholders)
	}
	if updated.FieldMap["Nombre"] != "employee.full_name" {
		t.Errorf("field map lost: %v", updated.FieldMap)
	}

	if _, _, err := f.svc.ImportFile(ctx, filepath.Join(dir, "notes.txt"), []string{".docx"}); err == nil {
		t.Error("expected extension error")
	}
}

func TestImportDirectory(t *testing.T) {
	f := newFixture(t, WithAutoActivate(true))
	dir := t.TempDir()
	files := map[string][]byte{
		"a.docx":          certificate,
		"sub/b.DOCX":      docxtest.Minimal("{{Empresa}}"),
		"~$a.docx":        []byte("lock"),
		"readme.txt":      []byte("ignored"),
		"sub/deep/c.docx": docxtest.Minimal("sin variables"),
	}
	for name, data := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := f.svc.ImportDirectory(context.Background(), dir, []string{"docx"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("imported %d, want 3", n)
	}
	list, err := f.store.ListTemplates(context.Background(), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, tmpl := range list {
		if tmpl.Status != models.TemplateActive {
			t.Errorf("%s not auto-activated", tmpl.Name)
		}
	}

	n, err = f.svc.ImportDirectory(context.Background(), dir, []string{"docx"})
	if err != nil || n != 0 {
		t.Errorf("second pass = %d, %v; want 0", n, err)
	}
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".docx", []string{".docx"}, true},
		{".DOCX", []string{"docx"}, true},
		{".doc", []string{".docx"}, false},
		{".pdf", nil, true},
	}
	for _, tt := range tests {
		if got := ExtensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("ExtensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}
