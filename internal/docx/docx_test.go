package docx

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/docx/docxtest"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/placeholder"
)

func texts(t *testing.T, content []byte) []string {
	t.Helper()
	doc, err := Open(content)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var out []string
	for _, p := range doc.Paragraphs() {
		out = append(out, p.Text())
	}
	return out
}

func splicer(table models.VariableTable) *placeholder.Splicer {
	return placeholder.NewSplicer(table, models.DefaultValueFormat)
}

func TestFill_fragmentedBodyAndHeader(t *testing.T) {
	src := docxtest.Build("word/document.xml",
		docxtest.File{Name: "word/document.xml", Body: docxtest.Part("document",
			docxtest.Paragraph("Hola {{Nom", "bre}}", ", bienvenido."),
		)},
		docxtest.File{Name: "word/header1.xml", Body: docxtest.Part("hdr", docxtest.Paragraph("{{", "Empresa}}"))},
		docxtest.File{Name: "word/footer1.xml", Body: docxtest.Part("ftr", docxtest.Paragraph("Página 1"))},
		docxtest.File{Name: "word/styles.xml", Body: docxtest.Styles},
	)

	out, log, err := Fill(src, splicer(models.VariableTable{"Nombre": "Ana", "Empresa": "Valkiria S.A."}))
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}

	got := texts(t, out)
	// Headers and footers follow the body in part-name order.
	want := []string{"Hola Ana, bienvenido.", "Página 1", "Valkiria S.A."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("texts = %q, want %q", got, want)
	}
	if len(log) != 2 || log[0].Part != "word/document.xml" || log[1].Part != "word/header1.xml" {
		t.Errorf("log = %+v", log)
	}
	if !bytes.Equal(docxtest.Entry(out, "word/styles.xml"), []byte(docxtest.Styles)) {
		t.Error("styles.xml changed")
	}
	if !bytes.Equal(docxtest.Entry(out, "word/footer1.xml"), docxtest.Entry(src, "word/footer1.xml")) {
		t.Error("footer1.xml changed")
	}
	body := string(docxtest.Entry(out, "word/document.xml"))
	if n := strings.Count(body, "<w:b/>"); n != 3 {
		t.Errorf("run formatting count = %d, want 3", n)
	}
}

func TestFill_roundTripWithoutValues(t *testing.T) {
	src := docxtest.Minimal("Sin {{Valor}} aquí", "texto & más")
	out, log, err := Fill(src, splicer(nil))
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if !bytes.Equal(docxtest.Entry(out, "word/document.xml"), docxtest.Entry(src, "word/document.xml")) {
		t.Error("document.xml changed without substitutions")
	}
	if len(log) != 1 || log[0].Found {
		t.Errorf("log = %+v", log)
	}
}

func TestFill_escapesValues(t *testing.T) {
	src := docxtest.Minimal("{{Razon}}")
	out, _, err := Fill(src, splicer(models.VariableTable{"Razon": `A & B <C> "D"`}))
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	body := string(docxtest.Entry(out, "word/document.xml"))
	if !strings.Contains(body, "A &amp; B &lt;C&gt;") {
		t.Errorf("value not escaped: %s", body)
	}
	if got := texts(t, out); got[0] != `A & B <C> "D"` {
		t.Errorf("text = %q", got[0])
	}
}

func TestFill_addsPreserveForEdgeWhitespace(t *testing.T) {
	body := docxtest.Part("document", `<w:p><w:r><w:t>{{X}}</w:t></w:r></w:p>`)
	src := docxtest.Build("word/document.xml", docxtest.File{Name: "word/document.xml", Body: body})

	out, _, err := Fill(src, splicer(models.VariableTable{"X": " padded "}))
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	xmlOut := string(docxtest.Entry(out, "word/document.xml"))
	if !strings.Contains(xmlOut, `<w:t xml:space="preserve"> padded </w:t>`) {
		t.Errorf("missing preserve attribute: %s", xmlOut)
	}
}

func TestFill_nestedParagraphs(t *testing.T) {
	// A text box paragraph nested inside a run of the outer paragraph.
	body := docxtest.Part("document",
		`<w:p><w:r><w:t>{{A</w:t><w:pict><w:txbxContent><w:p><w:r><w:t>{{B}}</w:t></w:r></w:p></w:txbxContent></w:pict><w:t>}}</w:t></w:r></w:p>`)
	src := docxtest.Build("word/document.xml", docxtest.File{Name: "word/document.xml", Body: body})

	out, _, err := Fill(src, splicer(models.VariableTable{"A": "outer", "B": "inner"}))
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	got := texts(t, out)
	if len(got) != 2 || got[0] != "outer" || got[1] != "inner" {
		t.Errorf("texts = %q", got)
	}
}

func TestFill_ignoresDrawingText(t *testing.T) {
	body := docxtest.Part("document",
		`<w:p><w:r><w:t>{{A}}</w:t></w:r></w:p><a:p xmlns:a="urn:drawing"><a:r><a:t>{{A}}</a:t></a:r></a:p>`)
	src := docxtest.Build("word/document.xml", docxtest.File{Name: "word/document.xml", Body: body})

	out, log, err := Fill(src, splicer(models.VariableTable{"A": "x"}))
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if len(log) != 1 {
		t.Errorf("log = %+v", log)
	}
	if !strings.Contains(string(docxtest.Entry(out, "word/document.xml")), "<a:t>{{A}}</a:t>") {
		t.Error("drawing text was modified")
	}
}

func TestOpen_customMainPart(t *testing.T) {
	src := docxtest.Build("word/document2.xml",
		docxtest.File{Name: "word/document2.xml", Body: docxtest.Part("document", docxtest.Paragraph("{{Cargo}}"))},
	)
	names, err := Placeholders(src)
	if err != nil {
		t.Fatalf("Placeholders: %v", err)
	}
	if len(names) != 1 || names[0] != "Cargo" {
		t.Errorf("names = %v", names)
	}
}

func TestPlaceholders(t *testing.T) {
	src := docxtest.Build("word/document.xml",
		docxtest.File{Name: "word/document.xml", Body: docxtest.Part("document",
			docxtest.Paragraph("{{Nombre}} ", "{{Fe", "cha}}"),
			docxtest.Paragraph("{{Nombre}}"),
		)},
		docxtest.File{Name: "word/footer2.xml", Body: docxtest.Part("ftr", docxtest.Paragraph("{{Ciudad}}"))},
	)
	names, err := Placeholders(src)
	if err != nil {
		t.Fatalf("Placeholders: %v", err)
	}
	if strings.Join(names, ",") != "Nombre,Fecha,Ciudad" {
		t.Errorf("names = %v", names)
	}
}

func TestOpen_structuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		part    string
	}{
		{"not a zip", []byte("plain text"), ""},
		{"malformed xml", docxtest.Build("word/document.xml",
			docxtest.File{Name: "word/document.xml", Body: `<w:document xmlns:w="x"><w:body><w:p>`}), "word/document.xml"},
		{"mismatched tags", docxtest.Build("word/document.xml",
			docxtest.File{Name: "word/document.xml", Body: `<w:document xmlns:w="x"><w:p></w:r></w:document>`}), "word/document.xml"},
		{"no main part", docxtest.Build("word/document.xml",
			docxtest.File{Name: "word/styles.xml", Body: docxtest.Styles}), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.content)
			var se *StructuralError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want StructuralError", err)
			}
			if se.Part != tt.part {
				t.Errorf("part = %q, want %q", se.Part, tt.part)
			}
			if se.Unwrap() == nil {
				t.Error("cause not preserved")
			}
		})
	}

	_, err := Open(docxtest.Build("word/document.xml"))
	if !errors.Is(err, ErrNoMainPart) {
		t.Errorf("err = %v, want ErrNoMainPart", err)
	}
}
