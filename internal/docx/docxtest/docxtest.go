// Package docxtest builds small .docx containers for tests.
package docxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"strings"
)

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/><Override PartName="/%s" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

// Styles is a fixed non-text part used to check that untouched entries survive.
const Styles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:style w:type="paragraph" w:styleId="Normal"/></w:styles>`

// File is one container entry.
type File struct {
	Name string
	Body string
}

// Paragraph returns a <w:p> with one bold run per fragment.
func Paragraph(runs ...string) string {
	var b strings.Builder
	b.WriteString(`<w:p w:rsidR="00A1">`)
	for _, r := range runs {
		b.WriteString(`<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">`)
		_ = xml.EscapeText(&b, []byte(r))
		b.WriteString(`</w:t></w:r>`)
	}
	b.WriteString(`</w:p>`)
	return b.String()
}

// Part wraps paragraphs in a root element of the given local name (document, hdr, ftr).
func Part(root string, paragraphs ...string) string {
	body := strings.Join(paragraphs, "")
	if root == "document" {
		body = "<w:body>" + body + "</w:body>"
	}
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:` + root + ` xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		body + `</w:` + root + `>`
}

// Build writes a container with [Content_Types].xml pointing at mainPath followed by files.
func Build(mainPath string, files ...File) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	all := append([]File{{Name: "[Content_Types].xml", Body: strings.Replace(contentTypes, "%s", mainPath, 1)}}, files...)
	for _, f := range all {
		w, err := zw.Create(f.Name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(f.Body)); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Minimal returns a container whose body holds one paragraph per argument, each
// argument split into runs on "|".
func Minimal(paragraphs ...string) []byte {
	var ps []string
	for _, p := range paragraphs {
		ps = append(ps, Paragraph(strings.Split(p, "|")...))
	}
	return Build("word/document.xml",
		File{Name: "word/document.xml", Body: Part("document", ps...)},
		File{Name: "word/styles.xml", Body: Styles},
	)
}

// Entry returns the raw bytes of one container entry, or nil.
func Entry(container []byte, name string) []byte {
	zr, err := zip.NewReader(bytes.NewReader(container), int64(len(container)))
	if err != nil {
		return nil
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		var out bytes.Buffer
		_, _ = out.ReadFrom(rc)
		_ = rc.Close()
		return out.Bytes()
	}
	return nil
}
