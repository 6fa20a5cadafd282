// Package docx maps the text of a .docx container onto the placeholder model and writes
// spliced text back without touching any other byte of the package.
package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/placeholder"
)

// documentXMLPath is the default path to the main document body inside a .docx zip.
const documentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

// mainContentType is the content type of the main document part.
const mainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// partNameRe extracts PartName from Override elements in [Content_Types].xml.
var partNameRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(mainContentType) + `"`)

// partNameRe2 handles the case where ContentType appears before PartName.
var partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(mainContentType) + `"[^>]+PartName="([^"]+)"`)

// headerFooterRe matches header and footer part names relative to the main part directory.
var headerFooterRe = regexp.MustCompile(`^(header|footer)\d*\.xml$`)

// ErrNoMainPart is wrapped in a StructuralError when the container has no document body.
var ErrNoMainPart = errors.New("main document part not found")

// StructuralError reports an unreadable container or a malformed XML part.
type StructuralError struct {
	Part string
	Err  error
}

func (e *StructuralError) Error() string {
	if e.Part == "" {
		return fmt.Sprintf("docx: invalid container: %v", e.Err)
	}
	return fmt.Sprintf("docx: malformed part %s: %v", e.Part, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// Document is an opened .docx container.
type Document struct {
	zr    *zip.Reader
	parts []*Part
}

// Open reads a .docx container and parses its body, header and footer parts.
func Open(content []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &StructuralError{Err: err}
	}

	mainPath := findMainDocumentPath(zr)
	if mainPath == "" {
		mainPath = documentXMLPath
	}

	var main *zip.File
	var extra []*zip.File
	dir := path.Dir(mainPath)
	for _, f := range zr.File {
		switch {
		case f.Name == mainPath:
			main = f
		case path.Dir(f.Name) == dir && headerFooterRe.MatchString(path.Base(f.Name)):
			extra = append(extra, f)
		}
	}
	if main == nil {
		return nil, &StructuralError{Err: fmt.Errorf("%w: %s", ErrNoMainPart, mainPath)}
	}
	sort.SliceStable(extra, func(i, j int) bool { return extra[i].Name < extra[j].Name })

	doc := &Document{zr: zr}
	for _, f := range append([]*zip.File{main}, extra...) {
		data, err := readFile(f)
		if err != nil {
			return nil, &StructuralError{Part: f.Name, Err: err}
		}
		part, err := parsePart(f.Name, data)
		if err != nil {
			return nil, &StructuralError{Part: f.Name, Err: err}
		}
		doc.parts = append(doc.parts, part)
	}
	return doc, nil
}

// Parts returns the body part followed by headers and footers.
func (d *Document) Parts() []*Part {
	return d.parts
}

// Paragraphs returns the paragraphs of every part in document order.
func (d *Document) Paragraphs() []*placeholder.Paragraph {
	var out []*placeholder.Paragraph
	for _, p := range d.parts {
		out = append(out, p.Paragraphs...)
	}
	return out
}

// Fill splices every part independently and returns the substitution log.
func (d *Document) Fill(s *placeholder.Splicer) []models.Substitution {
	var log []models.Substitution
	for _, p := range d.parts {
		for _, sub := range s.Splice(p.Paragraphs) {
			sub.Part = p.Name
			log = append(log, sub)
		}
	}
	return log
}

// Bytes writes the container. Entries whose text did not change are copied raw.
func (d *Document) Bytes() ([]byte, error) {
	changed := make(map[string][]byte)
	for _, p := range d.parts {
		if data, ok := p.render(); ok {
			changed[p.Name] = data
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range d.zr.File {
		data, ok := changed[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("failed to copy %s: %w", f.Name, err)
			}
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   f.Method,
			Modified: f.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", f.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close container: %w", err)
	}
	return buf.Bytes(), nil
}

// Fill opens content, substitutes placeholders and returns the new container.
func Fill(content []byte, s *placeholder.Splicer) ([]byte, []models.Substitution, error) {
	doc, err := Open(content)
	if err != nil {
		return nil, nil, err
	}
	log := doc.Fill(s)
	out, err := doc.Bytes()
	if err != nil {
		return nil, nil, err
	}
	return out, log, nil
}

// Placeholders lists the distinct placeholder names of a source document in first-seen order.
func Placeholders(content []byte) ([]string, error) {
	doc, err := Open(content)
	if err != nil {
		return nil, err
	}
	return placeholder.Names(doc.Paragraphs()), nil
}

// findMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findMainDocumentPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		data, err := readFile(f)
		if err != nil {
			return ""
		}
		content := string(data)
		if m := partNameRe.FindStringSubmatch(content); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
		if m := partNameRe2.FindStringSubmatch(content); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
		return ""
	}
	return ""
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
