package docx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/placeholder"
)

// wordPrefix is the conventional WordprocessingML namespace prefix. DrawingML text
// (a:p, a:r, a:t) is deliberately not matched.
const wordPrefix = "w"

// Part is one parsed XML part of the container.
type Part struct {
	Name       string
	Paragraphs []*placeholder.Paragraph

	data  []byte
	texts []textRef
}

// textRef ties a text node to the byte range of its content in the part.
type textRef struct {
	node     *placeholder.TextNode
	orig     string
	start    int // first byte after the <w:t ...> start tag
	end      int // first byte of the </w:t> end tag
	tagEnd   int // offset just past the start tag
	preserve bool
}

type frame struct {
	para *placeholder.Paragraph
	run  *placeholder.Run
}

// parsePart builds the paragraph model of data, recording where each <w:t> lives.
func parsePart(name string, data []byte) (*Part, error) {
	p := &Part{Name: name, data: data}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	var (
		frames []frame
		open   []xml.Name
		cur    *textRef
		text   strings.Builder
	)
	for {
		before := dec.InputOffset()
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		after := dec.InputOffset()

		switch t := tok.(type) {
		case xml.StartElement:
			open = append(open, t.Name)
			if t.Name.Space != wordPrefix {
				continue
			}
			switch t.Name.Local {
			case "p":
				para := &placeholder.Paragraph{}
				p.Paragraphs = append(p.Paragraphs, para)
				frames = append(frames, frame{para: para})
			case "r":
				if len(frames) > 0 {
					top := &frames[len(frames)-1]
					top.run = &placeholder.Run{}
					top.para.Runs = append(top.para.Runs, top.run)
				}
			case "t":
				if len(frames) == 0 || frames[len(frames)-1].run == nil {
					continue
				}
				// A self-closing <w:t/> has no content range to rewrite.
				if bytes.HasSuffix(data[before:after], []byte("/>")) {
					continue
				}
				cur = &textRef{start: int(after), tagEnd: int(after), preserve: hasPreserve(t.Attr)}
				text.Reset()
			}
		case xml.CharData:
			if cur != nil {
				text.Write(t)
			}
		case xml.EndElement:
			if len(open) == 0 || open[len(open)-1] != t.Name {
				return nil, fmt.Errorf("unexpected end element %s:%s at offset %d", t.Name.Space, t.Name.Local, before)
			}
			open = open[:len(open)-1]
			if t.Name.Space != wordPrefix {
				continue
			}
			switch t.Name.Local {
			case "t":
				if cur == nil {
					continue
				}
				cur.end = int(before)
				cur.orig = text.String()
				cur.node = &placeholder.TextNode{Text: cur.orig}
				top := frames[len(frames)-1]
				top.run.Nodes = append(top.run.Nodes, cur.node)
				p.texts = append(p.texts, *cur)
				cur = nil
			case "r":
				if len(frames) > 0 {
					frames[len(frames)-1].run = nil
				}
			case "p":
				if len(frames) > 0 {
					frames = frames[:len(frames)-1]
				}
			}
		}
	}
	if len(open) > 0 {
		return nil, fmt.Errorf("unclosed element %s:%s", open[len(open)-1].Space, open[len(open)-1].Local)
	}
	return p, nil
}

func hasPreserve(attrs []xml.Attr) bool {
	for _, a := range attrs {
		if a.Name.Space == "xml" && a.Name.Local == "space" {
			return true
		}
	}
	return false
}

type edit struct {
	at, end int
	text    string
}

// render rewrites the content of every text node that changed. The second result is
// false when the part is unchanged.
func (p *Part) render() ([]byte, bool) {
	var edits []edit
	for _, ref := range p.texts {
		if ref.node.Text == ref.orig {
			continue
		}
		var esc bytes.Buffer
		_ = xml.EscapeText(&esc, []byte(ref.node.Text))
		edits = append(edits, edit{at: ref.start, end: ref.end, text: esc.String()})
		if !ref.preserve && needsPreserve(ref.node.Text) {
			// Insert before the closing '>' of the start tag.
			edits = append(edits, edit{at: ref.tagEnd - 1, end: ref.tagEnd - 1, text: ` xml:space="preserve"`})
		}
	}
	if len(edits) == 0 {
		return p.data, false
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].at > edits[j].at })

	out := append([]byte(nil), p.data...)
	for _, e := range edits {
		out = append(out[:e.at], append([]byte(e.text), out[e.end:]...)...)
	}
	return out, true
}

func needsPreserve(s string) bool {
	return s != strings.TrimSpace(s)
}
