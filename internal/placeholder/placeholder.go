// Package placeholder locates {{Name}} tokens in paragraphs made of formatted runs and
// splices resolved values in place, even when a token is fragmented across runs.
package placeholder

import (
	"regexp"
	"sort"
	"strings"
)

// tokenPattern matches {{Name}}; names may not contain braces, so a stray "{{" without a
// matching "}}" never matches and stays verbatim, and "{{{Name}}}" keeps its outer braces
// as literal text around the token.
var tokenPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// TextNode is the smallest unit of text inside a run.
type TextNode struct {
	Text string
}

// Run is a span of text nodes sharing one formatting state.
type Run struct {
	Nodes []*TextNode
}

// Paragraph is an ordered list of runs.
type Paragraph struct {
	Runs []*Run
}

// Text returns the logical text of the paragraph.
func (p *Paragraph) Text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, n := range r.Nodes {
			b.WriteString(n.Text)
		}
	}
	return b.String()
}

// NodeSpan is one text node and its [Start, End) offsets in the paragraph's logical text.
type NodeSpan struct {
	Node  *TextNode
	Start int
	End   int
}

// Match is one located token. Spans lists the nodes the token overlaps, in run order.
type Match struct {
	Pattern string
	Name    string
	Start   int
	End     int
	Spans   []NodeSpan
}

// SameNode reports whether the token lies entirely inside one text node.
func (m *Match) SameNode() bool {
	return len(m.Spans) == 1
}

// runMap builds the logical text of p and the offsets of each text node in it.
func runMap(p *Paragraph) (string, []NodeSpan) {
	var (
		b     strings.Builder
		spans []NodeSpan
	)
	for _, r := range p.Runs {
		for _, n := range r.Nodes {
			start := b.Len()
			b.WriteString(n.Text)
			spans = append(spans, NodeSpan{Node: n, Start: start, End: b.Len()})
		}
	}
	return b.String(), spans
}

// Locate returns every token in p, scanning the whole paragraph before any mutation.
func Locate(p *Paragraph) []Match {
	text, spans := runMap(p)
	if !strings.Contains(text, "{{") {
		return nil
	}
	idx := tokenPattern.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return nil
	}
	matches := make([]Match, 0, len(idx))
	for _, loc := range idx {
		m := Match{
			Pattern: text[loc[0]:loc[1]],
			Name:    text[loc[2]:loc[3]],
			Start:   loc[0],
			End:     loc[1],
		}
		m.Spans = overlapping(spans, m.Start, m.End)
		matches = append(matches, m)
	}
	return matches
}

// overlapping returns the non-empty spans intersecting [start, end).
func overlapping(spans []NodeSpan, start, end int) []NodeSpan {
	first := sort.Search(len(spans), func(i int) bool { return spans[i].End > start })
	var out []NodeSpan
	for i := first; i < len(spans) && spans[i].Start < end; i++ {
		if spans[i].Start == spans[i].End {
			continue
		}
		out = append(out, spans[i])
	}
	return out
}

// apply replaces the token span of m with value. The first overlapping node keeps its
// prefix, receives the value, and keeps any suffix past the token; later nodes lose only
// the characters that belonged to the token.
func apply(m Match, value string) {
	for i, sp := range m.Spans {
		text := sp.Node.Text
		localStart := max(m.Start, sp.Start) - sp.Start
		localEnd := min(m.End, sp.End) - sp.Start
		if i == 0 {
			sp.Node.Text = text[:localStart] + value + text[localEnd:]
			continue
		}
		sp.Node.Text = text[:localStart] + text[localEnd:]
	}
}

// Names returns the distinct token names found in paragraphs, in first-seen order.
func Names(paragraphs []*Paragraph) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range paragraphs {
		for _, m := range Locate(p) {
			name := strings.TrimSpace(m.Name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
