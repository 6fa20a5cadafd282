package placeholder

import (
	"sort"
	"strings"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/pkg/utils"
	"go.uber.org/zap"
)

// Splicer substitutes placeholder tokens with values from a variable table.
type Splicer struct {
	values map[string]string
	folded map[string]string
	logger *zap.Logger
}

// SplicerOption configures a Splicer.
type SplicerOption func(*Splicer)

// WithLogger sets a logger; unresolved tokens are reported at warn level.
func WithLogger(l *zap.Logger) SplicerOption {
	return func(s *Splicer) { s.logger = l }
}

// NewSplicer formats every non-nil value of table with format. Nil values are treated as
// absent so their tokens stay visible in the output.
func NewSplicer(table models.VariableTable, format models.ValueFormat, opts ...SplicerOption) *Splicer {
	s := &Splicer{
		values: make(map[string]string, len(table)),
		folded: make(map[string]string, len(table)),
	}
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := format.FormatValue(table[k])
		if !ok {
			continue
		}
		s.values[k] = v
		f := utils.Fold(k)
		if _, dup := s.folded[f]; !dup {
			s.folded[f] = k
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup resolves a token name: exact key first, then the trimmed key, then a
// diacritic- and case-insensitive comparison.
func (s *Splicer) Lookup(name string) (string, bool) {
	if v, ok := s.values[name]; ok {
		return v, true
	}
	trimmed := strings.TrimSpace(name)
	if v, ok := s.values[trimmed]; ok {
		return v, true
	}
	if key, ok := s.folded[utils.Fold(name)]; ok {
		return s.values[key], true
	}
	return "", false
}

// SpliceParagraph replaces every resolvable token in p and returns one record per token.
// Edits are applied right to left so offsets from the single scan stay valid.
func (s *Splicer) SpliceParagraph(p *Paragraph) []models.Substitution {
	matches := Locate(p)
	if len(matches) == 0 {
		return nil
	}
	subs := make([]models.Substitution, len(matches))
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		value, ok := s.Lookup(m.Name)
		subs[i] = models.Substitution{Pattern: m.Pattern, Value: value, Found: ok}
		if !ok {
			if s.logger != nil {
				s.logger.Warn("placeholder not found", zap.String("pattern", m.Pattern))
			}
			continue
		}
		apply(m, value)
		if s.logger != nil {
			s.logger.Debug("placeholder replaced",
				zap.String("pattern", m.Pattern),
				zap.String("value", utils.Truncate(value, 40)),
				zap.Bool("same_node", m.SameNode()),
				zap.Int("nodes", len(m.Spans)),
			)
		}
	}
	return subs
}

// Splice runs SpliceParagraph over every paragraph.
func (s *Splicer) Splice(paragraphs []*Paragraph) []models.Substitution {
	var all []models.Substitution
	for _, p := range paragraphs {
		all = append(all, s.SpliceParagraph(p)...)
	}
	return all
}
