package variables

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/pkg/utils"
)

// Reason classifies a missing placeholder.
type Reason string

const (
	// ReasonUnmapped means no usable field path is configured for the placeholder.
	ReasonUnmapped Reason = "unmapped"
	// ReasonUnvalued means the path resolved to nil or an empty string.
	ReasonUnvalued Reason = "unvalued"
)

// Missing is one placeholder that cannot be filled.
type Missing struct {
	Name   string `json:"name"`
	Path   string `json:"path,omitempty"`
	Source Source `json:"source"`
	Reason Reason `json:"reason"`
}

// Report lists missing placeholders in declaration order.
type Report struct {
	Missing []Missing `json:"missing"`
}

// OK reports whether every placeholder can be filled.
func (r Report) OK() bool { return len(r.Missing) == 0 }

// Names returns the names of the missing placeholders.
func (r Report) Names() []string {
	names := make([]string, len(r.Missing))
	for i, m := range r.Missing {
		names[i] = m.Name
	}
	return names
}

// BySource groups missing placeholders by record source.
func (r Report) BySource() map[Source][]Missing {
	out := make(map[Source][]Missing)
	for _, m := range r.Missing {
		out[m.Source] = append(out[m.Source], m)
	}
	return out
}

// String renders the report grouped by source, one line per source.
func (r Report) String() string {
	if r.OK() {
		return "all placeholders resolved"
	}
	groups := r.BySource()
	var b strings.Builder
	for _, src := range Sources {
		ms := groups[src]
		if len(ms) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		parts := make([]string, len(ms))
		for i, m := range ms {
			parts[i] = fmt.Sprintf("%s (%s)", m.Name, m.Reason)
		}
		fmt.Fprintf(&b, "%s: %s", src, strings.Join(parts, ", "))
	}
	return b.String()
}

// fieldPath returns the configured path for name, matching exactly or after folding.
func fieldPath(fieldMap map[string]string, name string) string {
	if p, ok := fieldMap[name]; ok {
		return strings.TrimSpace(p)
	}
	folded := utils.Fold(name)
	keys := make([]string, 0, len(fieldMap))
	for k := range fieldMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if utils.Fold(k) == folded {
			return strings.TrimSpace(fieldMap[k])
		}
	}
	return ""
}

// resolveAll resolves every declared placeholder once. It never mutates tmpl or bundle.
func resolveAll(ctx context.Context, r FieldResolver, tmpl *models.Template, bundle Context) (models.VariableTable, Report, error) {
	table := make(models.VariableTable, len(tmpl.Placeholders))
	var report Report
	for _, name := range tmpl.Placeholders {
		path := fieldPath(tmpl.FieldMap, name)
		src, _, ok := SplitPath(path)
		if !ok {
			report.Missing = append(report.Missing, Missing{Name: name, Path: path, Source: SourceUnmapped, Reason: ReasonUnmapped})
			continue
		}
		v, err := r.Resolve(ctx, bundle, path)
		if err != nil {
			return nil, Report{}, fmt.Errorf("failed to resolve %s (%s): %w", name, path, err)
		}
		if models.IsEmptyValue(v) {
			report.Missing = append(report.Missing, Missing{Name: name, Path: path, Source: src, Reason: ReasonUnvalued})
			continue
		}
		table[name] = v
	}
	return table, report, nil
}

// Validate classifies every declared placeholder of tmpl that cannot be filled from bundle.
// It has no side effects and returns identical reports for identical inputs.
func Validate(ctx context.Context, r FieldResolver, tmpl *models.Template, bundle Context) (Report, error) {
	_, report, err := resolveAll(ctx, r, tmpl, bundle)
	return report, err
}

// Resolve builds the variable table for tmpl. The report is non-empty when some
// placeholders are missing; the table then holds only the resolved ones.
func Resolve(ctx context.Context, r FieldResolver, tmpl *models.Template, bundle Context) (models.VariableTable, Report, error) {
	return resolveAll(ctx, r, tmpl, bundle)
}
