package variables

import (
	"context"
	"fmt"
	"strings"

	"github.com/hectronix2005/Valkiria-ECM-sub002/pkg/utils"
)

// FieldResolver resolves a dotted "source.field" path against a Context. Missing data is
// reported as a nil value, not an error; errors are reserved for lookup failures.
type FieldResolver interface {
	Resolve(ctx context.Context, bundle Context, path string) (any, error)
}

// FieldResolverFunc adapts a function to FieldResolver.
type FieldResolverFunc func(ctx context.Context, bundle Context, path string) (any, error)

func (f FieldResolverFunc) Resolve(ctx context.Context, bundle Context, path string) (any, error) {
	return f(ctx, bundle, path)
}

// MapResolver resolves paths over the map-shaped records of a Context. Nested maps are
// walked segment by segment; keys match exactly or after folding.
type MapResolver struct{}

func (MapResolver) Resolve(ctx context.Context, bundle Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, field, ok := SplitPath(path)
	if !ok {
		return nil, fmt.Errorf("invalid field path %q", path)
	}
	var cur any = map[string]any(bundle.Record(src))
	for _, seg := range strings.Split(field, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, nil
		}
		cur = lookup(m, seg)
		if cur == nil {
			return nil, nil
		}
	}
	return cur, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, m != nil
	case Record:
		return m, m != nil
	}
	return nil, false
}

func lookup(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	folded := utils.Fold(key)
	for k, v := range m {
		if utils.Fold(k) == folded {
			return v
		}
	}
	return nil
}
