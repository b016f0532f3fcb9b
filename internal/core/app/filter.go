package app

import (
	"fmt"

	"mixmirror/internal/engine/graph"
	"mixmirror/internal/shared/observability"

	"github.com/gobwas/glob"
)

// PropertyFilter strips property keys that should never reach storage, such
// as counters the audio server rewrites on every update.
type PropertyFilter struct {
	patterns []glob.Glob
}

func NewPropertyFilter(patterns []string) (*PropertyFilter, error) {
	f := &PropertyFilter{}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile property pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

func (f *PropertyFilter) Drops(key string) bool {
	if f == nil {
		return false
	}
	for _, g := range f.patterns {
		if g.Match(key) {
			return true
		}
	}
	return false
}

// Apply returns m with dropped keys removed from its property dictionary.
// The caller's maps are never modified.
func (f *PropertyFilter) Apply(m graph.Mutation) graph.Mutation {
	if f == nil || len(f.patterns) == 0 {
		return m
	}
	switch v := m.(type) {
	case graph.UpsertClient:
		v.Client.Props = f.filter(v.Client.Props)
		return v
	case graph.UpsertNode:
		v.Node.Props = f.filter(v.Node.Props)
		return v
	case graph.UpsertDevice:
		v.Device.Props = f.filter(v.Device.Props)
		return v
	default:
		return m
	}
}

func (f *PropertyFilter) filter(props graph.Properties) graph.Properties {
	if props == nil {
		return nil
	}
	var out graph.Properties
	for key := range props {
		if !f.Drops(key) {
			continue
		}
		if out == nil {
			out = props.Clone()
		}
		delete(out, key)
		observability.PropertiesDroppedTotal.Inc()
	}
	if out == nil {
		return props
	}
	return out
}
