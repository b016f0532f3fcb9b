package store

import (
	"encoding/json"
	"fmt"

	"mixmirror/internal/engine/graph"
)

// encodeProps renders a property dictionary as a JSON object. Keys come out
// sorted, so equal dictionaries always produce equal text.
func encodeProps(p graph.Properties) (string, error) {
	if p == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]string(p))
	if err != nil {
		return "", fmt.Errorf("encode props: %w", err)
	}
	return string(raw), nil
}

// DecodeProps parses a props_json column.
func DecodeProps(raw string) (graph.Properties, error) {
	props := graph.Properties{}
	if raw == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("decode props: %w", err)
	}
	return props, nil
}

// encodeList renders a required collection. A nil slice is stored as an
// empty list.
func encodeList[T any](values []T) (string, error) {
	if values == nil {
		values = []T{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// encodeOptionalList returns nil (SQL NULL) for an absent collection and the
// JSON text otherwise, so an empty list never reads back as unknown.
func encodeOptionalList[T any](o graph.Optional[[]T]) (any, error) {
	values, ok := o.Get()
	if !ok {
		return nil, nil
	}
	return encodeList(values)
}

func optionalArg[T any](o graph.Optional[T]) any {
	v, ok := o.Get()
	if !ok {
		return nil
	}
	return v
}

type integer interface {
	~int32 | ~uint32 | ~int64
}

func optionalInt[T integer](o graph.Optional[T]) any {
	v, ok := o.Get()
	if !ok {
		return nil
	}
	return int64(v)
}
