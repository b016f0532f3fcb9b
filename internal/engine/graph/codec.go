package graph

import (
	"encoding/json"
	"fmt"
)

const envelopeVersion = 1

type envelope struct {
	Version int             `json:"version"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeMutation renders m as a versioned JSON envelope.
func EncodeMutation(m Mutation) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode mutation: nil mutation")
	}
	env := envelope{Version: envelopeVersion, Kind: m.Kind()}
	if _, ok := m.(Shutdown); !ok {
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Kind(), err)
		}
		env.Payload = raw
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", m.Kind(), err)
	}
	return out, nil
}

// DecodeMutation parses an envelope produced by EncodeMutation.
func DecodeMutation(data []byte) (Mutation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode mutation envelope: %w", err)
	}
	if env.Version != 0 && env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported mutation envelope version %d", env.Version)
	}

	var (
		m   Mutation
		err error
	)
	switch env.Kind {
	case KindUpsertClient:
		m, err = decodePayload[UpsertClient](env.Payload)
	case KindUpsertNode:
		m, err = decodePayload[UpsertNode](env.Payload)
	case KindUpsertDevice:
		m, err = decodePayload[UpsertDevice](env.Payload)
	case KindUpsertLink:
		m, err = decodePayload[UpsertLink](env.Payload)
	case KindUpsertMetadata:
		m, err = decodePayload[UpsertMetadata](env.Payload)
	case KindRemoveMetadataProperty:
		m, err = decodePayload[RemoveMetadataProperty](env.Payload)
	case KindClearMetadataProperties:
		m, err = decodePayload[ClearMetadataProperties](env.Payload)
	case KindRemoveObject:
		m, err = decodePayload[RemoveObject](env.Payload)
	case KindShutdown:
		m = Shutdown{}
	default:
		return nil, fmt.Errorf("unknown mutation kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return m, nil
}

func decodePayload[T Mutation](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}
