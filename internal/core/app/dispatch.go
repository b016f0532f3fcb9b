package app

import (
	"context"
	"fmt"

	domainerrors "mixmirror/internal/core/errors"
	"mixmirror/internal/core/ports"
	"mixmirror/internal/engine/graph"
)

// apply routes one mutation to the matching gateway operation.
func apply(ctx context.Context, store ports.GraphStore, m graph.Mutation) error {
	switch v := m.(type) {
	case graph.UpsertClient:
		return store.UpsertClient(ctx, v.Client)
	case graph.UpsertNode:
		return store.UpsertNode(ctx, v.Node)
	case graph.UpsertDevice:
		return store.UpsertDevice(ctx, v.Device)
	case graph.UpsertLink:
		return store.UpsertLink(ctx, v.Link)
	case graph.UpsertMetadata:
		return store.UpsertMetadata(ctx, v.Metadata)
	case graph.RemoveMetadataProperty:
		return store.RemoveMetadataProperty(ctx, v.ObjectID, v.Subject, v.Key)
	case graph.ClearMetadataProperties:
		return store.ClearMetadataProperties(ctx, v.ObjectID, v.Subject)
	case graph.RemoveObject:
		return store.RemoveObject(ctx, v.ObjectID)
	default:
		return domainerrors.New(domainerrors.CodeNotSupported, fmt.Sprintf("unsupported mutation %T", m))
	}
}

// safeApply runs apply and converts a panic into an error so one bad
// mutation cannot take the worker down.
func safeApply(ctx context.Context, store ports.GraphStore, m graph.Mutation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domainerrors.New(domainerrors.CodeInternal, fmt.Sprintf("panic applying %s: %v", m.Kind(), r))
		}
	}()
	return apply(ctx, store, m)
}
