package app

import (
	"errors"
	"sync/atomic"

	domainerrors "mixmirror/internal/core/errors"
	"mixmirror/internal/core/ports"
	"mixmirror/internal/data/queue"
	"mixmirror/internal/engine/graph"
	"mixmirror/internal/shared/observability"
)

// Mirror is the producer-side handle of the persistence pipeline. It is safe
// for concurrent use; Send never waits for storage.
type Mirror struct {
	sink   ports.MutationSink
	filter atomic.Pointer[PropertyFilter]
	closed atomic.Bool
}

func NewMirror(sink ports.MutationSink, filter *PropertyFilter) *Mirror {
	m := &Mirror{sink: sink}
	m.filter.Store(filter)
	return m
}

// SetFilter swaps the property filter used for subsequent sends.
func (m *Mirror) SetFilter(filter *PropertyFilter) {
	m.filter.Store(filter)
}

// Send enqueues mut. Once the worker has gone away every call fails with a
// CHANNEL_CLOSED error; the caller should stop producing.
func (m *Mirror) Send(mut graph.Mutation) error {
	if m.closed.Load() {
		observability.MutationsRejectedTotal.Inc()
		return channelClosed(mut, queue.ErrClosed)
	}
	if f := m.filter.Load(); f != nil {
		mut = f.Apply(mut)
	}
	if err := m.sink.Send(mut); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			m.closed.Store(true)
			observability.MutationsRejectedTotal.Inc()
			return channelClosed(mut, err)
		}
		return err
	}
	observability.MutationsEnqueuedTotal.WithLabelValues(string(mut.Kind())).Inc()
	return nil
}

// Closed reports whether a send has already observed the closed channel.
func (m *Mirror) Closed() bool {
	return m.closed.Load()
}

func (m *Mirror) UpsertClient(c graph.Client) error {
	return m.Send(graph.UpsertClient{Client: c})
}

func (m *Mirror) UpsertNode(n graph.Node) error {
	return m.Send(graph.UpsertNode{Node: n})
}

func (m *Mirror) UpsertDevice(d graph.Device) error {
	return m.Send(graph.UpsertDevice{Device: d})
}

func (m *Mirror) UpsertLink(l graph.Link) error {
	return m.Send(graph.UpsertLink{Link: l})
}

func (m *Mirror) UpsertMetadata(md graph.Metadata) error {
	return m.Send(graph.UpsertMetadata{Metadata: md})
}

func (m *Mirror) RemoveMetadataProperty(id graph.ObjectID, subject uint32, key string) error {
	return m.Send(graph.RemoveMetadataProperty{ObjectID: id, Subject: subject, Key: key})
}

func (m *Mirror) ClearMetadataProperties(id graph.ObjectID, subject uint32) error {
	return m.Send(graph.ClearMetadataProperties{ObjectID: id, Subject: subject})
}

func (m *Mirror) RemoveObject(id graph.ObjectID) error {
	return m.Send(graph.RemoveObject{ObjectID: id})
}

// Shutdown asks the worker to drain what is queued and exit.
func (m *Mirror) Shutdown() error {
	return m.Send(graph.Shutdown{})
}

func channelClosed(mut graph.Mutation, cause error) error {
	err := domainerrors.Wrap(cause, domainerrors.CodeChannelClosed, "persistence channel closed")
	return domainerrors.AddContext(err, domainerrors.CtxKind, string(mut.Kind()))
}
