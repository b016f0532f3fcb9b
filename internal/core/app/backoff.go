package app

import (
	"context"
	"time"

	"mixmirror/internal/core/ports"
	"mixmirror/internal/engine/graph"
	"mixmirror/internal/shared/observability"
)

type BackoffConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

var _ ports.GraphStore = (*BackoffStore)(nil)

// BackoffStore delays storage calls after consecutive failures so a broken
// disk is not hammered by a deep backlog. A success resets the delay. Like
// the store it wraps, it belongs to a single goroutine.
type BackoffStore struct {
	inner    ports.GraphStore
	cfg      BackoffConfig
	failures int
	sleep    func(context.Context, time.Duration) error
}

func NewBackoffStore(inner ports.GraphStore, cfg BackoffConfig) *BackoffStore {
	return &BackoffStore{inner: inner, cfg: cfg, sleep: sleepContext}
}

// ConsecutiveFailures reports the current failure streak.
func (b *BackoffStore) ConsecutiveFailures() int {
	return b.failures
}

func (b *BackoffStore) call(ctx context.Context, fn func(context.Context) error) error {
	if b.failures > 0 {
		delay := backoffDelay(b.cfg, b.failures)
		observability.BackoffWaitSeconds.Observe(delay.Seconds())
		if err := b.sleep(ctx, delay); err != nil {
			return err
		}
	}
	if err := fn(ctx); err != nil {
		b.failures++
		return err
	}
	b.failures = 0
	return nil
}

func (b *BackoffStore) UpsertClient(ctx context.Context, client graph.Client) error {
	return b.call(ctx, func(ctx context.Context) error { return b.inner.UpsertClient(ctx, client) })
}

func (b *BackoffStore) UpsertNode(ctx context.Context, node graph.Node) error {
	return b.call(ctx, func(ctx context.Context) error { return b.inner.UpsertNode(ctx, node) })
}

func (b *BackoffStore) UpsertDevice(ctx context.Context, device graph.Device) error {
	return b.call(ctx, func(ctx context.Context) error { return b.inner.UpsertDevice(ctx, device) })
}

func (b *BackoffStore) UpsertLink(ctx context.Context, link graph.Link) error {
	return b.call(ctx, func(ctx context.Context) error { return b.inner.UpsertLink(ctx, link) })
}

func (b *BackoffStore) UpsertMetadata(ctx context.Context, metadata graph.Metadata) error {
	return b.call(ctx, func(ctx context.Context) error { return b.inner.UpsertMetadata(ctx, metadata) })
}

func (b *BackoffStore) UpsertMetadataProperty(ctx context.Context, id graph.ObjectID, subject uint32, key, value string) error {
	return b.call(ctx, func(ctx context.Context) error {
		return b.inner.UpsertMetadataProperty(ctx, id, subject, key, value)
	})
}

func (b *BackoffStore) RemoveMetadataProperty(ctx context.Context, id graph.ObjectID, subject uint32, key string) error {
	return b.call(ctx, func(ctx context.Context) error { return b.inner.RemoveMetadataProperty(ctx, id, subject, key) })
}

func (b *BackoffStore) ClearMetadataProperties(ctx context.Context, id graph.ObjectID, subject uint32) error {
	return b.call(ctx, func(ctx context.Context) error { return b.inner.ClearMetadataProperties(ctx, id, subject) })
}

func (b *BackoffStore) RemoveObject(ctx context.Context, id graph.ObjectID) error {
	return b.call(ctx, func(ctx context.Context) error { return b.inner.RemoveObject(ctx, id) })
}

func (b *BackoffStore) Close() error {
	return b.inner.Close()
}

// backoffDelay doubles base once per prior failure, capped at max.
func backoffDelay(cfg BackoffConfig, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
