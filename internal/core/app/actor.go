package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mixmirror/internal/core/ports"
	"mixmirror/internal/engine/graph"
	"mixmirror/internal/shared/observability"
	"mixmirror/internal/shared/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errAlreadyStarted = errors.New("persistence actor already started")

const failureLimiterTTL = 10 * time.Minute

type ActorOptions struct {
	Logger *slog.Logger
	// DeadLetters, when set, records every mutation that fails to apply.
	DeadLetters ports.DeadLetterSpool
	// FailureLogRate and FailureLogBurst bound failure log lines per second
	// for each mutation kind.
	// Zero rate disables the limit.
	FailureLogRate  float64
	FailureLogBurst int
}

// ActorStats is a point-in-time view of the worker.
type ActorStats struct {
	SessionID string `json:"session_id"`
	Running   bool   `json:"running"`
	Applied   uint64 `json:"applied"`
	Failed    uint64 `json:"failed"`
	Backlog   int    `json:"backlog"`
}

// Actor is the single writer of the mirror. It owns its GraphStore; nothing
// else may touch the store while the actor runs.
type Actor struct {
	queue    ports.MutationSource
	store    ports.GraphStore
	spool    ports.DeadLetterSpool
	logger   *slog.Logger
	limiters *util.LimiterRegistry
	session  string

	started atomic.Bool
	running atomic.Bool
	applied atomic.Uint64
	failed  atomic.Uint64

	done     chan struct{}
	doneOnce sync.Once
}

func NewActor(queue ports.MutationSource, store ports.GraphStore, opts ActorOptions) *Actor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiters *util.LimiterRegistry
	if opts.FailureLogRate > 0 {
		limiters = util.NewLimiterRegistry(opts.FailureLogRate, opts.FailureLogBurst, failureLimiterTTL)
	}
	session := uuid.New().String()
	return &Actor{
		queue:    queue,
		store:    store,
		spool:    opts.DeadLetters,
		logger:   logger.With("session_id", session),
		limiters: limiters,
		session:  session,
		done:     make(chan struct{}),
	}
}

// Start runs the actor on its own goroutine.
func (a *Actor) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}
	go a.loop(ctx)
	return nil
}

// Run processes mutations on the calling goroutine until the queue is closed
// and drained (nil) or ctx is cancelled (ctx.Err()).
func (a *Actor) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}
	return a.loop(ctx)
}

// Done is closed when the worker has exited.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the worker exits or ctx ends.
func (a *Actor) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) Stats() ActorStats {
	return ActorStats{
		SessionID: a.session,
		Running:   a.running.Load(),
		Applied:   a.applied.Load(),
		Failed:    a.failed.Load(),
		Backlog:   a.queue.Len(),
	}
}

func (a *Actor) loop(ctx context.Context) error {
	a.running.Store(true)
	defer func() {
		// Producers must see CHANNEL_CLOSED once nobody is draining.
		_ = a.queue.Close()
		a.running.Store(false)
		a.doneOnce.Do(func() { close(a.done) })
	}()

	a.logger.Info("persistence actor started")
	for {
		observability.QueueDepth.Set(float64(a.queue.Len()))
		m, err := a.queue.Receive(ctx)
		if errors.Is(err, io.EOF) {
			a.logger.Info("persistence actor stopped", "applied", a.applied.Load(), "failed", a.failed.Load())
			return nil
		}
		if err != nil {
			a.logger.Warn("persistence actor interrupted", "error", err, "backlog", a.queue.Len())
			return err
		}

		if _, ok := m.(graph.Shutdown); ok {
			a.logger.Info("shutdown requested, draining queue", "backlog", a.queue.Len())
			if err := a.queue.Close(); err != nil {
				a.logger.Warn("close mutation queue", "error", err)
			}
			continue
		}
		a.handle(ctx, m)
	}
}

func (a *Actor) handle(ctx context.Context, m graph.Mutation) {
	kind := string(m.Kind())
	ctx, span := observability.Tracer.Start(ctx, "mixmirror.apply", trace.WithAttributes(
		attribute.String("mutation.kind", kind),
		attribute.Int64("object.id", int64(m.Target())),
		attribute.String("session.id", a.session),
	))
	defer span.End()

	started := time.Now()
	err := safeApply(ctx, a.store, m)
	observability.ApplyDurationSeconds.WithLabelValues(kind).Observe(time.Since(started).Seconds())

	if err == nil {
		a.applied.Add(1)
		observability.MutationsAppliedTotal.WithLabelValues(kind).Inc()
		a.purgeDeadLetters(ctx, m)
		return
	}

	a.failed.Add(1)
	observability.MutationFailuresTotal.WithLabelValues(kind).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "apply failed")
	a.logFailure(m, err)
	a.deadLetter(m, err)
}

func (a *Actor) logFailure(m graph.Mutation, err error) {
	// Each kind has its own budget so a flood of one kind of failure does
	// not hide another.
	if a.limiters != nil && !a.limiters.Get(string(m.Kind())).Allow(1) {
		observability.FailureLogsSuppressedTotal.Inc()
		return
	}
	a.logger.Warn("mutation failed",
		"kind", m.Kind(),
		"object_id", uint32(m.Target()),
		"error", err,
	)
}

// purgeDeadLetters drops spooled failures for the object m just wrote.
// They are older than m, so replaying them later would roll it back.
func (a *Actor) purgeDeadLetters(ctx context.Context, m graph.Mutation) {
	if a.spool == nil {
		return
	}
	n, err := a.spool.Purge(ctx, m.Target(), 0)
	if err != nil {
		a.logger.Warn("dead letter purge failed", "kind", m.Kind(), "object_id", uint32(m.Target()), "error", err)
		return
	}
	if n > 0 {
		a.logger.Debug("superseded dead letters purged", "object_id", uint32(m.Target()), "rows", n)
		updateDeadLetterDepth(ctx, a.spool)
	}
}

func (a *Actor) deadLetter(m graph.Mutation, cause error) {
	if a.spool == nil {
		return
	}
	if err := a.spool.Enqueue(m, cause); err != nil {
		a.logger.Warn("dead letter write failed", "kind", m.Kind(), "object_id", uint32(m.Target()), "error", err)
		return
	}
	observability.DeadLettersTotal.Inc()
}
