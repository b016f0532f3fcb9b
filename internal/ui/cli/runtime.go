package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreapp "mixmirror/internal/core/app"
	"mixmirror/internal/core/config"
	domainerrors "mixmirror/internal/core/errors"
	"mixmirror/internal/core/ports"
	"mixmirror/internal/data/queue"
	"mixmirror/internal/data/store"
	"mixmirror/internal/engine/graph"
	"mixmirror/internal/shared/observability"
)

const drainTimeout = 30 * time.Second

func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	if opts.version {
		fmt.Fprintf(stdout, "mixmirror v%s\n", versionString)
		return 0
	}

	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	if opts.dbPath != "" {
		cfg.DB.Path = opts.dbPath
	}

	level := new(slog.LevelVar)
	applyLogLevel(level, cfg.Log.Level, opts.verbose)
	slog.SetDefault(observability.NewLogger(stderr, cfg.Log.Format, level))

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.EnableTracing,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		ServiceName: "mixmirror",
		Version:     versionString,
	})
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	st, err := store.Open(ctx, cfg.DB.Path, store.Options{BusyTimeout: cfg.DB.BusyTimeout})
	if err != nil {
		slog.Error("failed to open mirror storage", "error", err)
		return 1
	}
	defer st.Close()

	var deadLetters ports.DeadLetterSpool
	if cfg.DeadLetter.Enabled {
		spool, err := queue.OpenSQLiteSpool(cfg.DeadLetter.Path, st.Target())
		if err != nil {
			slog.Error("failed to open dead-letter spool", "error", err, "path", cfg.DeadLetter.Path)
			return 1
		}
		defer spool.Close()
		deadLetters = spool
	}

	backoff := coreapp.BackoffConfig{
		BaseDelay: cfg.Actor.Backoff.BaseDelay,
		MaxDelay:  cfg.Actor.Backoff.MaxDelay,
	}

	if opts.replayDeadLetters {
		if deadLetters == nil {
			fmt.Fprintln(stderr, "--replay-dead-letters requires dead_letter.enabled = true")
			return 1
		}
		res, err := coreapp.ReplayDeadLetters(ctx, deadLetters, st, backoff, 0)
		if err != nil {
			slog.Error("dead-letter replay failed", "error", err)
			return 1
		}
		fmt.Fprintf(stdout, "replayed %d dead letters, %d still failing\n", res.Applied, res.Failed)
		return 0
	}

	filter, err := coreapp.NewPropertyFilter(cfg.Filter.DropProperties)
	if err != nil {
		slog.Error("invalid property filter", "error", err)
		return 1
	}

	var gateway ports.GraphStore = st
	if cfg.Actor.Backoff.Enabled {
		gateway = coreapp.NewBackoffStore(st, backoff)
	}

	mutations := queue.NewMemoryQueue()
	actor := coreapp.NewActor(mutations, gateway, coreapp.ActorOptions{
		Logger:          slog.Default(),
		DeadLetters:     deadLetters,
		FailureLogRate:  cfg.Actor.FailureLogRate,
		FailureLogBurst: cfg.Actor.FailureLogBurst,
	})
	mirror := coreapp.NewMirror(mutations, filter)

	// The actor outlives ctx: on interrupt it still drains what was queued.
	actorCtx, cancelActor := context.WithCancel(context.Background())
	defer cancelActor()
	if err := actor.Start(actorCtx); err != nil {
		slog.Error("failed to start persistence actor", "error", err)
		return 1
	}

	if cfg.Observability.Enabled {
		srv := NewObservabilityServer(cfg.Observability.Address, coreapp.NewHealthService(actor, mirror, st))
		if err := srv.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "error", err)
		} else {
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Stop(stopCtx)
			}()
		}
	}

	if cfgPath != "" {
		watcher := config.NewWatcher(cfgPath, func(next *config.Config) {
			applyLogLevel(level, next.Log.Level, opts.verbose)
			if f, err := coreapp.NewPropertyFilter(next.Filter.DropProperties); err == nil {
				mirror.SetFilter(f)
			}
			observability.ConfigReloadsTotal.Inc()
			slog.Info("configuration reloaded", "log_level", next.Log.Level)
		})
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	stats, feedErr := feed(ctx, opts, stdin, mirror.Send)
	if feedErr != nil {
		slog.Error("reading mutation stream failed", "error", feedErr, "line", stats.Lines)
	}

	if err := mirror.Shutdown(); err != nil && !domainerrors.IsCode(err, domainerrors.CodeChannelClosed) {
		slog.Warn("shutdown request not delivered", "error", err)
	}
	waitCtx, cancelWait := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelWait()
	if err := actor.Wait(waitCtx); err != nil {
		cancelActor()
		<-actor.Done()
		slog.Error("persistence actor did not drain in time", "error", err, "backlog", mutations.Len())
		return 1
	}

	final := actor.Stats()
	fmt.Fprintf(stdout, "read %d lines: %d mutations sent, %d skipped, %d applied, %d failed\n",
		stats.Lines, stats.Sent, stats.Skipped, final.Applied, final.Failed)
	if feedErr != nil {
		return 1
	}
	return 0
}

func feed(ctx context.Context, opts cliOptions, stdin io.Reader, send func(graph.Mutation) error) (StreamStats, error) {
	if opts.follow {
		return followFile(ctx, opts.input, send)
	}
	if opts.input == "" || opts.input == "-" {
		return readStream(ctx, stdin, send)
	}
	f, err := os.Open(opts.input)
	if err != nil {
		return StreamStats{}, err
	}
	defer f.Close()
	return readStream(ctx, f, send)
}

// loadConfig returns the parsed config and the file it came from. Without
// an explicit path a missing default file falls back to environment and
// defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	cfg, err := config.Load(config.DefaultPath)
	if err == nil {
		return cfg, config.DefaultPath, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", err
	}
	cfg, err = config.FromEnv()
	return cfg, "", err
}

func applyLogLevel(level *slog.LevelVar, name string, verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
		return
	}
	parsed, err := observability.ParseLevel(name)
	if err != nil {
		slog.Warn("unknown log level, keeping current", "level", name)
		return
	}
	level.Set(parsed)
}
