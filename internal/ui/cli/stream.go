package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	domainerrors "mixmirror/internal/core/errors"
	"mixmirror/internal/engine/graph"

	"github.com/fsnotify/fsnotify"
)

const maxLineBytes = 16 << 20

var errFollowNeedsFile = errors.New("--follow requires --input to name a file")

// StreamStats counts what a stream reader did with its input.
type StreamStats struct {
	Lines   int
	Sent    int
	Skipped int
}

type lineHandler struct {
	send  func(graph.Mutation) error
	stats StreamStats
}

// handle decodes one envelope line and sends it. stop is true once the
// stream must end: after a shutdown message or when the channel is closed.
func (h *lineHandler) handle(line string) (stop bool, err error) {
	h.stats.Lines++
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false, nil
	}
	m, err := graph.DecodeMutation([]byte(line))
	if err != nil {
		h.stats.Skipped++
		slog.Warn("skipping malformed mutation", "line", h.stats.Lines, "error", err)
		return false, nil
	}
	if err := h.send(m); err != nil {
		if domainerrors.IsCode(err, domainerrors.CodeChannelClosed) {
			slog.Info("persistence channel closed, stopping input", "line", h.stats.Lines)
			return true, nil
		}
		return true, err
	}
	h.stats.Sent++
	if _, ok := m.(graph.Shutdown); ok {
		return true, nil
	}
	return false, nil
}

// readStream feeds every envelope in r to send until EOF, a shutdown
// message or ctx cancellation.
func readStream(ctx context.Context, r io.Reader, send func(graph.Mutation) error) (StreamStats, error) {
	h := &lineHandler{send: send}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return h.stats, nil
		}
		stop, err := h.handle(scanner.Text())
		if err != nil || stop {
			return h.stats, err
		}
	}
	return h.stats, scanner.Err()
}

// followFile reads path like readStream and then keeps waiting for appended
// lines until ctx ends, the file is removed, or a shutdown message arrives.
func followFile(ctx context.Context, path string, send func(graph.Mutation) error) (StreamStats, error) {
	h := &lineHandler{send: send}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return h.stats, err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return h.stats, err
	}

	f, err := os.Open(path)
	if err != nil {
		return h.stats, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var partial strings.Builder
	for {
		chunk, err := r.ReadString('\n')
		partial.WriteString(chunk)
		if err == nil {
			stop, handleErr := h.handle(partial.String())
			partial.Reset()
			if handleErr != nil || stop {
				return h.stats, handleErr
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			return h.stats, err
		}

		select {
		case <-ctx.Done():
			return h.stats, nil
		case event, ok := <-watcher.Events:
			if !ok {
				return h.stats, nil
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Info("followed input went away", "path", path)
				return h.stats, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return h.stats, nil
			}
			return h.stats, err
		}
	}
}
