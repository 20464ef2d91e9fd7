package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher monitors the shared download directory for confirmation PDFs.
// fsnotify gives fast notification of new files; a polling loop backs it up
// because some filesystems (and Chrome's rename-on-finish dance) drop events.
type Watcher struct {
	dir string
	log *zap.Logger
}

// NewWatcher builds a watcher over the download directory.
func NewWatcher(dir string, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{dir: dir, log: log}
}

// firstPDF returns the first finished PDF in the directory, or "".
func (w *Watcher) firstPDF() string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, ".pdf") &&
			!strings.HasSuffix(lower, ".part") && !strings.HasSuffix(lower, ".crdownload") {
			return name
		}
	}
	return ""
}

// AwaitPDF waits up to timeout for any PDF to appear, checking presence only.
// Returns the filename, or "" when none appeared in time.
func (w *Watcher) AwaitPDF(ctx context.Context, timeout time.Duration) string {
	if name := w.firstPDF(); name != "" {
		return name
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(300 * time.Millisecond)
	defer poll.Stop()

	var events chan fsnotify.Event
	if fw, err := fsnotify.NewWatcher(); err == nil {
		if err := fw.Add(w.dir); err == nil {
			events = fw.Events
		}
		defer fw.Close()
	} else {
		w.log.Debug("fsnotify unavailable, polling only", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return ""
		case <-deadline.C:
			return ""
		case <-poll.C:
			if name := w.firstPDF(); name != "" {
				return name
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				if name := w.firstPDF(); name != "" {
					return name
				}
			}
		}
	}
}

const stableSamples = 3

// AwaitStable waits for a PDF download to finish: first for a PDF to exist at
// all, then for its size to hold steady across consecutive one-second
// samples, which guards against reading a partially written file.
func (w *Watcher) AwaitStable(ctx context.Context, timeout time.Duration) (string, error) {
	start := time.Now()

	var name string
	for name == "" {
		if time.Since(start) > timeout {
			return "", fmt.Errorf("no pdf appeared in %s within %s", w.dir, timeout)
		}
		name = w.AwaitPDF(ctx, time.Second)
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	w.log.Info("pdf found, waiting for size to stabilize", zap.String("file", name))
	path := filepath.Join(w.dir, name)
	lastSize := int64(-1)
	stable := 0
	for time.Since(start) <= timeout {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}

		info, err := os.Stat(path)
		if err != nil {
			stable = 0
			lastSize = -1
			continue
		}
		if info.Size() == lastSize && info.Size() > 0 {
			stable++
			if stable >= stableSamples {
				return name, nil
			}
		} else {
			stable = 0
		}
		lastSize = info.Size()
	}
	return "", fmt.Errorf("pdf %s never stabilized within %s", name, timeout)
}
