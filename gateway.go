package mdpreview

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alnah/go-mdpreview/internal/fileutil"
)

// DefaultWatchQuiet is the quiet window used to coalesce a burst of
// file change notifications into a single one.
const DefaultWatchQuiet = 100 * time.Millisecond

// savedFileMode is the permission for files written by the gateway.
const savedFileMode = 0o644

// FileOp identifies the gateway operation behind a FileResult.
type FileOp string

// Gateway operations.
const (
	OpRead  FileOp = "read"
	OpWrite FileOp = "write"
	OpWatch FileOp = "watch"
)

// FileResult is a completed gateway operation. Text carries the file
// content for read completions; Err is set when the operation failed.
// Watch notifications carry only Op and Path.
type FileResult struct {
	Op   FileOp
	Path string
	Text string
	Err  error
}

// FileGateway performs file reads and writes off the caller's goroutine
// and watches the backing file for external changes. Completions and
// change notifications arrive on the Results channel; no method blocks
// on I/O.
type FileGateway struct {
	quiet  time.Duration
	logger *slog.Logger

	results chan FileResult
	done    chan struct{}

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool

	wg sync.WaitGroup
}

// NewFileGateway creates a gateway. A non-positive quiet window falls
// back to DefaultWatchQuiet; a nil logger discards.
func NewFileGateway(quiet time.Duration, logger *slog.Logger) *FileGateway {
	if quiet <= 0 {
		quiet = DefaultWatchQuiet
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FileGateway{
		quiet:   quiet,
		logger:  logger,
		results: make(chan FileResult, 8),
		done:    make(chan struct{}),
	}
}

// ReadFile loads the file in the background. The completion arrives on
// Results as {OpRead, path, text} or with Err wrapping ErrReadFile.
func (g *FileGateway) ReadFile(path string) {
	g.spawn(func() {
		data, err := os.ReadFile(path) // #nosec G304 -- path chosen by the host application
		if err != nil {
			g.deliver(FileResult{Op: OpRead, Path: path, Err: fmt.Errorf("%w: %v", ErrReadFile, err)})
			return
		}
		g.deliver(FileResult{Op: OpRead, Path: path, Text: string(data)})
	})
}

// WriteFile persists text in the background. The write is crash-safe:
// a temp file in the target directory is synced and renamed over the
// destination. The completion arrives on Results as {OpWrite, path} or
// with Err wrapping ErrWriteFile.
func (g *FileGateway) WriteFile(path, text string) {
	g.spawn(func() {
		if err := fileutil.WriteFileAtomic(path, []byte(text), savedFileMode); err != nil {
			g.deliver(FileResult{Op: OpWrite, Path: path, Err: fmt.Errorf("%w: %v", ErrWriteFile, err)})
			return
		}
		g.logger.Debug("file saved", "path", path)
		g.deliver(FileResult{Op: OpWrite, Path: path})
	})
}

// Watch streams debounced change notifications for path on Results.
// The watch is placed on the parent directory, not the file itself, so
// editors that save by rename or delete+recreate keep the watch alive.
// A second call replaces the previous watch.
func (g *FileGateway) Watch(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrWatch)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatch, err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: %v", ErrWatch, err)
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		_ = w.Close()
		return ErrClosed
	}
	if g.watcher != nil {
		// The previous watch loop exits when its event channel closes.
		_ = g.watcher.Close()
	}
	g.watcher = w
	g.wg.Add(1)
	g.mu.Unlock()

	go g.watchLoop(w, path)
	return nil
}

// Results delivers completions and change notifications.
// The channel is closed by Close.
func (g *FileGateway) Results() <-chan FileResult {
	return g.results
}

// Close stops the watcher, waits for in-flight operations to settle,
// and closes the results channel. Safe to call more than once.
func (g *FileGateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	w := g.watcher
	g.watcher = nil
	close(g.done)
	g.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
	}
	g.wg.Wait()
	close(g.results)
	return err
}

// spawn runs fn on a tracked goroutine unless the gateway is closed.
func (g *FileGateway) spawn(fn func()) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// deliver sends a result without wedging on a vanished consumer.
func (g *FileGateway) deliver(r FileResult) {
	select {
	case g.results <- r:
	case <-g.done:
	}
}

func (g *FileGateway) watchLoop(w *fsnotify.Watcher, path string) {
	defer g.wg.Done()

	base := filepath.Base(path)
	timer := time.NewTimer(g.quiet)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			// Chmod-only events are noise (touch, permission sweeps).
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			// Restart the quiet window; a burst coalesces into one notice.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(g.quiet)
			pending = true

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			// A remove followed by recreate settles on the recreate; a
			// file still absent after the quiet window waits for the
			// Create event of its return.
			if !fileutil.FileExists(path) {
				continue
			}
			g.logger.Debug("watched file changed", "path", path)
			g.deliver(FileResult{Op: OpWatch, Path: path})

		case watchErr, ok := <-w.Errors:
			if !ok {
				return
			}
			g.deliver(FileResult{Op: OpWatch, Path: path, Err: fmt.Errorf("%w: %v", ErrWatch, watchErr)})

		case <-g.done:
			return
		}
	}
}
