// Package watch feeds the preview pipeline from a document on disk.
//
// A Source watches one file and emits a versioned snapshot after each
// burst of filesystem events settles. Version numbers are stamped here,
// monotonically, so downstream consumers get the strictly-increasing
// guarantee for free.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview/core"
)

// DefaultSettle is the default quiet period after a filesystem event
// before the file is re-read.
const DefaultSettle = 100 * time.Millisecond

// Source watches a document file and emits snapshots of it.
type Source struct {
	path   string
	settle time.Duration
	log    *slog.Logger

	watcher   *fsnotify.Watcher
	snapshots chan core.Snapshot
	version   uint64

	mu     sync.Mutex
	timer  *time.Timer
	closed bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New starts watching path. The containing directory is watched rather
// than the file itself: editors typically replace files on save
// (write-to-temp, rename), which drops a watch on the file node.
func New(path string, settle time.Duration, log *slog.Logger) (*Source, error) {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if log == nil {
		log = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	s := &Source{
		path:      abs,
		settle:    settle,
		log:       log,
		watcher:   watcher,
		snapshots: make(chan core.Snapshot, 16),
		closeCh:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	// Initial snapshot so the preview is populated before the first edit.
	s.emitNow()

	return s, nil
}

// Snapshots returns the channel of document snapshots.
func (s *Source) Snapshots() <-chan core.Snapshot {
	return s.snapshots
}

// Close stops watching and closes the snapshot channel.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	close(s.closeCh)
	s.mu.Unlock()

	err := s.watcher.Close()
	s.wg.Wait()
	close(s.snapshots)
	return err
}

// run consumes filesystem events until Close.
func (s *Source) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.closeCh:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.scheduleEmit()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("watch error", "path", s.path, "error", err)
		}
	}
}

// scheduleEmit restarts the settle timer; the file is read once the
// event burst quiets down.
func (s *Source) scheduleEmit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.settle, s.emitNow)
}

// emitNow reads the file and pushes a snapshot. A read failure (e.g.
// mid-rename) is logged and skipped; the next event tries again.
func (s *Source) emitNow() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn("read failed, snapshot skipped", "path", s.path, "error", err)
		return
	}

	// The send happens under the lock (it never blocks) so Close can
	// not close the channel between the closed check and the send.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.version++
	snap := core.Snapshot{Content: string(data), Version: s.version}

	select {
	case s.snapshots <- snap:
	default:
		// Consumer is behind; drop the oldest queued snapshot.
		select {
		case <-s.snapshots:
		default:
		}
		select {
		case s.snapshots <- snap:
		default:
		}
	}
}
