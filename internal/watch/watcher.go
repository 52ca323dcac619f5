// Package watch reports edits to the tracked file so an interactive loop can
// refresh its dirty indicator without polling the disk.
package watch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	DefaultDebounce = 100 * time.Millisecond
	eventBuffer     = 16
)

// Event is one debounced change of the tracked file.
type Event struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

// Watcher watches the directory of the tracked file, so editors that save
// through a rename are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration
	events   chan Event

	mu       sync.Mutex
	path     string
	lastHash string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(path string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		watcher:  fw,
		logger:   logger,
		debounce: debounce,
		events:   make(chan Event, eventBuffer),
		path:     abs,
		lastHash: hashFile(abs),
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.watchLoop()
	return w, nil
}

// Events delivers changes. It is closed by Close. When the consumer falls
// behind, events are dropped; each event only means "look again".
func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Retarget switches the watcher to another tracked file.
func (w *Watcher) Retarget(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("getting absolute path for %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	oldDir, newDir := filepath.Dir(w.path), filepath.Dir(abs)
	if oldDir != newDir {
		if err := w.watcher.Add(newDir); err != nil {
			return fmt.Errorf("watching %s: %w", newDir, err)
		}
		if err := w.watcher.Remove(oldDir); err != nil {
			w.logger.Warn("removing watch", zap.String("dir", oldDir), zap.Error(err))
		}
	}
	w.path = abs
	w.lastHash = hashFile(abs)
	return nil
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

// watchLoop processes filesystem events
func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	defer close(w.events)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending Event
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			pending = Event{Path: w.Path(), Op: pending.Op | event.Op, Time: time.Now()}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-timerC:
			timerC = nil
			w.emit(pending)
			pending = Event{}
		}
	}
}

func (w *Watcher) matches(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return filepath.Clean(name) == w.path
}

// emit forwards ev unless the file content is what was last reported.
func (w *Watcher) emit(ev Event) {
	hash := hashFile(ev.Path)

	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	w.lastHash = hash
	w.mu.Unlock()

	select {
	case w.events <- ev:
	default:
		w.logger.Debug("dropping watch event", zap.String("path", ev.Path))
	}
}

// hashFile returns the content hash of path, or "" if it cannot be read.
func hashFile(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
