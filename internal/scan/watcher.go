package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is how long the watcher waits for writes to settle
const DefaultDebounce = 300 * time.Millisecond

// Watcher re-analyzes files under a root as they change
type Watcher struct {
	scanner  *Scanner
	root     string
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// NewWatcher watches every non-excluded directory under root
func NewWatcher(s *Scanner, root string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		scanner:  s,
		root:     root,
		debounce: debounce,
		fsw:      fsw,
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// addTree adds a watch for dir and each non-excluded directory below it
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		if rel, ok := w.rel(path); ok && rel != "." && w.scanner.excluded(rel) {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Run delivers a result for each changed file once writes settle. It blocks
// until ctx is cancelled and closes the watcher on return.
func (w *Watcher) Run(ctx context.Context, fn func(FileResult)) error {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.handle(ev, pending) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")

		case <-fire:
			fire = nil
			w.flush(ctx, pending, fn)
		}
	}
}

// handle records a changed file and reports whether it is pending
func (w *Watcher) handle(ev fsnotify.Event, pending map[string]struct{}) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}

	rel, ok := w.rel(ev.Name)
	if !ok {
		return false
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return false
	}

	if info.IsDir() {
		if ev.Has(fsnotify.Create) && !w.scanner.excluded(rel) {
			if err := w.addTree(ev.Name); err != nil {
				log.Warn().Err(err).Str("dir", rel).Msg("failed to watch new directory")
			}
		}
		return false
	}

	if !w.scanner.Included(rel) {
		return false
	}

	pending[rel] = struct{}{}
	return true
}

// flush analyzes pending files in path order and clears the set
func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}, fn func(FileResult)) {
	paths := make([]string, 0, len(pending))
	for rel := range pending {
		paths = append(paths, rel)
	}
	sort.Strings(paths)
	clear(pending)

	for _, rel := range paths {
		fr, err := w.scanner.AnalyzeFile(ctx, w.root, rel)
		if err != nil {
			// removed or renamed before the debounce fired
			log.Debug().Err(err).Str("path", rel).Msg("skipping changed file")
			continue
		}
		fn(fr)
	}
}

// Close stops watching without running
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
