// Package watch notices changes made on disk to the files open in the
// editor.
package watch

import (
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/xerrors"
	"gopkg.in/tomb.v2"
)

// Change describes a watched file that changed on disk since the last call
// to Changes.
type Change struct {
	Path    string
	Removed bool
}

// Watcher watches the directories of the files it is given, as editors and
// tools often replace a file rather than write to it. Changes accumulate
// until collected with Changes.
type Watcher struct {
	log *slog.Logger
	fw  *fsnotify.Watcher

	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]int
	changes map[string]bool

	tomb tomb.Tomb
}

func New(log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, xerrors.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		log:     log,
		fw:      fw,
		files:   make(map[string]bool),
		dirs:    make(map[string]int),
		changes: make(map[string]bool),
	}
	w.tomb.Go(w.loop)
	return w, nil
}

// Add starts watching path.
func (w *Watcher) Add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[path] {
		return nil
	}
	dir := filepath.Dir(path)
	if w.dirs[dir] == 0 {
		if err := w.fw.Add(dir); err != nil {
			return xerrors.Errorf("failed to watch %v: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[path] = true
	return nil
}

// Remove stops watching path.
func (w *Watcher) Remove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[path] {
		return
	}
	delete(w.files, path)
	delete(w.changes, path)
	dir := filepath.Dir(path)
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		if err := w.fw.Remove(dir); err != nil {
			w.log.Debug("failed to stop watching directory", "dir", dir, "error", err)
		}
	}
}

// Changes returns and forgets the changes seen so far, sorted by path.
func (w *Watcher) Changes() []Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.changes) == 0 {
		return nil
	}
	res := make([]Change, 0, len(w.changes))
	for p, removed := range w.changes {
		res = append(res, Change{Path: p, Removed: removed})
	}
	w.changes = make(map[string]bool)
	sort.Slice(res, func(i, j int) bool { return res[i].Path < res[j].Path })
	return res
}

func (w *Watcher) loop() error {
	for {
		select {
		case <-w.tomb.Dying():
			return nil
		case e, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handle(e)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(e fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[e.Name] {
		return
	}
	switch {
	case e.Has(fsnotify.Remove), e.Has(fsnotify.Rename):
		w.changes[e.Name] = true
	case e.Has(fsnotify.Write), e.Has(fsnotify.Create):
		w.changes[e.Name] = false
	default:
		return
	}
	w.log.Debug("file changed on disk", "path", e.Name, "op", e.Op.String())
}

func (w *Watcher) Close() error {
	w.tomb.Kill(nil)
	err := w.fw.Close()
	w.tomb.Wait()
	return err
}
