package source

import (
	"github.com/fsnotify/fsnotify"
)

// WatchingProvider wraps a DirProvider with an fsnotify watch over its root,
// so a caller can trigger a recompile on Changed() without re-walking the
// tree on a timer. Grounded on soy.Bundle's WatchFiles/recompiler, lifted
// out of the Bundle so the core compiler can depend on Provider alone.
type WatchingProvider struct {
	*DirProvider
	watcher *fsnotify.Watcher
}

// NewWatchingProvider starts watching every *.soy file found under dir
// (including sub-directories) at the time of the call; files added later are
// not watched. Call Close when done to release the underlying fsnotify watcher.
func NewWatchingProvider(dir string) (*WatchingProvider, error) {
	var w = &WatchingProvider{DirProvider: NewDirProvider(dir)}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.watcher = watcher

	paths, err := w.Paths()
	if err != nil {
		watcher.Close()
		return nil, err
	}
	for _, path := range paths {
		if err := watcher.Add(string(path)); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return w, nil
}

// Changed delivers the fsnotify events for the watched files (writes,
// renames, removals and attribute changes). The caller is expected to re-run
// the compiler pipeline (DirProvider.Paths -> passes.Manager) on each event.
func (w *WatchingProvider) Changed() <-chan fsnotify.Event {
	return w.watcher.Events
}

// Errors delivers watcher errors (e.g. a removed directory).
func (w *WatchingProvider) Errors() <-chan error {
	return w.watcher.Errors
}

// Close stops watching and releases the underlying OS resources.
func (w *WatchingProvider) Close() error {
	return w.watcher.Close()
}
