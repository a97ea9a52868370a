// Package ingest watches a directory for newly-written shard sketch files
// and merges each into a running combined sketch from a per-file debounce
// timer, so rapid writes to one file trigger a single merge.
package ingest

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tvondra/omnisketch/sketch"
)

// Combiner merges incoming shard files into a single running sketch.
// Access is serialized by a mutex since fsnotify events and worker
// completions can interleave.
type Combiner struct {
	mu      sync.Mutex
	current *sketch.Sketch
}

// NewCombiner returns a Combiner seeded with an empty accumulator.
func NewCombiner() *Combiner {
	return &Combiner{}
}

// Current returns the combiner's sketch as of the last successful merge.
// The caller must not mutate the returned value.
func (c *Combiner) Current() *sketch.Sketch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Merge combines sk into the running total.
func (c *Combiner) Merge(sk *sketch.Sketch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged, err := sketch.Combine(c.current, sk)
	if err != nil {
		return err
	}
	c.current = merged
	return nil
}

// LoadFunc reads and deserializes the sketch at path.
type LoadFunc func(path string) (*sketch.Sketch, error)

// Watcher watches dir for ".sketch"-suffixed files and merges each one it
// sees into combiner, debouncing bursts of writes to the same file.
type Watcher struct {
	dir       string
	load      LoadFunc
	combiner  *Combiner
	debounce  time.Duration
	onMerge   func(path string, err error)
	extension string
}

// NewWatcher constructs a Watcher. onMerge, if non-nil, is invoked after
// every merge attempt (successful or not) for observability.
func NewWatcher(dir string, load LoadFunc, combiner *Combiner, onMerge func(path string, err error)) *Watcher {
	return &Watcher{
		dir:       dir,
		load:      load,
		combiner:  combiner,
		debounce:  200 * time.Millisecond,
		onMerge:   onMerge,
		extension: ".sketch",
	}
}

// Run watches until ctx-equivalent stop channel closes. It never returns an
// error for a transient fsnotify failure; those are logged with slog.Warn
// (not passed to onMerge) and watching continues, so the combiner keeps
// its last-known-good accumulator even if the watcher degrades.
func (w *Watcher) Run(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	pending := make(map[string]*time.Timer)
	var mu sync.Mutex
	fire := func(path string) {
		sk, err := w.load(path)
		if err == nil {
			err = w.combiner.Merge(sk)
		}
		if w.onMerge != nil {
			w.onMerge(path, err)
		}
	}

	for {
		select {
		case <-stop:
			mu.Lock()
			for _, t := range pending {
				t.Stop()
			}
			mu.Unlock()
			return nil
		case ev := <-watcher.Events:
			if filepath.Ext(ev.Name) != w.extension {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path := ev.Name
			mu.Lock()
			if t, ok := pending[path]; ok {
				t.Reset(w.debounce)
			} else {
				pending[path] = time.AfterFunc(w.debounce, func() {
					mu.Lock()
					delete(pending, path)
					mu.Unlock()
					fire(path)
				})
			}
			mu.Unlock()
		case err := <-watcher.Errors:
			slog.Warn("ingest watcher error", "error", err)
		}
	}
}
