// Package watcher detects capture archives arriving in the incoming
// directory and submits each one once its size has stopped changing.
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// Submitter accepts stable archives as jobs
type Submitter interface {
	Submit(job pipeline.CaptureJob) error
}

// Config configures a Watcher
type Config struct {
	Dir          string
	Suffix       string
	PollInterval time.Duration
	ScanExisting bool
}

// FatalIngestError means the watcher could not start. The rest of the
// process keeps running without ingestion.
type FatalIngestError struct {
	Dir string
	Err error
}

func (e *FatalIngestError) Error() string {
	return fmt.Sprintf("cannot watch %s: %v", e.Dir, e.Err)
}

func (e *FatalIngestError) Unwrap() error { return e.Err }

// identity distinguishes a re-dropped archive from the one already submitted
type identity struct {
	size    int64
	modTime time.Time
}

// Watcher watches one directory. Source files are never modified.
type Watcher struct {
	cfg    Config
	submit Submitter

	stat func(string) (os.FileInfo, error)
	now  func() time.Time

	mu        sync.Mutex
	inFlight  map[string]bool
	submitted map[string]identity
	wg        sync.WaitGroup

	onDetected  func()
	onSubmitted func()
}

// New creates a watcher for cfg.Dir
func New(cfg Config, submit Submitter) *Watcher {
	if cfg.Suffix == "" {
		cfg.Suffix = ".tar.gz"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Watcher{
		cfg:       cfg,
		submit:    submit,
		stat:      os.Stat,
		now:       time.Now,
		inFlight:  make(map[string]bool),
		submitted: make(map[string]identity),
	}
}

// OnDetected registers a callback for every archive a stability check starts for
func (w *Watcher) OnDetected(fn func()) { w.onDetected = fn }

// OnSubmitted registers a callback for every archive handed to the submitter
func (w *Watcher) OnSubmitted(fn func()) { w.onSubmitted = fn }

// Run watches until ctx is cancelled, then waits for in-flight checks
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.cfg.Dir)
	if err != nil {
		return &FatalIngestError{Dir: w.cfg.Dir, Err: err}
	}
	if !info.IsDir() {
		return &FatalIngestError{Dir: w.cfg.Dir, Err: fmt.Errorf("not a directory")}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return &FatalIngestError{Dir: w.cfg.Dir, Err: err}
	}
	defer fsw.Close()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return &FatalIngestError{Dir: w.cfg.Dir, Err: err}
	}
	log.Printf("Watching %s for *%s archives (poll %s)", w.cfg.Dir, w.cfg.Suffix, w.cfg.PollInterval)

	if w.cfg.ScanExisting {
		w.scan(ctx)
	}

	defer w.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			log.Printf("Watcher stopping")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("Warning: watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Remove) {
		w.forget(ev.Name)
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}
	if ev.Has(fsnotify.Rename) {
		// the old name is gone; a rename into the directory arrives as Create
		w.forget(ev.Name)
	}
	w.consider(ctx, ev.Name)
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		log.Printf("Warning: initial scan of %s failed: %v", w.cfg.Dir, err)
		return
	}
	for _, e := range entries {
		w.consider(ctx, filepath.Join(w.cfg.Dir, e.Name()))
	}
}

// consider starts a stability check for path if it names an archive
func (w *Watcher) consider(ctx context.Context, path string) {
	if !strings.HasSuffix(filepath.Base(path), w.cfg.Suffix) {
		log.Printf("Ignoring %s (not a %s archive)", filepath.Base(path), w.cfg.Suffix)
		return
	}

	info, err := w.stat(path)
	if err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	if w.inFlight[path] {
		w.mu.Unlock()
		return
	}
	w.inFlight[path] = true
	w.mu.Unlock()

	if w.onDetected != nil {
		w.onDetected()
	}
	log.Printf("Detected archive %s, waiting for it to settle", filepath.Base(path))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.release(path)
		w.awaitStable(ctx, path, info.Size())
	}()
}

// awaitStable polls path until two consecutive observations agree on its
// size, then submits it. A failed stat means the file went away.
func (w *Watcher) awaitStable(ctx context.Context, path string, size int64) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		info, err := w.stat(path)
		if err != nil {
			return
		}
		if info.Size() == size {
			w.submitStable(path, identity{size: info.Size(), modTime: info.ModTime()})
			return
		}
		size = info.Size()
	}
}

func (w *Watcher) submitStable(path string, id identity) {
	w.mu.Lock()
	if prev, ok := w.submitted[path]; ok && prev.size == id.size && prev.modTime.Equal(id.modTime) {
		w.mu.Unlock()
		log.Printf("Skipping %s: already submitted", filepath.Base(path))
		return
	}
	w.submitted[path] = id
	w.mu.Unlock()

	job := pipeline.NewCaptureJob(path, w.cfg.Suffix, w.now())
	if err := w.submit.Submit(job); err != nil {
		log.Printf("[%s] Failed to submit %s: %v", job.ID, path, err)
		w.forget(path)
		return
	}
	if w.onSubmitted != nil {
		w.onSubmitted()
	}
	log.Printf("[%s] ✓ Archive stable (%d bytes), queued", job.ID, id.size)
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, path)
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.submitted, path)
}
