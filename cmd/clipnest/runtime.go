package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hpungsan/clipnest/internal/capture"
	"github.com/hpungsan/clipnest/internal/config"
	"github.com/hpungsan/clipnest/internal/db"
	"github.com/hpungsan/clipnest/internal/errors"
	"github.com/hpungsan/clipnest/internal/history"
	"github.com/hpungsan/clipnest/internal/jsonstore"
	"github.com/hpungsan/clipnest/internal/lockfile"
	"github.com/hpungsan/clipnest/internal/pipeline"
	"github.com/hpungsan/clipnest/internal/screenshot"
)

// storage is a persistence sink that can also reload what it saved.
type storage interface {
	pipeline.Persister
	Load(ctx context.Context) ([]capture.Entry, error)
}

// quarantiner is a storage that can move an unreadable file aside.
type quarantiner interface {
	Quarantine(now time.Time) (string, error)
}

// system groups the platform capabilities a runtime polls.
type system struct {
	Clipboard pipeline.Clipboard
	Fallback  pipeline.TextReader
	Window    pipeline.WindowInspector
}

// runtime is a loaded history plus the pipeline around it.
type runtime struct {
	baseDir string
	cfg     *config.Config
	logger  *slog.Logger
	p       *pipeline.Pipeline

	// sink receives pipeline events; set by serve/watch before Run.
	sink pipeline.Emitter

	closer io.Closer

	mu   sync.Mutex
	lock *lockfile.Lock
}

// openStorage opens the sink selected by cfg.Storage.
func openStorage(baseDir string, cfg *config.Config) (storage, io.Closer, error) {
	switch cfg.Storage {
	case config.StorageJSON:
		s, err := jsonstore.New(baseDir)
		if err != nil {
			return nil, nil, err
		}
		return s, io.NopCloser(nil), nil
	default:
		database, err := db.Init(baseDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		db.ConfigurePool(database, cfg)
		sink := db.NewSink(database)
		return sink, sink, nil
	}
}

// newRuntime loads persisted history and wires the pipeline.
func newRuntime(ctx context.Context, baseDir string, cfg *config.Config, logger *slog.Logger, sys system) (*runtime, error) {
	st, closer, err := openStorage(baseDir, cfg)
	if err != nil {
		return nil, err
	}

	entries, err := st.Load(ctx)
	if err != nil {
		entries, err = recoverLoad(st, err, logger)
		if err != nil {
			closer.Close()
			return nil, err
		}
	}

	store, err := history.New(cfg.HistoryLimit, cfg.DedupWindow())
	if err != nil {
		closer.Close()
		return nil, err
	}
	store.Replace(entries)

	rt := &runtime{baseDir: baseDir, cfg: cfg, logger: logger, closer: closer}

	p, err := pipeline.New(pipeline.Options{
		Clipboard: sys.Clipboard,
		Fallback:  sys.Fallback,
		Window:    sys.Window,
		Emitter:   pipeline.EmitterFunc(rt.emit),
		Persister: ownedPersister{rt: rt, st: st},
		Store:     store,
		Settings:  pipeline.NewSettings(cfg),
		Heuristic: screenshot.New(cfg.ScreenshotTools, cfg.SnipWindow()),
		Interval:  cfg.PollInterval(),
		Logger:    logger,
	})
	if err != nil {
		closer.Close()
		return nil, err
	}
	rt.p = p

	logger.Debug("history loaded", "entries", store.Len(), "storage", cfg.Storage)
	return rt, nil
}

// recoverLoad handles a failed load. A history file that does not decode
// is moved aside and the runtime starts empty; anything else (unreadable
// file, database error) is returned so the next save cannot destroy data.
func recoverLoad(st storage, loadErr error, logger *slog.Logger) ([]capture.Entry, error) {
	q, ok := st.(quarantiner)
	if !ok || !stderrors.Is(loadErr, jsonstore.ErrCorrupt) {
		return nil, fmt.Errorf("failed to load history: %w", loadErr)
	}
	moved, err := q.Quarantine(time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w (%v)", loadErr, err)
	}
	logger.Warn("history file is corrupt, moved aside and starting empty", "error", loadErr, "moved_to", moved)
	return nil, nil
}

// ownedPersister writes history only while the runtime owns the base
// directory. A one-shot command running beside a watcher or server leaves
// the owner's history alone.
type ownedPersister struct {
	rt *runtime
	st storage
}

func (o ownedPersister) Save(ctx context.Context, entries []capture.Entry) error {
	if !o.rt.owner() {
		o.rt.logger.Debug("history save skipped, base directory owned elsewhere")
		return nil
	}
	return o.st.Save(ctx, entries)
}

// acquire takes ownership of the base directory. It is a no-op when this
// runtime already owns it, and returns lockfile.ErrHeld when another
// process does.
func (rt *runtime) acquire() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.lock != nil {
		return nil
	}
	l, err := lockfile.TryAcquire(rt.baseDir)
	if err != nil {
		return err
	}
	rt.lock = l
	return nil
}

// owner reports whether this runtime owns the base directory.
func (rt *runtime) owner() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lock != nil
}

// requireOwner acquires ownership for a history mutation, mapping a held
// lock to a BUSY error.
func (rt *runtime) requireOwner() error {
	err := rt.acquire()
	if stderrors.Is(err, lockfile.ErrHeld) {
		return errors.NewBusy(rt.baseDir)
	}
	return err
}

// preferOwner acquires ownership when it is free. A held lock is not an
// error: config edits reach the owner through its config watcher.
func (rt *runtime) preferOwner() error {
	if err := rt.acquire(); err != nil && !stderrors.Is(err, lockfile.ErrHeld) {
		return err
	}
	return nil
}

func (rt *runtime) emit(name string, payload any) {
	if rt.sink != nil {
		rt.sink.Emit(name, payload)
	}
}

// watchConfig applies config.json edits until ctx is done.
func (rt *runtime) watchConfig(ctx context.Context) {
	err := config.Watch(ctx, rt.baseDir, rt.logger, func(cfg *config.Config) {
		if err := rt.p.Apply(cfg); err != nil {
			rt.logger.Warn("config change rejected", "error", err)
		}
	})
	if err != nil {
		rt.logger.Warn("config watcher stopped", "error", err)
	}
}

// Close releases ownership and the storage backend.
func (rt *runtime) Close() error {
	rt.mu.Lock()
	l := rt.lock
	rt.lock = nil
	rt.mu.Unlock()

	var lockErr error
	if l != nil {
		lockErr = l.Close()
	}
	return stderrors.Join(rt.closer.Close(), lockErr)
}
