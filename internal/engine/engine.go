// Package engine ties the registry, asset cache, serializer and scene
// manager into one explicit context. There are no package-level singletons:
// everything reachable from a running engine hangs off an Engine value.
package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/zeusync/zengine/internal/config"
	"github.com/zeusync/zengine/internal/core/assets"
	"github.com/zeusync/zengine/internal/core/assets/builtin"
	"github.com/zeusync/zengine/internal/core/events/bus"
	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/internal/core/registry"
	"github.com/zeusync/zengine/internal/core/scene"
	"github.com/zeusync/zengine/internal/core/serial"
	"github.com/zeusync/zengine/internal/server"
)

var (
	ErrNotScene      = errors.New("asset is not a scene")
	ErrAlreadyLoaded = errors.New("scene already loaded")
	ErrNotOpen       = errors.New("engine not open")
	ErrStaleScene    = errors.New("scene instance no longer cached")
)

type Engine struct {
	Config     config.Config
	Logger     log.Log
	Console    *log.Console
	Registry   *registry.Registry
	Cache      *assets.Cache
	Serializer *serial.Serializer
	Bus        bus.EventBus
	Scenes     *scene.Manager
	Notifier   *server.Notifier

	watcher *assets.Watcher
	open    bool
	frame   uint64
}

// New connects the services: object tokens resolve across the manager's
// loaded scenes, unloaded scene assets leave the cache so the next load reads
// the file again, and the manager starts in the configured mode.
func New(
	cfg config.Config,
	logger log.Log,
	console *log.Console,
	reg *registry.Registry,
	cache *assets.Cache,
	ser *serial.Serializer,
	b bus.EventBus,
	m *scene.Manager,
	n *server.Notifier,
) *Engine {
	ser.AddResolver(scene.GameObjectTokenPrefix, m.Resolver())
	m.OnSceneUnloaded(func(s *scene.Scene) { cache.Release(s) })
	m.SetPlaying(cfg.Playing)
	return &Engine{
		Config:     cfg,
		Logger:     logger.Named("engine"),
		Console:    console,
		Registry:   reg,
		Cache:      cache,
		Serializer: ser,
		Bus:        b,
		Scenes:     m,
		Notifier:   n,
	}
}

// Open scans the project and, when configured, starts watching it.
func (e *Engine) Open() error {
	var bfs = builtin.FS()
	if !e.Config.Builtin {
		bfs = nil
	}
	if err := e.Cache.Rebuild(e.Config.Project, bfs); err != nil {
		return err
	}
	if e.Config.Watch {
		w, err := assets.NewWatcher(e.Cache.Roots().ProjectDir, e.Logger)
		if err != nil {
			return errors.Wrap(err, "watch project")
		}
		e.watcher = w
	}
	e.open = true
	e.Logger.Info("engine open",
		log.String("project", e.Cache.Roots().ProjectDir), log.Int("assets", e.Cache.Len()), log.Bool("watch", e.Config.Watch))
	return nil
}

// LoadScene loads the scene asset at rel into the manager.
func (e *Engine) LoadScene(rel string) (*scene.Scene, error) {
	if !e.open {
		return nil, ErrNotOpen
	}
	a, err := e.Cache.GetPath(rel)
	if err != nil {
		return nil, err
	}
	s, ok := a.(*scene.Scene)
	if !ok {
		return nil, errors.Wrapf(ErrNotScene, "%s is %T", rel, a)
	}
	s.SetLogger(e.Logger.Named("scene"))
	if !e.Scenes.LoadScene(s) {
		return nil, errors.Wrap(ErrAlreadyLoaded, rel)
	}
	return s, nil
}

// CreateScene authors an empty scene file at rel.
func (e *Engine) CreateScene(rel, name string) (*scene.Scene, error) {
	if !e.open {
		return nil, ErrNotOpen
	}
	s := scene.NewScene(name, e.Logger.Named("scene"))
	if _, err := e.Cache.Create(rel, s); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveScene writes a scene asset back to its file. Instances that were
// unloaded are refused so they cannot overwrite the file with an empty scene.
func (e *Engine) SaveScene(s *scene.Scene) error {
	if s.Location() != nil && !e.Cache.Holds(s) {
		return errors.Wrap(ErrStaleScene, s.Location().Path())
	}
	return e.Cache.Save(s)
}

// Frame is the number of completed steps.
func (e *Engine) Frame() uint64 { return e.frame }

// Step applies queued file changes, reloading scenes whose file changed,
// then runs one frame.
func (e *Engine) Step(dt float32) {
	if e.watcher != nil {
		e.reload()
	}
	e.Scenes.Update(dt)
	e.frame++
}

func (e *Engine) reload() {
	loaded := make(map[string]bool)
	for _, s := range e.Scenes.Scenes() {
		if loc := s.Location(); loc != nil {
			loaded[loc.Path()] = true
		}
	}
	for _, p := range e.watcher.Apply(e.Cache) {
		if !loaded[p] {
			continue
		}
		if _, err := e.LoadScene(p); err != nil {
			e.Logger.Error("scene reload failed", log.String("path", p), log.Error(err))
			continue
		}
		e.Logger.Info("scene reloaded", log.String("path", p))
	}
}

// Run steps at the configured frame rate. With frames > 0 it returns after
// that many frames, otherwise when ctx is done.
func (e *Engine) Run(ctx context.Context, frames int) error {
	interval := time.Second / time.Duration(e.Config.FrameRate)
	dt := float32(interval.Seconds())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; frames <= 0 || n < frames; n++ {
		select {
		case <-ctx.Done():
			if frames <= 0 {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			e.Step(dt)
		}
	}
	return nil
}

// Serve starts the websocket notifier on addr, or the configured address.
func (e *Engine) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = e.Config.Notifier.Addr
	}
	return e.Notifier.Start(ctx, addr)
}

// Close stops the notifier and watcher, unloads every scene and asset, and
// flushes the logger.
func (e *Engine) Close() error {
	var errs []error
	if err := e.Notifier.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
		e.watcher = nil
	}
	for _, s := range e.Scenes.Scenes() {
		e.Scenes.UnloadScene(s)
	}
	e.Cache.UnloadAll()
	e.open = false
	if s, ok := e.Logger.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
