package scene

import (
	"slices"
	"strings"

	"github.com/zeusync/zengine/internal/core/events/bus"
	"github.com/zeusync/zengine/internal/core/observability/log"
)

// Manager holds the loaded scenes and drives the frame lifecycle. Like the
// rest of the scene graph it must only be used from the main thread.
type Manager struct {
	bus     bus.EventBus
	logger  log.Log
	playing bool
	scenes  []*Scene
}

// NewManager returns an edit-mode manager publishing on b, or on a private bus when b is nil.
func NewManager(b bus.EventBus, logger log.Log) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	if b == nil {
		b = bus.New()
	}
	return &Manager{bus: b, logger: logger.Named("scenes")}
}

func (m *Manager) Bus() bus.EventBus { return m.bus }

// Playing reports whether the manager is in play mode.
func (m *Manager) Playing() bool { return m.playing }

// SetPlaying switches between edit and play mode. Entering play mode
// constructs every loaded component that has not been constructed yet.
func (m *Manager) SetPlaying(playing bool) {
	if m.playing == playing {
		return
	}
	m.playing = playing
	m.logger.Info("play mode changed", log.Bool("playing", playing))
	if playing {
		for _, s := range m.Scenes() {
			s.constructAll()
		}
	}
}

// Scenes returns the loaded scenes in load order.
func (m *Manager) Scenes() []*Scene {
	return slices.Clone(m.scenes)
}

// SceneByName returns the first loaded scene named name.
func (m *Manager) SceneByName(name string) *Scene {
	for _, s := range m.scenes {
		if s.name == name {
			return s
		}
	}
	return nil
}

// LoadScene adds s. Loading a scene that is already loaded (here or in
// another manager) returns false. In play mode every component is
// constructed before LoadScene returns.
func (m *Manager) LoadScene(s *Scene) bool {
	if s == nil {
		return false
	}
	if s.manager != nil {
		m.logger.Warn("scene already loaded", log.String("scene", s.name))
		return false
	}
	if s.objects == nil {
		s.Defaults()
	}
	if s.logger == nil {
		s.logger = m.logger
	}
	s.manager = m
	m.scenes = append(m.scenes, s)
	if m.playing {
		s.constructAll()
	}
	m.logger.Info("scene loaded", log.String("scene", s.name), log.Int("objects", s.Len()))
	m.publish(bus.SceneLoaded, s, s.Len())
	return true
}

// UnloadScene destroys every root of s and removes it. Unloading a scene
// that is not loaded returns false.
func (m *Manager) UnloadScene(s *Scene) bool {
	if s == nil || s.manager != m {
		return false
	}
	count := s.Len()
	s.Clear()
	m.scenes = slices.DeleteFunc(m.scenes, func(x *Scene) bool { return x == s })
	s.manager = nil
	m.logger.Info("scene unloaded", log.String("scene", s.name), log.Int("objects", count))
	m.publish(bus.SceneUnloaded, s, count)
	return true
}

// SceneEvent is the payload of scene load and unload events. Objects is the
// object count when the scene was loaded or just before it was cleared.
type SceneEvent struct {
	Scene   *Scene
	Objects int
}

func (e SceneEvent) Name() string { return e.Scene.Name() }
func (e SceneEvent) Len() int     { return e.Objects }

func (m *Manager) publish(typ string, s *Scene, objects int) {
	ev := SceneEvent{Scene: s, Objects: objects}
	if err := m.bus.Publish(bus.NewEvent(typ, "scene.manager", ev)); err != nil {
		m.logger.Error("scene listener failed", log.String("event", typ), log.Error(err))
	}
}

// OnSceneLoaded registers fn for load notifications and returns its cancel func.
func (m *Manager) OnSceneLoaded(fn func(*Scene)) func() {
	return m.listen(bus.SceneLoaded, fn)
}

// OnSceneUnloaded registers fn for unload notifications and returns its cancel func.
func (m *Manager) OnSceneUnloaded(fn func(*Scene)) func() {
	return m.listen(bus.SceneUnloaded, fn)
}

func (m *Manager) listen(typ string, fn func(*Scene)) func() {
	sub, err := m.bus.Subscribe(typ, func(e bus.Event) error {
		if ev, ok := e.Data().(SceneEvent); ok {
			fn(ev.Scene)
		}
		return nil
	})
	if err != nil {
		m.logger.Error("cannot subscribe", log.String("event", typ), log.Error(err))
		return func() {}
	}
	return func() { _ = sub.Cancel() }
}

// ResolveObject finds "<scene>/<root>/<child>..." across loaded scenes.
func (m *Manager) ResolveObject(path string) (*GameObject, bool) {
	name, rest, ok := strings.Cut(strings.TrimPrefix(path, GameObjectTokenPrefix), "/")
	if !ok {
		return nil, false
	}
	s := m.SceneByName(name)
	if s == nil {
		return nil, false
	}
	g := s.find(strings.Split(rest, "/"))
	return g, g != nil
}

// Resolver adapts ResolveObject for serializer token resolution.
func (m *Manager) Resolver() func(string) (any, bool) {
	return func(path string) (any, bool) {
		g, ok := m.ResolveObject(path)
		if !ok {
			return nil, false
		}
		return g, true
	}
}

// Update runs one frame: first every pending OnStart (each followed by
// OnEnable) across all loaded scenes, then OnUpdate for live components.
// Nothing runs in edit mode.
func (m *Manager) Update(dt float32) {
	if !m.playing {
		return
	}
	scenes := m.Scenes()
	for _, s := range scenes {
		for g := range s.Walk() {
			if !g.ActiveInScene() {
				continue
			}
			for _, c := range g.Components() {
				b := c.AsComponent()
				if b.constructed && !b.started && !b.destroyed && b.Enabled && b.owner == g && g.ActiveInScene() {
					b.started = true
					c.OnStart()
					refresh(c)
				}
			}
		}
	}
	for _, s := range scenes {
		for g := range s.Walk() {
			for _, c := range g.Components() {
				if b := c.AsComponent(); b.live && !b.destroyed && !g.destroyed {
					c.OnUpdate(dt)
				}
			}
		}
	}
}
