package scene

import (
	"iter"
	"strings"

	"github.com/google/uuid"

	"github.com/zeusync/zengine/internal/core/assets"
	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/internal/core/registry"
)

// Tag and file extension of scene assets.
const (
	TagScene = "Scene"
	ExtScene = "scene"
)

// Register adds the scene asset type.
func Register(r *registry.Registry) error {
	return registry.RegisterAsset[Scene](r, TagScene,
		registry.WithParent(assets.TagAsset), registry.WithExtensions(ExtScene), registry.JSONBacked())
}

// Scene owns every GameObject in it. Objects live in an ID table; roots keeps
// the ordered top level.
type Scene struct {
	assets.Base
	name    string
	objects map[uuid.UUID]*GameObject
	roots   []uuid.UUID
	manager *Manager
	logger  log.Log
}

// NewScene returns an empty scene. A nil logger is replaced by the manager's on load.
func NewScene(name string, logger log.Log) *Scene {
	s := &Scene{name: name}
	s.Defaults()
	s.logger = logger
	return s
}

// Defaults prepares the object table for scenes built by the registry.
func (s *Scene) Defaults() {
	s.objects = make(map[uuid.UUID]*GameObject)
}

// log falls back to a no-op logger without keeping it, so a manager can
// still hand its own logger to the scene on load.
func (s *Scene) log() log.Log {
	if s.logger == nil {
		return nopLogger
	}
	return s.logger
}

var nopLogger = log.NewNop()

// SetLogger replaces the logger, e.g. for scenes constructed by the asset cache.
func (s *Scene) SetLogger(l log.Log) { s.logger = l }

// Name is the first segment of every object path in the scene.
func (s *Scene) Name() string { return s.name }

func (s *Scene) SetName(name string) { s.name = name }

// Len is the number of live objects.
func (s *Scene) Len() int { return len(s.objects) }

// Loaded reports whether a manager currently holds the scene.
func (s *Scene) Loaded() bool { return s.manager != nil }

// Playing reports whether the scene is loaded into a manager in play mode.
func (s *Scene) Playing() bool { return s.manager != nil && s.manager.playing }

// Instantiate creates an active object under parent, or as a root when parent is nil.
func (s *Scene) Instantiate(name string, parent *GameObject) *GameObject {
	return s.instantiate(uuid.New(), name, parent)
}

func (s *Scene) instantiate(id uuid.UUID, name string, parent *GameObject) *GameObject {
	if parent != nil && (parent.scene != s || parent.destroyed) {
		s.log().Error("instantiate under foreign parent", log.String("name", name))
		return nil
	}
	if _, taken := s.objects[id]; taken || id == uuid.Nil {
		id = uuid.New()
	}
	g := newGameObject(id, name)
	g.scene = s
	s.objects[id] = g
	if parent == nil {
		s.roots = append(s.roots, id)
	} else {
		g.parent = parent.id
		parent.children = append(parent.children, id)
	}
	return g
}

// Roots returns the top-level objects in order.
func (s *Scene) Roots() []*GameObject {
	out := make([]*GameObject, 0, len(s.roots))
	for _, id := range s.roots {
		out = append(out, s.objects[id])
	}
	return out
}

// Object looks an object up by ID.
func (s *Scene) Object(id uuid.UUID) (*GameObject, bool) {
	g, ok := s.objects[id]
	return g, ok
}

// Find walks named children from the roots: "Player/Camera". A leading
// scene name segment is accepted.
func (s *Scene) Find(path string) *GameObject {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 1 && parts[0] == s.name {
		if g := s.find(parts[1:]); g != nil {
			return g
		}
	}
	return s.find(parts)
}

func (s *Scene) find(parts []string) *GameObject {
	if len(parts) == 0 || parts[0] == "" {
		return nil
	}
	var cur *GameObject
	for _, r := range s.Roots() {
		if r.name == parts[0] {
			cur = r
			break
		}
	}
	for _, p := range parts[1:] {
		if cur == nil {
			return nil
		}
		cur = cur.Child(p)
	}
	return cur
}

// Walk yields every object pre-order, roots in order.
func (s *Scene) Walk() iter.Seq[*GameObject] {
	return func(yield func(*GameObject) bool) {
		for _, r := range s.Roots() {
			if !r.walk(yield) {
				return
			}
		}
	}
}

// Clear destroys every root.
func (s *Scene) Clear() {
	for _, r := range s.Roots() {
		r.Destroy()
	}
}

// constructAll runs OnConstruct for every component not yet constructed.
func (s *Scene) constructAll() {
	for g := range s.Walk() {
		for _, c := range g.Components() {
			construct(c)
		}
	}
}

// Load names scenes read from disk after their file when the body had none.
func (s *Scene) Load(ctx *assets.LoadContext) error {
	if s.name == "" {
		s.name = ctx.Location.Name()
	}
	return nil
}

// Unload releases the scene's objects, taking it out of its manager first.
func (s *Scene) Unload() {
	if s.manager != nil {
		s.manager.UnloadScene(s)
		return
	}
	s.Clear()
}
