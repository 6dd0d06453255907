package scene

import (
	"reflect"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/internal/core/registry"
)

// GameObjectTokenPrefix marks references to scene objects in saved files.
const GameObjectTokenPrefix = "[GameObject]"

// GameObject is a node of a scene. The scene owns it; parent and children are
// kept as IDs into the scene's object table.
type GameObject struct {
	id     uuid.UUID
	name   string
	active bool

	position mgl32.Vec3
	rotation mgl32.Quat
	scale    mgl32.Vec3
	local    mgl32.Mat4
	dirty    bool

	parent     uuid.UUID
	children   []uuid.UUID
	scene      *Scene
	components []Component
	destroyed  bool
}

func newGameObject(id uuid.UUID, name string) *GameObject {
	return &GameObject{
		id:       id,
		name:     name,
		active:   true,
		rotation: mgl32.QuatIdent(),
		scale:    mgl32.Vec3{1, 1, 1},
		dirty:    true,
	}
}

// ID is stable across save and load.
func (g *GameObject) ID() uuid.UUID { return g.id }

// Name is the last segment of the object path.
func (g *GameObject) Name() string     { return g.name }
func (g *GameObject) SetName(n string) { g.name = n }

// Scene returns the owning scene.
func (g *GameObject) Scene() *Scene { return g.scene }

// IsDestroyed reports whether Destroy ran on g or an ancestor.
func (g *GameObject) IsDestroyed() bool   { return g.destroyed }
func (g *GameObject) String() string      { return g.Path() }
func (g *GameObject) logger() log.Log     { return g.scene.log() }
func (g *GameObject) isRoot() bool        { return g.parent == uuid.Nil }
func (g *GameObject) ChildCount() int     { return len(g.children) }
func (g *GameObject) ComponentCount() int { return len(g.components) }

// Parent returns nil for root objects.
func (g *GameObject) Parent() *GameObject {
	if g.isRoot() || g.scene == nil {
		return nil
	}
	return g.scene.objects[g.parent]
}

// Children returns the direct children in order.
func (g *GameObject) Children() []*GameObject {
	out := make([]*GameObject, 0, len(g.children))
	for _, id := range g.children {
		if c, ok := g.scene.objects[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Child returns the first direct child named name.
func (g *GameObject) Child(name string) *GameObject {
	for _, c := range g.Children() {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Path is "<scene>/<root>/.../<name>".
func (g *GameObject) Path() string {
	if g.scene == nil {
		return g.name
	}
	var parts []string
	for o := g; o != nil; o = o.Parent() {
		parts = append(parts, o.name)
	}
	parts = append(parts, g.scene.name)
	slices.Reverse(parts)
	return strings.Join(parts, "/")
}

// ReferenceToken lets fields pointing at objects persist as path tokens.
func (g *GameObject) ReferenceToken() (string, bool) {
	if g.destroyed || g.scene == nil {
		return "", false
	}
	return GameObjectTokenPrefix + g.Path(), true
}

// IsAncestorOf reports whether g is a strict ancestor of o.
func (g *GameObject) IsAncestorOf(o *GameObject) bool {
	for p := o.Parent(); p != nil; p = p.Parent() {
		if p == g {
			return true
		}
	}
	return false
}

// SetParent moves g under parent, or to the scene roots when parent is nil.
// It refuses parents from another scene and parents inside g's own subtree.
func (g *GameObject) SetParent(parent *GameObject) bool {
	if g.destroyed || g.scene == nil {
		return false
	}
	if parent != nil {
		switch {
		case parent.destroyed:
			g.logger().Error("cannot parent to destroyed object", log.String("object", g.Path()))
			return false
		case parent.scene != g.scene:
			g.logger().Error("cannot parent across scenes",
				log.String("object", g.Path()), log.String("parent", parent.Path()))
			return false
		case parent == g || g.IsAncestorOf(parent):
			g.logger().Error("cannot parent to own descendant",
				log.String("object", g.Path()), log.String("parent", parent.Path()))
			return false
		}
	}
	if g.Parent() == parent {
		return true
	}
	g.detach()
	if parent == nil {
		g.parent = uuid.Nil
		g.scene.roots = append(g.scene.roots, g.id)
	} else {
		g.parent = parent.id
		parent.children = append(parent.children, g.id)
	}
	refreshTree(g)
	return true
}

// detach removes g from its parent's child list or the scene roots.
func (g *GameObject) detach() {
	if p := g.Parent(); p != nil {
		p.children = slices.DeleteFunc(p.children, func(id uuid.UUID) bool { return id == g.id })
		return
	}
	g.scene.roots = slices.DeleteFunc(g.scene.roots, func(id uuid.UUID) bool { return id == g.id })
}

// IsActive returns the local flag; see ActiveInScene for the inherited state.
func (g *GameObject) IsActive() bool { return g.active }

// ActiveInScene is true when g and all of its ancestors are active.
func (g *GameObject) ActiveInScene() bool {
	if g.destroyed {
		return false
	}
	for o := g; o != nil; o = o.Parent() {
		if !o.active {
			return false
		}
	}
	return true
}

// SetActive fires OnEnable/OnDisable across the subtree before returning.
func (g *GameObject) SetActive(active bool) {
	if g.active == active || g.destroyed {
		return
	}
	g.active = active
	refreshTree(g)
}

// refreshTree walks the subtree pre-order. Objects that are active visit
// their components first to last, inactive ones last to first, so later
// components disable before earlier ones.
func refreshTree(g *GameObject) {
	g.walk(func(o *GameObject) bool {
		comps := slices.Clone(o.components)
		if !o.ActiveInScene() {
			slices.Reverse(comps)
		}
		for _, c := range comps {
			refresh(c)
		}
		return true
	})
}

// walk visits g and its descendants pre-order until fn returns false.
func (g *GameObject) walk(fn func(*GameObject) bool) bool {
	if !fn(g) {
		return false
	}
	for _, c := range g.Children() {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

// Components returns the attached components in order.
func (g *GameObject) Components() []Component {
	return slices.Clone(g.components)
}

// AddComponent attaches c. Components added while the scene is playing are
// constructed immediately. Attaching a component owned elsewhere fails.
func (g *GameObject) AddComponent(c Component) Component {
	if c == nil || g.destroyed {
		return nil
	}
	b := c.AsComponent()
	if b.owner != nil || b.destroyed {
		g.logger().Error("component already attached",
			log.String("object", g.Path()), log.String("type", reflect.TypeOf(c).String()))
		return nil
	}
	b.self = c
	b.owner = g
	g.components = append(g.components, c)
	if g.scene != nil && g.scene.Playing() {
		construct(c)
	}
	return c
}

// AddComponentByTag constructs a registered component and attaches it.
func (g *GameObject) AddComponentByTag(reg *registry.Registry, tag string) Component {
	info, ok := reg.Lookup(tag)
	if !ok || info.Kind != registry.KindComponent {
		g.logger().Error("unknown component type", log.String("tag", tag))
		return nil
	}
	c, ok := info.New().(Component)
	if !ok {
		g.logger().Error("registered type is not a component", log.String("tag", tag))
		return nil
	}
	return g.AddComponent(c)
}

// GetComponent returns the first component of type T on g.
func GetComponent[T Component](g *GameObject) (T, bool) {
	for _, c := range g.components {
		if t, ok := c.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// GetComponentInChildren searches g's subtree pre-order.
func GetComponentInChildren[T Component](g *GameObject) (T, bool) {
	var found T
	var ok bool
	g.walk(func(o *GameObject) bool {
		found, ok = GetComponent[T](o)
		return !ok
	})
	return found, ok
}

// RemoveComponent tears c down and detaches it.
func (g *GameObject) RemoveComponent(c Component) bool {
	i := slices.Index(g.components, c)
	if i < 0 {
		return false
	}
	teardown(c)
	g.components = slices.Delete(g.components, i, i+1)
	c.AsComponent().owner = nil
	return true
}

// MoveComponent shifts c by delta positions in the component list.
func (g *GameObject) MoveComponent(c Component, delta int) bool {
	i := slices.Index(g.components, c)
	j := i + delta
	if i < 0 || j < 0 || j >= len(g.components) {
		return false
	}
	g.components = slices.Delete(g.components, i, i+1)
	g.components = slices.Insert(g.components, j, c)
	return true
}

// Destroy tears down children first, then g's components from last to
// first, then unlinks g from its parent and scene.
func (g *GameObject) Destroy() {
	if g.destroyed {
		if g.scene != nil {
			g.logger().Error("object already destroyed", log.String("object", g.name))
		}
		return
	}
	for _, c := range g.Children() {
		c.Destroy()
	}
	for i := len(g.components) - 1; i >= 0; i-- {
		teardown(g.components[i])
	}
	if g.scene != nil {
		g.detach()
		delete(g.scene.objects, g.id)
	}
	g.destroyed = true
}
