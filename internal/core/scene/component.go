package scene

// Component is behaviour attached to exactly one GameObject. Concrete types
// embed ComponentBase and override the hooks they need.
//
// Hook order per component: OnConstruct once, OnStart once on the first
// frame it is enabled on an active object, then OnEnable/OnDisable on every
// change of (enabled && owner active in scene), OnUpdate each frame while
// live, and OnDestroy once.
type Component interface {
	AsComponent() *ComponentBase
	OnConstruct()
	OnStart()
	OnEnable()
	OnDisable()
	OnUpdate(dt float32)
	OnDestroy()
}

// ComponentBase holds the enabled flag and lifecycle markers.
type ComponentBase struct {
	Enabled bool `json:"enabled"`

	self        Component
	owner       *GameObject
	constructed bool
	started     bool
	live        bool
	destroyed   bool
}

// AsComponent gives the lifecycle state behind any component value.
func (b *ComponentBase) AsComponent() *ComponentBase { return b }

// Defaults makes freshly registered instances start enabled.
func (b *ComponentBase) Defaults() { b.Enabled = true }

// Owner is the object the component is attached to, nil when detached.
func (b *ComponentBase) Owner() *GameObject { return b.owner }

// IsEnabled returns the enabled flag, regardless of the owner being active.
func (b *ComponentBase) IsEnabled() bool { return b.Enabled }

// SetEnabled toggles the component and fires OnEnable/OnDisable when that
// changes whether it is live.
func (b *ComponentBase) SetEnabled(enabled bool) {
	if b.Enabled == enabled {
		return
	}
	b.Enabled = enabled
	if b.self != nil && b.owner != nil {
		refresh(b.self)
	}
}

// IsConstructed reports whether OnConstruct has run.
func (b *ComponentBase) IsConstructed() bool { return b.constructed }
func (b *ComponentBase) IsStarted() bool     { return b.started }

// IsLive reports whether the component is started, enabled and on an object
// active in its scene.
func (b *ComponentBase) IsLive() bool { return b.live }

// IsDestroyed reports whether the component was removed or its owner destroyed.
func (b *ComponentBase) IsDestroyed() bool { return b.destroyed }

// Default hooks do nothing.
func (b *ComponentBase) OnConstruct()     {}
func (b *ComponentBase) OnStart()         {}
func (b *ComponentBase) OnEnable()        {}
func (b *ComponentBase) OnDisable()       {}
func (b *ComponentBase) OnUpdate(float32) {}
func (b *ComponentBase) OnDestroy()       {}

// resetLifecycle clears everything but the enabled flag, for copies.
func (b *ComponentBase) resetLifecycle() {
	*b = ComponentBase{Enabled: b.Enabled}
}

func construct(c Component) {
	b := c.AsComponent()
	if b.constructed || b.destroyed {
		return
	}
	b.constructed = true
	c.OnConstruct()
}

// refresh fires OnEnable/OnDisable when the live state of c changed.
func refresh(c Component) {
	b := c.AsComponent()
	want := b.started && b.Enabled && !b.destroyed && b.owner != nil && b.owner.ActiveInScene()
	if want == b.live {
		return
	}
	b.live = want
	if want {
		c.OnEnable()
	} else {
		c.OnDisable()
	}
}

// teardown disables and destroys c. OnDestroy only runs for components that
// were constructed.
func teardown(c Component) {
	b := c.AsComponent()
	if b.destroyed {
		return
	}
	if b.live {
		b.live = false
		c.OnDisable()
	}
	b.destroyed = true
	if b.constructed {
		c.OnDestroy()
	}
}
