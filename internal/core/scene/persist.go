package scene

import (
	"reflect"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"

	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/internal/core/serial"
)

type sceneData struct {
	Name    string       `json:"name"`
	Objects []objectData `json:"objects"`
}

type objectData struct {
	ID         uuid.UUID    `json:"id"`
	Name       string       `json:"name"`
	Active     bool         `json:"active"`
	Position   mgl32.Vec3   `json:"position"`
	Rotation   mgl32.Vec4   `json:"rotation"`
	Scale      mgl32.Vec3   `json:"scale"`
	Components []Component  `json:"components"`
	Children   []objectData `json:"children,omitempty"`
}

func (g *GameObject) snapshot() objectData {
	d := objectData{
		ID:         g.id,
		Name:       g.name,
		Active:     g.active,
		Position:   g.position,
		Rotation:   mgl32.Vec4{g.rotation.V[0], g.rotation.V[1], g.rotation.V[2], g.rotation.W},
		Scale:      g.scale,
		Components: g.Components(),
	}
	for _, c := range g.Children() {
		d.Children = append(d.Children, c.snapshot())
	}
	return d
}

// apply copies d onto g and rebuilds d's children under g. With fresh set,
// children get new IDs instead of the stored ones.
func (g *GameObject) apply(d objectData, fresh bool) {
	g.name = d.Name
	g.active = d.Active
	g.position = d.Position
	g.rotation = mgl32.Quat{W: d.Rotation[3], V: d.Rotation.Vec3()}
	if g.rotation.Len() == 0 {
		g.rotation = mgl32.QuatIdent()
	}
	g.scale = d.Scale
	g.dirty = true
	for _, c := range d.Components {
		if c != nil {
			g.AddComponent(c)
		}
	}
	for _, cd := range d.Children {
		id := cd.ID
		if fresh {
			id = uuid.New()
		}
		child := g.scene.instantiate(id, cd.Name, g)
		child.apply(cd, fresh)
	}
}

// resolvePath finds objects for "[GameObject]" tokens naming this scene.
func (s *Scene) resolvePath(path string) (any, bool) {
	name, rest, ok := strings.Cut(path, "/")
	if !ok || name != s.name {
		return nil, false
	}
	g := s.find(strings.Split(rest, "/"))
	if g == nil {
		return nil, false
	}
	return g, true
}

// Persist writes the scene as its name and the tree of objects.
func (s *Scene) Persist(e *serial.Encoder) (any, error) {
	d := sceneData{Name: s.name, Objects: make([]objectData, 0, len(s.roots))}
	for _, r := range s.Roots() {
		d.Objects = append(d.Objects, r.snapshot())
	}
	return e.Encode(d)
}

// Restore replaces the scene's contents with the decoded tree. Object tokens
// naming this scene resolve against the rebuilt tree.
func (s *Scene) Restore(d *serial.Decoder) error {
	var data sceneData
	d.AddResolver(GameObjectTokenPrefix, s.resolvePath)
	if err := d.Decode(&data); err != nil {
		return err
	}
	if s.objects == nil {
		s.Defaults()
	}
	s.Clear()
	if data.Name != "" {
		s.name = data.Name
	}
	for _, od := range data.Objects {
		g := s.instantiate(od.ID, od.Name, nil)
		g.apply(od, false)
	}
	s.log().Debug("scene restored", log.String("scene", s.name), log.Int("objects", s.Len()))
	return nil
}

// Persist writes g and its subtree; used for copy and paste.
func (g *GameObject) Persist(e *serial.Encoder) (any, error) {
	return e.Encode(g.snapshot())
}

// Restore fills an already instantiated object from a copied subtree. The
// object keeps its own ID and its children get fresh ones.
func (g *GameObject) Restore(d *serial.Decoder) error {
	if g.scene == nil {
		return errors.New("restore into object without scene")
	}
	var data objectData
	d.AddResolver(GameObjectTokenPrefix, g.scene.resolvePath)
	if err := d.Decode(&data); err != nil {
		return err
	}
	g.apply(data, true)
	return nil
}

// CopyObject serializes g and its subtree for a later PasteObject.
func CopyObject(ser *serial.Serializer, g *GameObject) ([]byte, error) {
	if g == nil || g.destroyed {
		return nil, errors.New("copy of destroyed object")
	}
	return ser.Marshal(g)
}

// PasteObject instantiates a copied subtree under parent, or as a root of s.
func PasteObject(ser *serial.Serializer, data []byte, s *Scene, parent *GameObject) (*GameObject, error) {
	g := s.Instantiate("", parent)
	if g == nil {
		return nil, errors.New("paste under foreign parent")
	}
	if err := ser.Unmarshal(data, g); err != nil {
		g.Destroy()
		return nil, err
	}
	return g, nil
}

// Duplicate clones g, its components and its subtree as a sibling. Component
// fields are copied shallowly so assets and object references stay shared.
func (s *Scene) Duplicate(g *GameObject) *GameObject {
	if g == nil || g.destroyed || g.scene != s {
		return nil
	}
	return s.duplicate(g, g.Parent())
}

func (s *Scene) duplicate(g, parent *GameObject) *GameObject {
	dup := s.Instantiate(g.name, parent)
	dup.active = g.active
	dup.position, dup.rotation, dup.scale = g.position, g.rotation, g.scale
	dup.dirty = true
	for _, c := range g.components {
		clone := reflect.New(reflect.TypeOf(c).Elem()).Interface().(Component)
		if err := copier.Copy(clone, c); err != nil {
			s.log().Error("component copy failed",
				log.String("object", g.Path()), log.String("type", reflect.TypeOf(c).String()), log.Error(err))
			continue
		}
		clone.AsComponent().resetLifecycle()
		dup.AddComponent(clone)
	}
	for _, child := range g.Children() {
		s.duplicate(child, dup)
	}
	return dup
}
