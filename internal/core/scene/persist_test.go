package scene

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/zengine/internal/core/assets"
	"github.com/zeusync/zengine/internal/core/assets/builtin"
	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/internal/core/registry"
	"github.com/zeusync/zengine/internal/core/serial"
)

type renderer struct {
	ComponentBase
	Mesh     *assets.Mesh     `json:"mesh"`
	Material *assets.Material `json:"material"`
}

type follower struct {
	ComponentBase
	Target   *GameObject `json:"target"`
	Distance float32     `json:"distance"`
}

type world struct {
	reg   *registry.Registry
	cache *assets.Cache
	ser   *serial.Serializer
	fs    *mem.FS
	logs  *observer.ObservedLogs
}

func newWorld(t *testing.T) *world {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := log.FromZap(zap.New(core))

	reg := registry.New(logger)
	require.NoError(t, assets.Register(reg))
	require.NoError(t, Register(reg))
	require.NoError(t, registry.RegisterComponent[renderer](reg, "Renderer"))
	require.NoError(t, registry.RegisterComponent[follower](reg, "Follower"))
	require.NoError(t, registry.RegisterComponent[probe](reg, "Probe"))

	fsys, err := mem.NewFS()
	require.NoError(t, err)
	cache := assets.NewCache(reg, logger)
	ser := serial.New(reg, cache, logger)
	cache.SetCodec(ser)
	require.NoError(t, cache.RebuildFS(fsys, "", builtin.FS()))
	return &world{reg: reg, cache: cache, ser: ser, fs: fsys, logs: logs}
}

func (w *world) asset(t *testing.T, rel string) assets.Asset {
	t.Helper()
	a, err := w.cache.GetPath(rel)
	require.NoError(t, err)
	return a
}

// level builds Player (renderer, child Eye), Enemy (renderer sharing the
// mesh) and Camera (follower targeting Player/Eye).
func (w *world) level(t *testing.T) *Scene {
	t.Helper()
	mesh := w.asset(t, "builtin/meshes/cube.obj").(*assets.Mesh)
	mat := w.asset(t, "builtin/materials/default.mat").(*assets.Material)

	s := NewScene("Level", nil)
	player := s.Instantiate("Player", nil)
	player.SetPosition(mgl32.Vec3{1, 2, 3})
	player.SetEuler(0, 90, 0)
	player.AddComponent(&renderer{ComponentBase: ComponentBase{Enabled: true}, Mesh: mesh, Material: mat})
	eye := s.Instantiate("Eye", player)
	eye.SetActive(false)

	enemy := s.Instantiate("Enemy", nil)
	enemy.SetScale(mgl32.Vec3{2, 2, 2})
	enemy.AddComponent(&renderer{ComponentBase: ComponentBase{Enabled: false}, Mesh: mesh})

	cam := s.Instantiate("Camera", nil)
	cam.AddComponent(&follower{ComponentBase: ComponentBase{Enabled: true}, Target: eye, Distance: 4})
	return s
}

func TestSceneRoundTrip(t *testing.T) {
	w := newWorld(t)
	s := w.level(t)

	data, err := w.ser.Marshal(s)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"@type": "Renderer"`)
	assert.Contains(t, text, `"builtin/meshes/cube.obj"`)
	assert.Contains(t, text, `"[GameObject]Level/Player/Eye"`)

	out := NewScene("", nil)
	require.NoError(t, w.ser.Unmarshal(data, out))
	assert.Equal(t, "Level", out.Name())
	require.Len(t, out.Roots(), 3)
	assert.Equal(t, 4, out.Len())

	player := out.Find("Player")
	require.NotNil(t, player)
	assert.Equal(t, s.Find("Player").ID(), player.ID())
	assert.True(t, player.Position().ApproxEqual(mgl32.Vec3{1, 2, 3}))
	assert.True(t, player.Rotation().ApproxEqualThreshold(s.Find("Player").Rotation(), 1e-6))
	assert.False(t, out.Find("Player/Eye").IsActive())

	pr, ok := GetComponent[*renderer](player)
	require.True(t, ok)
	er, ok := GetComponent[*renderer](out.Find("Enemy"))
	require.True(t, ok)
	assert.Same(t, pr.Mesh, er.Mesh)
	assert.Same(t, w.asset(t, "builtin/meshes/cube.obj"), pr.Mesh)
	assert.True(t, pr.Enabled)
	assert.False(t, er.Enabled)
	assert.Nil(t, er.Material)
	assert.Same(t, player, pr.Owner())

	f, ok := GetComponent[*follower](out.Find("Camera"))
	require.True(t, ok)
	assert.Same(t, out.Find("Player/Eye"), f.Target)
	assert.Equal(t, float32(4), f.Distance)
}

func TestRestoredSceneStartsUnconstructed(t *testing.T) {
	w := newWorld(t)
	var journal []string
	s := NewScene("Main", nil)
	s.Instantiate("G", nil).AddComponent(newProbe("p", &journal))
	data, err := w.ser.Marshal(s)
	require.NoError(t, err)

	out := NewScene("", nil)
	require.NoError(t, w.ser.Unmarshal(data, out))
	p, ok := GetComponent[*probe](out.Find("G"))
	require.True(t, ok)
	assert.Equal(t, "p", p.Label)
	assert.False(t, p.IsConstructed())
	assert.True(t, p.IsEnabled())
}

func TestRestoredSceneLogsThroughManager(t *testing.T) {
	w := newWorld(t)
	s := NewScene("Main", nil)
	s.Instantiate("A", nil)
	data, err := w.ser.Marshal(s)
	require.NoError(t, err)

	out := NewScene("", nil)
	require.NoError(t, w.ser.Unmarshal(data, out))

	core, logs := observer.New(zapcore.DebugLevel)
	m := NewManager(nil, log.FromZap(zap.New(core)))
	require.True(t, m.LoadScene(out))

	a := out.Find("A")
	require.NotNil(t, a)
	assert.False(t, a.SetParent(a))
	assert.Equal(t, 1, logs.FilterMessage("cannot parent to own descendant").Len())
}

func TestSceneAssetFile(t *testing.T) {
	w := newWorld(t)
	loc, err := w.cache.Create("levels/one.scene", w.level(t))
	require.NoError(t, err)

	data, err := fs.ReadFile(w.fs, "levels/one.scene")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Scene\n"))

	w.cache.Unload(loc)
	a, err := w.cache.Get(loc)
	require.NoError(t, err)
	s := a.(*Scene)
	assert.Equal(t, "Level", s.Name())
	assert.Equal(t, 4, s.Len())
	f, ok := GetComponent[*follower](s.Find("Camera"))
	require.True(t, ok)
	assert.Same(t, s.Find("Player/Eye"), f.Target)
}

func TestUnresolvedObjectTokenIsEmpty(t *testing.T) {
	w := newWorld(t)
	doc := `{"name": "Main", "objects": [{"id": "00000000-0000-0000-0000-000000000000", "name": "Cam",
		"active": true, "position": [0, 0, 0], "rotation": [0, 0, 0, 1], "scale": [1, 1, 1],
		"components": [{"@type": "Follower", "enabled": true, "target": "[GameObject]Main/Gone", "distance": 1}]}]}`

	s := NewScene("", nil)
	require.NoError(t, w.ser.Unmarshal([]byte(doc), s))
	cam := s.Find("Cam")
	require.NotNil(t, cam)
	f, ok := GetComponent[*follower](cam)
	require.True(t, ok)
	assert.Nil(t, f.Target)
	assert.Equal(t, 1, w.logs.FilterMessage("unresolved reference").Len())
}

func TestCrossSceneTokensUseManager(t *testing.T) {
	w := newWorld(t)
	m := NewManager(nil, nil)
	w.ser.AddResolver(GameObjectTokenPrefix, m.Resolver())

	hub := NewScene("Hub", nil)
	spawn := hub.Instantiate("Spawn", nil)
	require.True(t, m.LoadScene(hub))

	s := NewScene("Arena", nil)
	s.Instantiate("Cam", nil).AddComponent(&follower{ComponentBase: ComponentBase{Enabled: true}, Target: spawn})
	data, err := w.ser.Marshal(s)
	require.NoError(t, err)

	out := NewScene("", nil)
	require.NoError(t, w.ser.Unmarshal(data, out))
	f, ok := GetComponent[*follower](out.Find("Cam"))
	require.True(t, ok)
	assert.Same(t, spawn, f.Target)
}

func TestCopyPaste(t *testing.T) {
	w := newWorld(t)
	s := w.level(t)
	player := s.Find("Player")

	data, err := CopyObject(w.ser, player)
	require.NoError(t, err)

	holder := s.Instantiate("Holder", nil)
	pasted, err := PasteObject(w.ser, data, s, holder)
	require.NoError(t, err)
	assert.Equal(t, "Player", pasted.Name())
	assert.NotEqual(t, player.ID(), pasted.ID())
	assert.Same(t, holder, pasted.Parent())

	eye := pasted.Child("Eye")
	require.NotNil(t, eye)
	assert.NotEqual(t, s.Find("Player/Eye").ID(), eye.ID())
	assert.False(t, eye.IsActive())

	r, ok := GetComponent[*renderer](pasted)
	require.True(t, ok)
	orig, _ := GetComponent[*renderer](player)
	assert.Same(t, orig.Mesh, r.Mesh)
	assert.NotSame(t, orig, r)

	_, err = PasteObject(w.ser, []byte(`{"name": `), s, nil)
	var perr *serial.ParseError
	assert.ErrorAs(t, err, &perr)
	assert.Len(t, s.Roots(), 4, "failed paste leaves nothing behind")

	player.Destroy()
	_, err = CopyObject(w.ser, player)
	assert.Error(t, err)
}

func TestDuplicate(t *testing.T) {
	w := newWorld(t)
	s := w.level(t)
	var journal []string
	cam := s.Find("Camera")
	cam.AddComponent(newProbe("p", &journal))
	m := NewManager(nil, nil)
	m.SetPlaying(true)
	require.True(t, m.LoadScene(s))
	m.Update(0)

	journal = nil
	dup := s.Duplicate(cam)
	require.NotNil(t, dup)
	assert.Equal(t, []*GameObject{s.Find("Player"), s.Find("Enemy"), cam, dup}, s.Roots())
	assert.Equal(t, []string{"p.construct"}, journal)

	f, ok := GetComponent[*follower](dup)
	require.True(t, ok)
	orig, _ := GetComponent[*follower](cam)
	assert.NotSame(t, orig, f)
	assert.Same(t, orig.Target, f.Target)
	assert.Same(t, dup, f.Owner())
	assert.False(t, f.IsStarted())

	m.Update(0)
	assert.Equal(t, []string{"p.construct", "p.start", "p.enable", "p.update", "p.update"}, journal)
}
