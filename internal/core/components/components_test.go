package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zengine/internal/core/assets"
	"github.com/zeusync/zengine/internal/core/assets/builtin"
	"github.com/zeusync/zengine/internal/core/registry"
	"github.com/zeusync/zengine/internal/core/scene"
	"github.com/zeusync/zengine/internal/core/serial"
)

type env struct {
	reg   *registry.Registry
	cache *assets.Cache
	ser   *serial.Serializer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	reg := registry.New(nil)
	require.NoError(t, assets.Register(reg))
	require.NoError(t, scene.Register(reg))
	require.NoError(t, Register(reg))

	fsys, err := mem.NewFS()
	require.NoError(t, err)
	cache := assets.NewCache(reg, nil)
	ser := serial.New(reg, cache, nil)
	cache.SetCodec(ser)
	require.NoError(t, cache.RebuildFS(fsys, "", builtin.FS()))
	return &env{reg: reg, cache: cache, ser: ser}
}

func TestCameraSceneRoundTrip(t *testing.T) {
	e := newEnv(t)
	s := scene.NewScene("S", nil)
	s.Instantiate("Camera", nil).AddComponentByTag(e.reg, "Camera")

	text, err := e.ser.Marshal(s)
	require.NoError(t, err)
	s.Clear()
	assert.Zero(t, s.Len())

	out := scene.NewScene("", nil)
	require.NoError(t, e.ser.Unmarshal(text, out))
	roots := out.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "Camera", roots[0].Name())
	comps := roots[0].Components()
	require.Len(t, comps, 1)
	assert.Equal(t, "Camera", e.reg.TagOf(comps[0]))
	cam := comps[0].(*Camera)
	assert.Equal(t, float32(60), cam.FieldOfView)
	assert.True(t, cam.IsEnabled())
}

func TestRegisteredTags(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, []string{"Camera", "Follow", "Light", "MeshRenderer", "Spinner"}, e.reg.Tags(registry.KindComponent))

	v, err := e.reg.New("Light")
	require.NoError(t, err)
	l := v.(*Light)
	assert.Equal(t, Point, l.Kind)
	assert.True(t, l.Enabled)
	assert.Equal(t, "Light", e.reg.TagOf(l))

	assert.ErrorIs(t, Register(e.reg), registry.ErrDuplicateTag)
}

func TestLightFieldPredicates(t *testing.T) {
	e := newEnv(t)
	l := NewLight(Spot)
	assert.True(t, e.reg.FieldVisible(l, "spotAngle"))
	assert.True(t, e.reg.FieldVisible(l, "range"))
	assert.True(t, e.reg.FieldVisible(l, "intensity"))

	l.Kind = Point
	assert.False(t, e.reg.FieldVisible(l, "spotAngle"))
	assert.True(t, e.reg.FieldVisible(l, "range"))

	l.Kind = Directional
	assert.False(t, e.reg.FieldVisible(l, "range"))
}

func TestLightKindPersistsByName(t *testing.T) {
	e := newEnv(t)
	s := scene.NewScene("S", nil)
	s.Instantiate("Sun", nil).AddComponent(NewLight(Directional))

	text, err := e.ser.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(text), `"kind": "Directional"`)

	out := scene.NewScene("", nil)
	require.NoError(t, e.ser.Unmarshal(text, out))
	l, ok := scene.GetComponent[*Light](out.Find("Sun"))
	require.True(t, ok)
	assert.Equal(t, Directional, l.Kind)

	var k LightKind
	assert.Error(t, k.UnmarshalText([]byte("Laser")))
	_, err = LightKind(9).MarshalText()
	assert.Error(t, err)
}

func TestRendererSharesAssets(t *testing.T) {
	e := newEnv(t)
	mesh, err := e.cache.GetPath("builtin/meshes/cube.obj")
	require.NoError(t, err)
	mat, err := e.cache.GetPath("builtin/materials/default.mat")
	require.NoError(t, err)

	s := scene.NewScene("S", nil)
	for _, name := range []string{"A", "B"} {
		r := s.Instantiate(name, nil).AddComponentByTag(e.reg, "MeshRenderer").(*MeshRenderer)
		r.Mesh = mesh.(*assets.Mesh)
		r.Material = mat.(*assets.Material)
	}
	text, err := e.ser.Marshal(s)
	require.NoError(t, err)

	out := scene.NewScene("", nil)
	require.NoError(t, e.ser.Unmarshal(text, out))
	a, _ := scene.GetComponent[*MeshRenderer](out.Find("A"))
	b, _ := scene.GetComponent[*MeshRenderer](out.Find("B"))
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Same(t, a.Mesh, b.Mesh)
	assert.Same(t, mesh, a.Mesh)
	assert.Same(t, a.Material, b.Material)
	assert.True(t, a.CastShadows)
	assert.False(t, a.Visible(), "not live until started")

	m := scene.NewManager(nil, nil)
	m.SetPlaying(true)
	require.True(t, m.LoadScene(out))
	m.Update(0)
	assert.True(t, a.Visible())
}

func TestSpinnerAndFollow(t *testing.T) {
	e := newEnv(t)
	s := scene.NewScene("S", nil)
	top := s.Instantiate("Top", nil)
	spin := top.AddComponentByTag(e.reg, "Spinner").(*Spinner)
	spin.Speed = 90

	target := s.Instantiate("Target", nil)
	target.SetPosition(mgl32.Vec3{5, 0, 0})
	follower := s.Instantiate("Follower", nil)
	f := follower.AddComponentByTag(e.reg, "Follow").(*Follow)
	f.Target = target
	f.Offset = mgl32.Vec3{0, 2, 0}

	m := scene.NewManager(nil, nil)
	m.SetPlaying(true)
	require.True(t, m.LoadScene(s))
	m.Update(1)

	want := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	assert.True(t, top.Rotation().ApproxEqualThreshold(want, 1e-5))
	assert.True(t, follower.Position().ApproxEqual(mgl32.Vec3{5, 2, 0}))

	f.Smoothing = 0.5
	target.SetPosition(mgl32.Vec3{9, 0, 0})
	m.Update(1)
	assert.True(t, follower.Position().ApproxEqual(mgl32.Vec3{7, 2, 0}))

	target.Destroy()
	m.Update(1)
	assert.True(t, follower.Position().ApproxEqual(mgl32.Vec3{7, 2, 0}))
}

func TestFollowTargetPersistsAsToken(t *testing.T) {
	e := newEnv(t)
	s := scene.NewScene("S", nil)
	player := s.Instantiate("Player", nil)
	head := s.Instantiate("Head", player)
	cam := s.Instantiate("Cam", nil)
	cam.AddComponentByTag(e.reg, "Follow").(*Follow).Target = head

	text, err := e.ser.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(text), `"target": "[GameObject]S/Player/Head"`)

	out := scene.NewScene("", nil)
	require.NoError(t, e.ser.Unmarshal(text, out))
	f, ok := scene.GetComponent[*Follow](out.Find("Cam"))
	require.True(t, ok)
	assert.Same(t, out.Find("Player/Head"), f.Target)
}

func TestCameraMatrices(t *testing.T) {
	c := NewCamera()
	assert.Equal(t, mgl32.Ident4(), c.View())
	assert.Equal(t, mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 1000), c.Projection(0))

	s := scene.NewScene("S", nil)
	g := s.Instantiate("Cam", nil)
	g.SetPosition(mgl32.Vec3{0, 0, 10})
	g.AddComponent(c)
	p := c.View().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.True(t, p.Vec3().ApproxEqual(mgl32.Vec3{0, 0, -10}))
}
