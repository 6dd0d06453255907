package assets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"path"
	"testing"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/zengine/internal/core/assets/builtin"
	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/internal/core/registry"
)

// loopAsset references another asset by path; used to provoke load cycles.
type loopAsset struct {
	Base
	Next string `json:"next"`
}

// jsonCodec is a minimal stand-in for the serializer: asset fields are
// resolved by path through the cache.
type jsonCodec struct {
	cache *Cache
}

type materialDoc struct {
	Shader *string            `json:"shader"`
	Color  [4]float32         `json:"color"`
	Params map[string]float32 `json:"params,omitempty"`
}

func (j jsonCodec) DecodeAsset(body []byte, a Asset) error {
	switch v := a.(type) {
	case *Material:
		var doc materialDoc
		if err := json.Unmarshal(body, &doc); err != nil {
			return err
		}
		v.Color = doc.Color
		v.Params = doc.Params
		if doc.Shader != nil {
			s, err := j.cache.GetPath(*doc.Shader)
			if err != nil {
				return err
			}
			v.Shader = s.(*Shader)
		}
		return nil
	case *loopAsset:
		if err := json.Unmarshal(body, v); err != nil {
			return err
		}
		if v.Next != "" {
			_, err := j.cache.GetPath(v.Next)
			return err
		}
		return nil
	}
	return fmt.Errorf("unsupported %T", a)
}

func (j jsonCodec) EncodeAsset(a Asset) ([]byte, error) {
	m, ok := a.(*Material)
	if !ok {
		return nil, fmt.Errorf("unsupported %T", a)
	}
	doc := materialDoc{Color: m.Color, Params: m.Params}
	if m.Shader != nil && m.Shader.Location() != nil {
		p := m.Shader.Location().Path()
		doc.Shader = &p
	}
	return json.MarshalIndent(doc, "", "  ")
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, fsys hackpadfs.FS, name string, data []byte) {
	t.Helper()
	if dir := path.Dir(name); dir != "." {
		require.NoError(t, hackpadfs.MkdirAll(fsys, dir, 0o755))
	}
	require.NoError(t, hackpadfs.WriteFullFile(fsys, name, data, 0o644))
}

type fixture struct {
	fs    *mem.FS
	cache *Cache
	logs  *observer.ObservedLogs
}

func newFixture(t *testing.T, files map[string][]byte) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := log.FromZap(zap.New(core))

	reg := registry.New(logger)
	require.NoError(t, Register(reg))
	require.NoError(t, registry.RegisterAsset[loopAsset](reg, "Loop",
		registry.WithParent(TagAsset), registry.WithExtensions("loop"), registry.JSONBacked()))

	fsys, err := mem.NewFS()
	require.NoError(t, err)
	for name, data := range files {
		writeFile(t, fsys, name, data)
	}

	c := NewCache(reg, logger)
	c.SetCodec(jsonCodec{cache: c})
	require.NoError(t, c.RebuildFS(fsys, "", builtin.FS()))
	return &fixture{fs: fsys, cache: c, logs: logs}
}

func TestLocation(t *testing.T) {
	l, err := NewLocation(`textures\wall.PNG`)
	require.NoError(t, err)
	assert.Equal(t, "textures/wall.PNG", l.Path())
	assert.Equal(t, "png", l.Ext())
	assert.Equal(t, "wall", l.Name())
	assert.False(t, l.IsBuiltin())

	l, err = NewLocation("[Asset]builtin/meshes/cube.obj")
	require.NoError(t, err)
	assert.True(t, l.IsBuiltin())
	assert.Equal(t, "builtin/meshes/cube.obj", l.String())

	for _, bad := range []string{"", "/etc/passwd", "../outside", "a/../../b", "."} {
		_, err := NewLocation(bad)
		assert.ErrorIs(t, err, ErrInvalidLocation, bad)
	}
}

func TestRebuildTypesFiles(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"tex/wall.png":     pngBytes(t, 4, 2),
		"tex/sniffed.bin":  pngBytes(t, 1, 1),
		"meshes/tri.obj":   []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"),
		"mats/red.mat":     []byte("Material\n{\"shader\": \"builtin/shaders/default.glsl\", \"color\": [1,0,0,1]}\n"),
		"mats/blue.asset":  []byte("Material\n{\"color\": [0,0,1,1]}\n"),
		"notes/readme.xyz": []byte("hello"),
		"broken/bad.asset": []byte("NoSuchType\n{}\n"),
		".hidden/skip.png": pngBytes(t, 1, 1),
	})
	c := f.cache

	tag, ok := c.TypeOf(MustLocation("tex/wall.png"))
	require.True(t, ok)
	assert.Equal(t, TagTexture, tag)

	tag, _ = c.TypeOf(MustLocation("tex/sniffed.bin"))
	assert.Equal(t, TagTexture, tag)

	tag, _ = c.TypeOf(MustLocation("mats/blue.asset"))
	assert.Equal(t, TagMaterial, tag)

	tag, _ = c.TypeOf(MustLocation("notes/readme.xyz"))
	assert.Equal(t, TagGeneric, tag)

	assert.False(t, c.Exists(MustLocation("broken/bad.asset")))
	assert.False(t, c.Exists(MustLocation(".hidden/skip.png")))
	assert.Equal(t, 1, f.logs.FilterMessage("asset skipped").Len())

	assert.True(t, c.Exists(MustLocation("builtin/meshes/cube.obj")))
	assert.True(t, c.Exists(MustLocation("builtin/materials/default.mat")))
}

func TestGetReturnsSameInstance(t *testing.T) {
	f := newFixture(t, map[string][]byte{"tex/wall.png": pngBytes(t, 4, 2)})
	loc := MustLocation("tex/wall.png")

	assert.False(t, f.cache.Loaded(loc))
	a, err := f.cache.Get(loc)
	require.NoError(t, err)
	b, err := f.cache.GetPath("tex/wall.png")
	require.NoError(t, err)
	assert.Same(t, a, b)

	tex := a.(*Texture)
	assert.Equal(t, 4, tex.Width)
	assert.Equal(t, 2, tex.Height)
	assert.Equal(t, "png", tex.Format)
	assert.Equal(t, "tex/wall.png", tex.Location().Path())

	sum, ok := f.cache.Checksum(loc)
	assert.True(t, ok)
	assert.NotZero(t, sum)
}

func TestUnloadThenGetBuildsFreshInstance(t *testing.T) {
	f := newFixture(t, map[string][]byte{"meshes/tri.obj": []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 -1\n")})
	loc := MustLocation("meshes/tri.obj")

	assert.False(t, f.cache.Unload(loc), "unload before load is a no-op")

	first, err := f.cache.Get(loc)
	require.NoError(t, err)
	mesh := first.(*Mesh)
	assert.Len(t, mesh.Vertices, 3)
	assert.Equal(t, []int{0, 1, 2}, mesh.Faces[0])

	assert.True(t, f.cache.Unload(loc))
	assert.Nil(t, mesh.Vertices, "unload hook ran")
	assert.False(t, f.cache.Loaded(loc))

	second, err := f.cache.Get(loc)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestReleaseOnlyDropsLiveInstance(t *testing.T) {
	f := newFixture(t, map[string][]byte{"meshes/tri.obj": []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")})

	first, err := f.cache.GetPath("meshes/tri.obj")
	require.NoError(t, err)
	assert.True(t, f.cache.Holds(first))
	assert.False(t, f.cache.Holds(&Mesh{}), "runtime assets are never held")

	assert.True(t, f.cache.Release(first))
	assert.False(t, f.cache.Holds(first))
	assert.False(t, f.cache.Release(first), "second release is a no-op")

	second, err := f.cache.GetPath("meshes/tri.obj")
	require.NoError(t, err)
	assert.False(t, f.cache.Release(first), "stale instance leaves the new one alone")
	assert.True(t, f.cache.Holds(second))
}

func TestFailedLoadLeavesSlotEmpty(t *testing.T) {
	f := newFixture(t, map[string][]byte{"meshes/bad.obj": []byte("v 0 0 0\nf 1 2 3\n")})
	loc := MustLocation("meshes/bad.obj")

	a, err := f.cache.Get(loc)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.False(t, f.cache.Loaded(loc))
	assert.Equal(t, 1, f.logs.FilterMessage("asset load failed").Len())

	writeFile(t, f.fs, "meshes/bad.obj", []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"))
	a, err = f.cache.Get(loc)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestGetUnknownLocation(t *testing.T) {
	f := newFixture(t, nil)
	a, err := f.cache.GetPath("nope.png")
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, f.logs.FilterMessage("asset not found").Len())

	_, err = f.cache.Get(nil)
	assert.ErrorIs(t, err, ErrRuntimeAsset)
}

func TestMaterialSharesCachedShader(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"mats/a.mat": []byte("Material\n{\"shader\": \"builtin/shaders/default.glsl\", \"color\": [1,0,0,1]}\n"),
		"mats/b.mat": []byte("Material\n{\"shader\": \"[Asset]builtin/shaders/default.glsl\", \"color\": [0,1,0,1]}\n"),
	})
	a, err := f.cache.GetPath("mats/a.mat")
	require.NoError(t, err)
	b, err := f.cache.GetPath("mats/b.mat")
	require.NoError(t, err)

	ma, mb := a.(*Material), b.(*Material)
	require.NotNil(t, ma.Shader)
	assert.Same(t, ma.Shader, mb.Shader)
	assert.Equal(t, StageCombined, ma.Shader.Stage)
	assert.Equal(t, float32(1), ma.Color[0])
}

func TestLoadCycleIsReported(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"a.loop": []byte("Loop\n{\"next\": \"b.loop\"}\n"),
		"b.loop": []byte("Loop\n{\"next\": \"a.loop\"}\n"),
	})
	_, err := f.cache.GetPath("a.loop")
	assert.ErrorIs(t, err, ErrLoadCycle)
	assert.False(t, f.cache.Loaded(MustLocation("a.loop")))
	assert.False(t, f.cache.Loaded(MustLocation("b.loop")))
}

func TestAllOfType(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"b.png":  pngBytes(t, 1, 1),
		"a.png":  pngBytes(t, 1, 1),
		"m.mat":  []byte("Material\n{}\n"),
		"x.loop": []byte("Loop\n{}\n"),
	})
	textures := f.cache.AllOfType(TagTexture, false)
	require.Len(t, textures, 2)
	assert.Equal(t, "a.png", textures[0].Path())
	assert.Equal(t, "b.png", textures[1].Path())

	assert.Empty(t, f.cache.AllOfType(TagAsset, false))
	all := f.cache.AllOfType(TagAsset, true)
	assert.Len(t, all, f.cache.Len())
}

func TestCreateSaveRename(t *testing.T) {
	f := newFixture(t, nil)
	c := f.cache

	shader, err := c.GetPath("builtin/shaders/default.glsl")
	require.NoError(t, err)

	mat := NewMaterial()
	mat.Shader = shader.(*Shader)
	loc, err := c.Create("mats/new.mat", mat)
	require.NoError(t, err)
	assert.Same(t, loc, mat.Location())

	got, err := c.Get(loc)
	require.NoError(t, err)
	assert.Same(t, mat, got)

	data, err := fs.ReadFile(f.fs, "mats/new.mat")
	require.NoError(t, err)
	tag, body := SplitHeader(data)
	assert.Equal(t, TagMaterial, tag)
	assert.Contains(t, string(body), "builtin/shaders/default.glsl")

	_, err = c.Create("mats/new.mat", NewMaterial())
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, c.Rename(loc, "archive/old.mat"))
	assert.Equal(t, "archive/old.mat", mat.Location().Path(), "holders follow the move")
	assert.False(t, c.Exists(MustLocation("mats/new.mat")))
	assert.True(t, c.Loaded(MustLocation("archive/old.mat")))
	_, err = hackpadfs.Stat(f.fs, "archive/old.mat")
	assert.NoError(t, err)

	builtinLoc, ok := c.Location("builtin/materials/default.mat")
	require.True(t, ok)
	assert.ErrorIs(t, c.Rename(builtinLoc, "mine.mat"), ErrReadOnly)
	def, err := c.Get(builtinLoc)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Save(def), ErrReadOnly)
}

func TestTouchReconcilesDisk(t *testing.T) {
	f := newFixture(t, map[string][]byte{"meshes/tri.obj": []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")})
	c := f.cache
	loc := MustLocation("meshes/tri.obj")
	_, err := c.Get(loc)
	require.NoError(t, err)

	c.Touch("meshes/tri.obj")
	assert.True(t, c.Loaded(loc), "unchanged content keeps the instance")

	writeFile(t, f.fs, "meshes/tri.obj", []byte("v 0 0 0\nv 2 0 0\nv 0 2 0\nf 1 2 3\n"))
	c.Touch("meshes/tri.obj")
	assert.False(t, c.Loaded(loc))
	assert.True(t, c.Exists(loc))

	writeFile(t, f.fs, "new.png", pngBytes(t, 1, 1))
	c.Touch("new.png")
	tag, ok := c.TypeOf(MustLocation("new.png"))
	require.True(t, ok)
	assert.Equal(t, TagTexture, tag)

	require.NoError(t, hackpadfs.Remove(f.fs, "new.png"))
	c.Touch("new.png")
	assert.False(t, c.Exists(MustLocation("new.png")))
}

func TestSplitHeader(t *testing.T) {
	tag, body := SplitHeader([]byte("Material\n{\"a\":1}"))
	assert.Equal(t, "Material", tag)
	assert.Equal(t, `{"a":1}`, string(body))

	tag, body = SplitHeader([]byte("  {\"a\":1}"))
	assert.Empty(t, tag)
	assert.Equal(t, `{"a":1}`, string(body))

	assert.Equal(t, "Scene\n{}\n", string(JoinHeader("Scene", []byte("{}"))))
}
