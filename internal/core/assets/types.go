package assets

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/zeusync/zengine/internal/core/registry"
)

// Tags of the builtin asset variants.
const (
	TagAsset    = "Asset"
	TagTexture  = "Texture"
	TagMesh     = "Mesh"
	TagShader   = "Shader"
	TagMaterial = "Material"
	TagGeneric  = "Generic"
)

// Register adds the builtin asset variants and their extensions.
func Register(r *registry.Registry) error {
	regs := []func() error{
		func() error {
			return registry.RegisterAsset[Texture](r, TagTexture, registry.WithParent(TagAsset),
				registry.WithExtensions("png", "jpg", "jpeg", "gif", "bmp", "webp"))
		},
		func() error {
			return registry.RegisterAsset[Mesh](r, TagMesh, registry.WithParent(TagAsset),
				registry.WithExtensions("obj"))
		},
		func() error {
			return registry.RegisterAsset[Shader](r, TagShader, registry.WithParent(TagAsset),
				registry.WithExtensions("glsl", "vert", "frag", "shader"))
		},
		func() error {
			return registry.RegisterAsset[Material](r, TagMaterial, registry.WithParent(TagAsset),
				registry.WithExtensions("mat"), registry.JSONBacked())
		},
		func() error {
			return registry.RegisterAsset[Generic](r, TagGeneric, registry.WithParent(TagAsset))
		},
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}

// Texture holds an encoded image and its decoded dimensions. Pixel upload is
// the render layer's job.
type Texture struct {
	Base
	Width  int    `json:"-"`
	Height int    `json:"-"`
	Format string `json:"-"`
	Data   []byte `json:"-"`
}

// NewRuntimeTexture returns a texture that only lives in memory.
func NewRuntimeTexture(width, height int) *Texture {
	return &Texture{Width: width, Height: height, Format: "runtime"}
}

func (t *Texture) Load(ctx *LoadContext) error {
	data, err := ctx.ReadAll()
	if err != nil {
		return err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, ctx.Location, err)
	}
	t.Width, t.Height, t.Format, t.Data = cfg.Width, cfg.Height, format, data
	return nil
}

func (t *Texture) Unload() {
	t.Data = nil
}

// Mesh is a Wavefront OBJ subset: positions, normals, uvs and polygon faces.
type Mesh struct {
	Base
	Vertices []mgl32.Vec3 `json:"-"`
	Normals  []mgl32.Vec3 `json:"-"`
	UVs      []mgl32.Vec2 `json:"-"`
	// Faces index into Vertices, zero based.
	Faces [][]int    `json:"-"`
	Min   mgl32.Vec3 `json:"-"`
	Max   mgl32.Vec3 `json:"-"`
}

func (m *Mesh) Load(ctx *LoadContext) error {
	data, err := ctx.ReadAll()
	if err != nil {
		return err
	}
	return m.parse(data)
}

func (m *Mesh) parse(data []byte) error {
	m.Vertices, m.Normals, m.UVs, m.Faces = nil, nil, nil, nil
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v", "vn":
			v, err := parseVec(fields[1:], 3)
			if err != nil {
				return fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
			}
			vec := mgl32.Vec3{v[0], v[1], v[2]}
			if fields[0] == "v" {
				m.Vertices = append(m.Vertices, vec)
			} else {
				m.Normals = append(m.Normals, vec)
			}
		case "vt":
			v, err := parseVec(fields[1:], 2)
			if err != nil {
				return fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
			}
			m.UVs = append(m.UVs, mgl32.Vec2{v[0], v[1]})
		case "f":
			if len(fields) < 4 {
				return fmt.Errorf("%w: line %d: face needs 3 vertices", ErrMalformed, line)
			}
			face := make([]int, 0, len(fields)-1)
			for _, f := range fields[1:] {
				idx, err := strconv.Atoi(strings.SplitN(f, "/", 2)[0])
				if err != nil || idx == 0 {
					return fmt.Errorf("%w: line %d: bad index %q", ErrMalformed, line, f)
				}
				if idx < 0 {
					idx = len(m.Vertices) + idx + 1
				}
				if idx < 1 || idx > len(m.Vertices) {
					return fmt.Errorf("%w: line %d: index %d out of range", ErrMalformed, line, idx)
				}
				face = append(face, idx-1)
			}
			m.Faces = append(m.Faces, face)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	m.computeBounds()
	return nil
}

func (m *Mesh) computeBounds() {
	if len(m.Vertices) == 0 {
		m.Min, m.Max = mgl32.Vec3{}, mgl32.Vec3{}
		return
	}
	m.Min, m.Max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for i := 0; i < 3; i++ {
			m.Min[i] = min(m.Min[i], v[i])
			m.Max[i] = max(m.Max[i], v[i])
		}
	}
}

func (m *Mesh) Unload() {
	m.Vertices, m.Normals, m.UVs, m.Faces = nil, nil, nil, nil
}

func parseVec(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d components, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

// ShaderStage is derived from the file extension.
type ShaderStage string

const (
	StageVertex   ShaderStage = "vertex"
	StageFragment ShaderStage = "fragment"
	StageCombined ShaderStage = "combined"
)

type Shader struct {
	Base
	Stage  ShaderStage `json:"-"`
	Source string      `json:"-"`
}

func (s *Shader) Load(ctx *LoadContext) error {
	data, err := ctx.ReadAll()
	if err != nil {
		return err
	}
	switch ctx.Location.Ext() {
	case "vert":
		s.Stage = StageVertex
	case "frag":
		s.Stage = StageFragment
	default:
		s.Stage = StageCombined
	}
	s.Source = string(data)
	return nil
}

func (s *Shader) Unload() {
	s.Source = ""
}

// Material is JSON-backed. Its shader and texture are shared cache
// instances, so many materials may point at the same texture.
type Material struct {
	Base
	Shader  *Shader            `json:"shader"`
	Texture *Texture           `json:"texture"`
	Color   mgl32.Vec4         `json:"color"`
	Params  map[string]float32 `json:"params,omitempty"`
}

// NewMaterial returns a white runtime material.
func NewMaterial() *Material {
	m := &Material{}
	m.Defaults()
	return m
}

func (m *Material) Defaults() {
	m.Color = mgl32.Vec4{1, 1, 1, 1}
}

func (m *Material) Load(ctx *LoadContext) error {
	for k, v := range m.Params {
		if v != v {
			return fmt.Errorf("%w: %s: param %q is NaN", ErrMalformed, ctx.Location, k)
		}
	}
	return nil
}

// Generic is the placeholder for files no registered type claims.
type Generic struct {
	Base
	MIME string `json:"-"`
	Data []byte `json:"-"`
}

func (g *Generic) Load(ctx *LoadContext) error {
	data, err := ctx.ReadAll()
	if err != nil {
		return err
	}
	g.Data = data
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		g.MIME = kind.MIME.Value
	}
	return nil
}

func (g *Generic) Unload() {
	g.Data = nil
}
