package components

import (
	"github.com/zeusync/zengine/internal/core/assets"
	"github.com/zeusync/zengine/internal/core/scene"
)

// MeshRenderer draws a mesh with a material. Both are shared cache instances.
type MeshRenderer struct {
	scene.ComponentBase
	Mesh        *assets.Mesh     `json:"mesh"`
	Material    *assets.Material `json:"material"`
	CastShadows bool             `json:"castShadows"`
}

func (r *MeshRenderer) Defaults() {
	r.ComponentBase.Defaults()
	r.CastShadows = true
}

// Visible reports whether the renderer would draw this frame.
func (r *MeshRenderer) Visible() bool {
	return r.IsLive() && r.Mesh != nil
}
