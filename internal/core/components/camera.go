package components

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/zengine/internal/core/scene"
)

// Camera describes a perspective view from its owner's transform.
type Camera struct {
	scene.ComponentBase
	// FieldOfView is the vertical angle in degrees.
	FieldOfView float32    `json:"fieldOfView"`
	Near        float32    `json:"near"`
	Far         float32    `json:"far"`
	Background  mgl32.Vec4 `json:"background"`
	Primary     bool       `json:"primary,omitempty"`
}

func NewCamera() *Camera {
	c := &Camera{}
	c.Defaults()
	return c
}

func (c *Camera) Defaults() {
	c.ComponentBase.Defaults()
	c.FieldOfView = 60
	c.Near = 0.1
	c.Far = 1000
	c.Background = mgl32.Vec4{0.1, 0.1, 0.12, 1}
}

// Projection returns the perspective matrix for the given width/height ratio.
func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return mgl32.Perspective(mgl32.DegToRad(c.FieldOfView), aspect, c.Near, c.Far)
}

// View is the inverse of the owner's world matrix, or identity when detached.
func (c *Camera) View() mgl32.Mat4 {
	g := c.Owner()
	if g == nil {
		return mgl32.Ident4()
	}
	return g.WorldMatrix().Inv()
}
