package components

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/zengine/internal/core/scene"
)

// Spinner turns its owner around Axis at Speed degrees per second.
type Spinner struct {
	scene.ComponentBase
	Axis  mgl32.Vec3 `json:"axis"`
	Speed float32    `json:"speed"`
}

func (s *Spinner) Defaults() {
	s.ComponentBase.Defaults()
	s.Axis = mgl32.Vec3{0, 1, 0}
	s.Speed = 90
}

func (s *Spinner) OnUpdate(dt float32) {
	if s.Axis.Len() == 0 {
		return
	}
	s.Owner().Rotate(mgl32.DegToRad(s.Speed*dt), s.Axis)
}

// Follow keeps its owner at Offset from Target's world position. With
// Smoothing above zero the owner closes that fraction of the gap per second.
type Follow struct {
	scene.ComponentBase
	Target    *scene.GameObject `json:"target"`
	Offset    mgl32.Vec3        `json:"offset"`
	Smoothing float32           `json:"smoothing,omitempty"`
}

func (f *Follow) OnUpdate(dt float32) {
	if f.Target == nil || f.Target.IsDestroyed() {
		return
	}
	g := f.Owner()
	goal := f.Target.WorldPosition().Add(f.Offset)
	if p := g.Parent(); p != nil {
		goal = p.WorldMatrix().Inv().Mul4x1(goal.Vec4(1)).Vec3()
	}
	if f.Smoothing <= 0 {
		g.SetPosition(goal)
		return
	}
	t := mgl32.Clamp(f.Smoothing*dt, 0, 1)
	cur := g.Position()
	g.SetPosition(cur.Add(goal.Sub(cur).Mul(t)))
}
