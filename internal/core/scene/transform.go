package scene

import "github.com/go-gl/mathgl/mgl32"

// Local transform, relative to the parent.
func (g *GameObject) Position() mgl32.Vec3 { return g.position }
func (g *GameObject) Rotation() mgl32.Quat { return g.rotation }
func (g *GameObject) Scale() mgl32.Vec3    { return g.scale }

func (g *GameObject) SetPosition(p mgl32.Vec3) {
	g.position = p
	g.dirty = true
}

func (g *GameObject) SetRotation(q mgl32.Quat) {
	g.rotation = q.Normalize()
	g.dirty = true
}

// SetEuler sets the rotation from angles in degrees, applied Y then X then Z.
func (g *GameObject) SetEuler(x, y, z float32) {
	g.SetRotation(mgl32.AnglesToQuat(mgl32.DegToRad(y), mgl32.DegToRad(x), mgl32.DegToRad(z), mgl32.YXZ))
}

func (g *GameObject) SetScale(s mgl32.Vec3) {
	g.scale = s
	g.dirty = true
}

func (g *GameObject) Translate(d mgl32.Vec3) {
	g.SetPosition(g.position.Add(d))
}

// Rotate turns the object by angle radians around a local axis.
func (g *GameObject) Rotate(angle float32, axis mgl32.Vec3) {
	g.SetRotation(g.rotation.Mul(mgl32.QuatRotate(angle, axis.Normalize())))
}

// LocalMatrix is T*R*S, recomputed only after a transform setter ran.
func (g *GameObject) LocalMatrix() mgl32.Mat4 {
	if g.dirty {
		t := mgl32.Translate3D(g.position[0], g.position[1], g.position[2])
		s := mgl32.Scale3D(g.scale[0], g.scale[1], g.scale[2])
		g.local = t.Mul4(g.rotation.Mat4()).Mul4(s)
		g.dirty = false
	}
	return g.local
}

// WorldMatrix composes the parent chain on every call.
func (g *GameObject) WorldMatrix() mgl32.Mat4 {
	m := g.LocalMatrix()
	for p := g.Parent(); p != nil; p = p.Parent() {
		m = p.LocalMatrix().Mul4(m)
	}
	return m
}

func (g *GameObject) WorldPosition() mgl32.Vec3 {
	return g.WorldMatrix().Col(3).Vec3()
}

// Forward is the world-space -Z axis of the object.
func (g *GameObject) Forward() mgl32.Vec3 {
	return g.WorldMatrix().Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3().Normalize()
}
