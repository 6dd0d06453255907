package components

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/zengine/internal/core/scene"
)

type LightKind uint8

const (
	Directional LightKind = iota
	Point
	Spot
)

var lightKindNames = [...]string{"Directional", "Point", "Spot"}

func (k LightKind) String() string {
	if int(k) < len(lightKindNames) {
		return lightKindNames[k]
	}
	return fmt.Sprintf("LightKind(%d)", k)
}

func (k LightKind) MarshalText() ([]byte, error) {
	if int(k) >= len(lightKindNames) {
		return nil, fmt.Errorf("unknown light kind %d", k)
	}
	return []byte(lightKindNames[k]), nil
}

func (k *LightKind) UnmarshalText(b []byte) error {
	for i, n := range lightKindNames {
		if n == string(b) {
			*k = LightKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown light kind %q", b)
}

// Light is a single light source. Range only applies to point and spot
// lights, SpotAngle only to spot lights.
type Light struct {
	scene.ComponentBase
	Kind      LightKind  `json:"kind"`
	Color     mgl32.Vec3 `json:"color"`
	Intensity float32    `json:"intensity"`
	Range     float32    `json:"range"`
	SpotAngle float32    `json:"spotAngle"`
}

func NewLight(kind LightKind) *Light {
	l := &Light{}
	l.Defaults()
	l.Kind = kind
	return l
}

func (l *Light) Defaults() {
	l.ComponentBase.Defaults()
	l.Kind = Point
	l.Color = mgl32.Vec3{1, 1, 1}
	l.Intensity = 1
	l.Range = 10
	l.SpotAngle = 30
}

// Direction is the owner's forward axis.
func (l *Light) Direction() mgl32.Vec3 {
	if g := l.Owner(); g != nil {
		return g.Forward()
	}
	return mgl32.Vec3{0, 0, -1}
}

func isSpot(v any) bool {
	l, ok := v.(*Light)
	return ok && l.Kind == Spot
}

func hasRange(v any) bool {
	l, ok := v.(*Light)
	return ok && l.Kind != Directional
}
