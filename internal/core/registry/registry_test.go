package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/zengine/internal/core/observability/log"
)

type probe struct {
	Value int
}

type lamp struct {
	Kind  int
	Angle float32
}

type picture struct{}

type photo struct{}

func TestRegisterAndLookup(t *testing.T) {
	r := New(nil)
	require.NoError(t, RegisterComponent[probe](r, "Probe"))

	info, ok := r.Lookup("Probe")
	require.True(t, ok)
	assert.Equal(t, KindComponent, info.Kind)

	v, err := r.New("Probe")
	require.NoError(t, err)
	assert.IsType(t, &probe{}, v)
	assert.Equal(t, "Probe", r.TagOf(v))
	assert.Equal(t, "Probe", r.TagOf(probe{}))

	_, err = r.New("Missing")
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestDuplicateTagIsNoop(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := New(log.FromZap(zap.New(core)))

	require.NoError(t, RegisterComponent[probe](r, "Probe"))
	err := RegisterComponent[lamp](r, "Probe")
	assert.ErrorIs(t, err, ErrDuplicateTag)
	assert.Equal(t, 1, logs.FilterMessage("duplicate type tag").Len())

	info, _ := r.Lookup("Probe")
	assert.Equal(t, "probe", info.Type.Name())
	assert.Equal(t, "", r.TagOf(&lamp{}))

	assert.ErrorIs(t, RegisterComponent[probe](r, "Other"), ErrDuplicateType)
}

func TestExtensionsAndSubtypes(t *testing.T) {
	r := New(nil)
	require.NoError(t, RegisterAsset[picture](r, "Picture", WithExtensions(".PNG", "jpg")))
	require.NoError(t, RegisterAsset[photo](r, "Photo", WithParent("Picture")))

	tag, ok := r.ByExtension("png")
	assert.True(t, ok)
	assert.Equal(t, "Picture", tag)

	tag, ok = r.ByExtension(".JPG")
	assert.True(t, ok)
	assert.Equal(t, "Picture", tag)

	assert.ErrorIs(t, r.MapExtension("png", "Photo"), ErrDuplicateExtension)
	require.NoError(t, r.MapExtension("raw", "Photo"))
	tag, _ = r.ByExtension("raw")
	assert.Equal(t, "Photo", tag)

	assert.True(t, r.IsA("Photo", "Picture"))
	assert.True(t, r.IsA("Photo", "Photo"))
	assert.False(t, r.IsA("Picture", "Photo"))

	assert.Equal(t, []string{"Photo", "Picture"}, r.Tags(KindAsset))
	assert.Empty(t, r.Tags(KindComponent))
}

func TestFieldPredicate(t *testing.T) {
	r := New(nil)
	require.NoError(t, RegisterComponent[lamp](r, "Lamp",
		WithFieldPredicate("Angle", func(owner any) bool {
			return owner.(*lamp).Kind == 2
		})))

	assert.False(t, r.FieldVisible(&lamp{Kind: 0}, "Angle"))
	assert.True(t, r.FieldVisible(&lamp{Kind: 2}, "Angle"))
	assert.True(t, r.FieldVisible(&lamp{}, "Kind"))
}

func TestPopulate(t *testing.T) {
	r := New(nil)
	err := r.Populate(func(r *Registry) error {
		return RegisterComponent[probe](r, "Probe")
	})
	require.NoError(t, err)
	_, ok := r.Lookup("Probe")
	assert.True(t, ok)
}

type seeded struct {
	Count int
}

func (s *seeded) Defaults() { s.Count = 3 }

func TestNewAppliesDefaults(t *testing.T) {
	r := New(nil)
	require.NoError(t, RegisterComponent[seeded](r, "Seeded"))

	v, err := r.New("Seeded")
	require.NoError(t, err)
	assert.Equal(t, 3, v.(*seeded).Count)
}
