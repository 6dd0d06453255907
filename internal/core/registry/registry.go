// Package registry maps concrete Component and Asset types to stable type
// tags. Types are registered explicitly at startup; nothing is discovered by
// scanning.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/zeusync/zengine/internal/core/observability/log"
)

var (
	ErrDuplicateTag       = errors.New("type tag already registered")
	ErrDuplicateType      = errors.New("go type already registered")
	ErrDuplicateExtension = errors.New("extension already mapped")
	ErrUnknownTag         = errors.New("unknown type tag")
	ErrInvalidType        = errors.New("invalid registration")
)

// Kind separates the two polymorphic families the serializer cares about.
type Kind uint8

const (
	KindComponent Kind = iota + 1
	KindAsset
)

func (k Kind) String() string {
	switch k {
	case KindComponent:
		return "component"
	case KindAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// Predicate decides whether an editor should show a field given the owning value.
type Predicate func(owner any) bool

// TypeInfo is one row of the type table.
type TypeInfo struct {
	Tag  string
	Kind Kind
	// Type is the struct type; instances are always *Type.
	Type reflect.Type
	New  func() any
	// Parent names the tag this type is treated as a subtype of.
	Parent     string
	Extensions []string
	// JSONBacked assets are stored as a type-tag line followed by a JSON body.
	JSONBacked bool
	Fields     map[string]Predicate
}

// Option customises a registration.
type Option func(*TypeInfo)

func WithParent(tag string) Option {
	return func(ti *TypeInfo) { ti.Parent = tag }
}

// WithExtensions maps file extensions (no leading dot) onto the type.
func WithExtensions(exts ...string) Option {
	return func(ti *TypeInfo) {
		for _, e := range exts {
			ti.Extensions = append(ti.Extensions, normExt(e))
		}
	}
}

func JSONBacked() Option {
	return func(ti *TypeInfo) { ti.JSONBacked = true }
}

// WithFieldPredicate attaches a show/hide predicate to a field for editor drawers.
func WithFieldPredicate(field string, p Predicate) Option {
	return func(ti *TypeInfo) {
		if ti.Fields == nil {
			ti.Fields = make(map[string]Predicate)
		}
		ti.Fields[field] = p
	}
}

type Registry struct {
	mu         sync.RWMutex
	byTag      map[string]*TypeInfo
	byType     map[reflect.Type]*TypeInfo
	extensions map[string]string
	logger     log.Log
}

func New(logger log.Log) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		byTag:      make(map[string]*TypeInfo),
		byType:     make(map[reflect.Type]*TypeInfo),
		extensions: make(map[string]string),
		logger:     logger.Named("registry"),
	}
}

// Populate runs a discovery function against the registry. It is the seam
// where generated or hand-written registration tables plug in.
func (r *Registry) Populate(discover func(*Registry) error) error {
	return discover(r)
}

// Register adds a row. Conflicts are logged and leave the table untouched.
func (r *Registry) Register(info TypeInfo) error {
	if info.Tag == "" || info.Type == nil || info.Type.Kind() != reflect.Struct {
		r.logger.Error("rejected type registration", log.String("tag", info.Tag))
		return ErrInvalidType
	}
	if info.New == nil {
		typ := info.Type
		info.New = func() any {
			v := reflect.New(typ).Interface()
			if d, ok := v.(Defaulter); ok {
				d.Defaults()
			}
			return v
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byTag[info.Tag]; exists {
		r.logger.Error("duplicate type tag", log.String("tag", info.Tag))
		return fmt.Errorf("%w: %s", ErrDuplicateTag, info.Tag)
	}
	if prev, exists := r.byType[info.Type]; exists {
		r.logger.Error("duplicate type registration",
			log.String("tag", info.Tag), log.String("registered_as", prev.Tag))
		return fmt.Errorf("%w: %s", ErrDuplicateType, info.Type)
	}
	for _, ext := range info.Extensions {
		if owner, taken := r.extensions[ext]; taken {
			r.logger.Error("duplicate extension mapping",
				log.String("ext", ext), log.String("owner", owner), log.String("tag", info.Tag))
			return fmt.Errorf("%w: %s", ErrDuplicateExtension, ext)
		}
	}

	stored := info
	r.byTag[info.Tag] = &stored
	r.byType[info.Type] = &stored
	for _, ext := range info.Extensions {
		r.extensions[ext] = info.Tag
	}
	return nil
}

// RegisterComponent registers *T as a component under tag.
func RegisterComponent[T any](r *Registry, tag string, opts ...Option) error {
	return register[T](r, tag, KindComponent, opts)
}

// RegisterAsset registers *T as an asset type under tag.
func RegisterAsset[T any](r *Registry, tag string, opts ...Option) error {
	return register[T](r, tag, KindAsset, opts)
}

// Defaulter is implemented by types whose fresh instances need non-zero
// field values. New calls it before returning.
type Defaulter interface {
	Defaults()
}

func register[T any](r *Registry, tag string, kind Kind, opts []Option) error {
	info := TypeInfo{
		Tag:  tag,
		Kind: kind,
		Type: reflect.TypeFor[T](),
		New: func() any {
			v := new(T)
			if d, ok := any(v).(Defaulter); ok {
				d.Defaults()
			}
			return v
		},
	}
	for _, opt := range opts {
		opt(&info)
	}
	return r.Register(info)
}

// MapExtension points an extension at an already registered tag.
func (r *Registry) MapExtension(ext, tag string) error {
	ext = normExt(ext)
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.byTag[tag]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	if owner, taken := r.extensions[ext]; taken {
		r.logger.Error("duplicate extension mapping", log.String("ext", ext), log.String("owner", owner))
		return fmt.Errorf("%w: %s", ErrDuplicateExtension, ext)
	}
	r.extensions[ext] = tag
	info.Extensions = append(info.Extensions, ext)
	return nil
}

func (r *Registry) Lookup(tag string) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byTag[tag]
	return info, ok
}

// TypeOf returns the row for a value (pointer or struct).
func (r *Registry) TypeOf(v any) (*TypeInfo, bool) {
	if v == nil {
		return nil, false
	}
	return r.TypeOfReflect(reflect.TypeOf(v))
}

func (r *Registry) TypeOfReflect(t reflect.Type) (*TypeInfo, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byType[t]
	return info, ok
}

// TagOf returns the tag of a registered value, or "" when unknown.
func (r *Registry) TagOf(v any) string {
	if info, ok := r.TypeOf(v); ok {
		return info.Tag
	}
	return ""
}

// ByExtension returns the tag providing files with ext.
func (r *Registry) ByExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.extensions[normExt(ext)]
	return tag, ok
}

// New constructs a fresh *T for tag.
func (r *Registry) New(tag string) (any, error) {
	info, ok := r.Lookup(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	return info.New(), nil
}

// IsA reports whether tag equals ancestor or descends from it through Parent links.
func (r *Registry) IsA(tag, ancestor string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for tag != "" && !seen[tag] {
		if tag == ancestor {
			return true
		}
		seen[tag] = true
		info, ok := r.byTag[tag]
		if !ok {
			return false
		}
		tag = info.Parent
	}
	return false
}

// Tags lists registered tags of a kind, sorted.
func (r *Registry) Tags(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byTag))
	for tag, info := range r.byTag {
		if info.Kind == kind {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

// FieldVisible evaluates the field predicate for a registered value.
// Fields without a predicate are visible.
func (r *Registry) FieldVisible(v any, field string) bool {
	info, ok := r.TypeOf(v)
	if !ok || info.Fields == nil {
		return true
	}
	p, ok := info.Fields[field]
	if !ok || p == nil {
		return true
	}
	return p(v)
}

func normExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
