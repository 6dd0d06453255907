package serial

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/zeusync/zengine/internal/core/assets"
	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/internal/core/registry"
)

var (
	assetType           = reflect.TypeFor[assets.Asset]()
	persisterType       = reflect.TypeFor[Persister]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

type tagMode uint8

const (
	tagNone tagMode = iota
	// tagKnown tags registered types and writes others plainly (values held in any).
	tagKnown
	// tagRequired fails on unregistered types (values held in non-empty interfaces).
	tagRequired
)

type visitKey struct {
	ptr uintptr
	typ reflect.Type
}

// encodeState is per Marshal call so nested calls never share root or cycle
// bookkeeping.
type encodeState struct {
	s           *Serializer
	rootWritten bool
	visiting    map[visitKey]bool
	path        []string
}

func newEncodeState(s *Serializer) *encodeState {
	return &encodeState{s: s, visiting: make(map[visitKey]bool)}
}

// Encoder is handed to Persister.Persist.
type Encoder struct {
	st *encodeState
}

// Encode turns v into a tree node using the document's rules.
func (e *Encoder) Encode(v any) (any, error) {
	return e.st.encode(reflect.ValueOf(v), tagNone)
}

func (st *encodeState) pathString() string {
	return strings.Join(st.path, "")
}

func (st *encodeState) push(seg string) { st.path = append(st.path, seg) }

func (st *encodeState) pop() { st.path = st.path[:len(st.path)-1] }

func (st *encodeState) fail(err error) error {
	return fmt.Errorf("%s: %w", strings.TrimPrefix(st.pathString(), "."), err)
}

func (st *encodeState) encode(v reflect.Value, mode tagMode) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		next := tagKnown
		if v.Type().NumMethod() > 0 {
			next = tagRequired
		}
		return st.encode(v.Elem(), next)
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
	}

	if !st.rootWritten {
		st.rootWritten = true
		if p, ok := persisterOf(v); ok {
			return p.Persist(&Encoder{st: st})
		}
		return st.encodeComposite(v, mode)
	}

	if v.CanInterface() {
		iv := v.Interface()
		if a, ok := iv.(assets.Asset); ok && v.Kind() == reflect.Pointer {
			if loc := a.Location(); loc != nil {
				return loc.Path(), nil
			}
			return nil, nil
		}
		if r, ok := iv.(Reference); ok {
			if tok, ok := r.ReferenceToken(); ok {
				return tok, nil
			}
			st.s.logger.Warn("reference without a path written as null",
				log.String("field", st.pathString()), log.String("type", v.Type().String()))
			return nil, nil
		}
		if p, ok := persisterOf(v); ok {
			return p.Persist(&Encoder{st: st})
		}
		if m, ok := iv.(encoding.TextMarshaler); ok {
			b, err := m.MarshalText()
			if err != nil {
				return nil, st.fail(err)
			}
			return string(b), nil
		}
	}
	return st.encodeComposite(v, mode)
}

func persisterOf(v reflect.Value) (Persister, bool) {
	if v.Kind() == reflect.Pointer && v.Type().Implements(persisterType) && v.CanInterface() {
		return v.Interface().(Persister), true
	}
	if v.Kind() != reflect.Pointer && v.CanAddr() && v.Addr().Type().Implements(persisterType) && v.Addr().CanInterface() {
		return v.Addr().Interface().(Persister), true
	}
	return nil, false
}

func (st *encodeState) isComponent(t reflect.Type) bool {
	info, ok := st.s.reg.TypeOfReflect(t)
	return ok && info.Kind == registry.KindComponent
}

func (st *encodeState) encodeComposite(v reflect.Value, mode tagMode) (any, error) {
	switch v.Kind() {
	case reflect.Pointer:
		key := visitKey{ptr: v.Pointer(), typ: v.Type()}
		if st.visiting[key] {
			return nil, st.fail(ErrCycle)
		}
		st.visiting[key] = true
		defer delete(st.visiting, key)
		if mode == tagNone && st.rootWritten && st.isComponent(v.Type()) {
			mode = tagRequired
		}
		elem := v.Elem()
		if elem.Kind() == reflect.Struct {
			return st.encodeStruct(elem, mode)
		}
		return st.encode(elem, tagNone)
	case reflect.Struct:
		return st.encodeStruct(v, mode)
	case reflect.Map:
		return st.encodeMap(v)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Bytes(), nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			st.push("[" + strconv.Itoa(i) + "]")
			item, err := st.encode(v.Index(i), tagNone)
			st.pop()
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, st.fail(fmt.Errorf("%w: %v", ErrUnsupportedValue, f))
		}
		if v.Kind() == reflect.Float32 {
			return float32(f), nil
		}
		return f, nil
	case reflect.String:
		return v.String(), nil
	}
	return nil, st.fail(fmt.Errorf("%w: %s", ErrUnsupportedType, v.Type()))
}

func (st *encodeState) encodeStruct(v reflect.Value, mode tagMode) (any, error) {
	fields := fieldsOf(v.Type())
	out := make(object, 0, len(fields)+1)
	if mode != tagNone {
		info, ok := st.s.reg.TypeOfReflect(v.Type())
		switch {
		case ok:
			out = append(out, member{key: TypeKey, value: info.Tag})
		case mode == tagRequired:
			return nil, st.fail(fmt.Errorf("%w: %s", ErrUnregistered, v.Type()))
		}
	}
	for _, f := range fields {
		fv := v.FieldByIndex(f.index)
		if f.omitEmpty && isEmptyValue(fv) {
			continue
		}
		st.push("." + f.name)
		item, err := st.encode(fv, tagNone)
		st.pop()
		if err != nil {
			return nil, err
		}
		out = append(out, member{key: f.name, value: item})
	}
	return out, nil
}

func (st *encodeState) encodeMap(v reflect.Value) (any, error) {
	type kv struct {
		key string
		val reflect.Value
	}
	entries := make([]kv, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k, err := mapKeyString(iter.Key())
		if err != nil {
			return nil, st.fail(err)
		}
		entries = append(entries, kv{key: k, val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	out := make(object, 0, len(entries))
	for _, e := range entries {
		st.push("." + e.key)
		item, err := st.encode(e.val, tagNone)
		st.pop()
		if err != nil {
			return nil, err
		}
		out = append(out, member{key: e.key, value: item})
	}
	return out, nil
}

func mapKeyString(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if k.Type().Implements(textMarshalerType) {
		b, err := k.Interface().(encoding.TextMarshaler).MarshalText()
		return string(b), err
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", fmt.Errorf("%w: map key %s", ErrUnsupportedType, k.Type())
}
