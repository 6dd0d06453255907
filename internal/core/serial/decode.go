package serial

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/zeusync/zengine/internal/core/assets"
	"github.com/zeusync/zengine/internal/core/observability/log"
)

type pendingRef struct {
	path  string
	token string
	typ   reflect.Type
	set   func(reflect.Value)
}

// decodeState is per Unmarshal call.
type decodeState struct {
	s         *Serializer
	rootRead  bool
	resolvers []resolverEntry
	pending   []pendingRef
}

func newDecodeState(s *Serializer, resolvers []resolverEntry) *decodeState {
	return &decodeState{s: s, resolvers: append([]resolverEntry(nil), resolvers...)}
}

// Decoder is handed to Persister.Restore.
type Decoder struct {
	st   *decodeState
	raw  any
	path string
}

// Decode reads the node this decoder was created for into the value into
// points at.
func (d *Decoder) Decode(into any) error {
	rv := reflect.ValueOf(into)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrInvalidTarget
	}
	return d.st.decode(rv.Elem(), d.raw, d.path)
}

// AddResolver registers a resolver for the rest of this call. It is consulted
// before the serializer's defaults.
func (d *Decoder) AddResolver(prefix string, fn Resolver) {
	d.st.resolvers = append(d.st.resolvers, resolverEntry{prefix: prefix, fn: fn})
}

func join(path, seg string) string {
	if path == "" {
		return strings.TrimPrefix(seg, ".")
	}
	return path + seg
}

func isToken(s string) bool {
	prefix, _, ok := splitToken(s)
	return ok && prefix != assets.AssetTokenPrefix
}

func (st *decodeState) decode(v reflect.Value, raw any, path string) error {
	root := !st.rootRead
	st.rootRead = true
	t := v.Type()

	if root {
		if p, ok := persisterOf(v); ok {
			return p.Restore(&Decoder{st: st, raw: raw, path: path})
		}
	}
	if raw == nil {
		v.SetZero()
		return nil
	}
	if !root && t.Implements(assetType) {
		return st.decodeAsset(v, raw, path)
	}
	if s, ok := raw.(string); ok {
		if (t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface) && isToken(s) {
			st.pending = append(st.pending, pendingRef{path: path, token: s, typ: t, set: v.Set})
			return nil
		}
		if reflect.PointerTo(t).Implements(textUnmarshalerType) && v.CanAddr() {
			if err := v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
				return &ParseError{Path: path, Err: err}
			}
			return nil
		}
	}

	switch t.Kind() {
	case reflect.Interface:
		return st.decodeInterface(v, raw, path)
	case reflect.Pointer:
		if m, ok := raw.(map[string]any); ok && !root && t.Implements(persisterType) {
			fresh := reflect.New(t.Elem())
			if err := fresh.Interface().(Persister).Restore(&Decoder{st: st, raw: m, path: path}); err != nil {
				return err
			}
			v.Set(fresh)
			return nil
		}
		if m, ok := raw.(map[string]any); ok {
			if err := st.checkTag(t, m, path); err != nil {
				return err
			}
		}
		if v.IsNil() {
			v.Set(reflect.New(t.Elem()))
		}
		return st.decode(v.Elem(), raw, path)
	case reflect.Struct:
		m, ok := raw.(map[string]any)
		if !ok {
			return mismatch(path, "expected object for %s, got %s", t, describe(raw))
		}
		return st.decodeStruct(v, m, path)
	case reflect.Map:
		m, ok := raw.(map[string]any)
		if !ok {
			return mismatch(path, "expected object for %s, got %s", t, describe(raw))
		}
		return st.decodeMap(v, m, path)
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			s, ok := raw.(string)
			if !ok {
				return mismatch(path, "expected base64 string, got %s", describe(raw))
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return &ParseError{Path: path, Err: err}
			}
			v.SetBytes(b)
			return nil
		}
		arr, ok := raw.([]any)
		if !ok {
			return mismatch(path, "expected array for %s, got %s", t, describe(raw))
		}
		sl := reflect.MakeSlice(t, len(arr), len(arr))
		v.Set(sl)
		for i, item := range arr {
			if err := st.decode(sl.Index(i), item, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
		return nil
	case reflect.Array:
		arr, ok := raw.([]any)
		if !ok {
			return mismatch(path, "expected array for %s, got %s", t, describe(raw))
		}
		if len(arr) > v.Len() {
			return mismatch(path, "array of %d values for %s", len(arr), t)
		}
		v.SetZero()
		for i, item := range arr {
			if err := st.decode(v.Index(i), item, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
		return nil
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return mismatch(path, "expected bool, got %s", describe(raw))
		}
		v.SetBool(b)
		return nil
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return mismatch(path, "expected string, got %s", describe(raw))
		}
		v.SetString(s)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := intOf(raw)
		if err != nil || v.OverflowInt(n) {
			return mismatch(path, "expected %s, got %s", t, describe(raw))
		}
		v.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := intOf(raw)
		if err != nil || n < 0 || v.OverflowUint(uint64(n)) {
			return mismatch(path, "expected %s, got %s", t, describe(raw))
		}
		v.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		num, ok := raw.(json.Number)
		if !ok {
			return mismatch(path, "expected number, got %s", describe(raw))
		}
		f, err := num.Float64()
		if err != nil || v.OverflowFloat(f) {
			return mismatch(path, "bad %s %q", t, num)
		}
		v.SetFloat(f)
		return nil
	}
	return &ParseError{Path: path, Err: fmt.Errorf("%w: %s", ErrUnsupportedType, t)}
}

func intOf(raw any) (int64, error) {
	num, ok := raw.(json.Number)
	if !ok {
		return 0, ErrTypeMismatch
	}
	if n, err := num.Int64(); err == nil {
		return n, nil
	}
	f, err := num.Float64()
	if err != nil || f != float64(int64(f)) {
		return 0, ErrTypeMismatch
	}
	return int64(f), nil
}

func describe(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", raw)
}

// checkTag verifies that an explicit @type agrees with the static type.
func (st *decodeState) checkTag(t reflect.Type, m map[string]any, path string) error {
	tag, ok := m[TypeKey].(string)
	if !ok {
		return nil
	}
	info, known := st.s.reg.Lookup(tag)
	if !known {
		return &ParseError{Path: path, Err: fmt.Errorf("%w: %q", ErrUnregistered, tag)}
	}
	if reflect.PointerTo(info.Type) != t {
		return mismatch(path, "%s cannot hold %s", t, tag)
	}
	return nil
}

func (st *decodeState) decodeInterface(v reflect.Value, raw any, path string) error {
	t := v.Type()
	m, isObj := raw.(map[string]any)
	if isObj {
		if tag, ok := m[TypeKey].(string); ok {
			inst, err := st.s.reg.New(tag)
			if err != nil {
				return &ParseError{Path: path, Err: err}
			}
			iv := reflect.ValueOf(inst)
			if !iv.Type().AssignableTo(t) {
				return mismatch(path, "%s does not implement %s", tag, t)
			}
			if err := st.decodeStruct(iv.Elem(), m, path); err != nil {
				return err
			}
			v.Set(iv)
			return nil
		}
	}
	if t.NumMethod() > 0 {
		return mismatch(path, "%s needs a %q key", t, TypeKey)
	}
	v.Set(reflect.ValueOf(plain(raw)))
	return nil
}

// plain converts a raw node into ordinary Go values for untyped fields.
func plain(raw any) any {
	switch x := raw.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = plain(item)
		}
		return out
	}
	return raw
}

func (st *decodeState) decodeStruct(v reflect.Value, m map[string]any, path string) error {
	for _, f := range fieldsOf(v.Type()) {
		item, ok := m[f.name]
		if !ok {
			continue
		}
		if err := st.decode(v.FieldByIndex(f.index), item, join(path, "."+f.name)); err != nil {
			return err
		}
	}
	return nil
}

func (st *decodeState) decodeMap(v reflect.Value, m map[string]any, path string) error {
	t := v.Type()
	if v.IsNil() {
		v.Set(reflect.MakeMapWithSize(t, len(m)))
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key, err := mapKey(t.Key(), k)
		if err != nil {
			return &ParseError{Path: join(path, "."+k), Err: err}
		}
		item := m[k]
		elemPath := join(path, "."+k)
		elemType := t.Elem()
		if s, ok := item.(string); ok && isToken(s) && (elemType.Kind() == reflect.Pointer || elemType.Kind() == reflect.Interface) {
			st.pending = append(st.pending, pendingRef{
				path: elemPath, token: s, typ: elemType,
				set: func(x reflect.Value) { v.SetMapIndex(key, x) },
			})
			continue
		}
		elem := reflect.New(elemType).Elem()
		if err := st.decode(elem, item, elemPath); err != nil {
			return err
		}
		v.SetMapIndex(key, elem)
	}
	return nil
}

func mapKey(t reflect.Type, k string) (reflect.Value, error) {
	if t.Kind() == reflect.String {
		return reflect.ValueOf(k).Convert(t), nil
	}
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		kv := reflect.New(t)
		if err := kv.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(k)); err != nil {
			return reflect.Value{}, err
		}
		return kv.Elem(), nil
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(k, 10, t.Bits())
		return reflect.ValueOf(n).Convert(t), err
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(k, 10, t.Bits())
		return reflect.ValueOf(n).Convert(t), err
	}
	return reflect.Value{}, fmt.Errorf("%w: map key %s", ErrUnsupportedType, t)
}

// decodeAsset resolves a path through the cache so every field naming the
// same file shares one instance.
func (st *decodeState) decodeAsset(v reflect.Value, raw any, path string) error {
	rel, ok := raw.(string)
	if !ok {
		return mismatch(path, "asset field %s expects a path, got %s", v.Type(), describe(raw))
	}
	if st.s.cache == nil {
		return &ParseError{Path: path, Err: ErrNoCache}
	}
	a, err := st.s.cache.GetPath(rel)
	if err != nil {
		if errors.Is(err, assets.ErrLoadCycle) {
			return err
		}
		st.s.logger.Warn("asset reference left empty",
			log.String("field", path), log.String("asset", rel), log.Error(err))
		v.SetZero()
		return nil
	}
	av := reflect.ValueOf(a)
	if !av.Type().AssignableTo(v.Type()) {
		return mismatch(path, "asset %s is %s, field wants %s", rel, av.Type(), v.Type())
	}
	v.Set(av)
	return nil
}

// resolve assigns every deferred token. Per-call resolvers are tried newest
// first, then the serializer defaults. Unresolved tokens leave the field nil.
func (st *decodeState) resolve() error {
	for _, p := range st.pending {
		prefix, rest, _ := splitToken(p.token)
		val, ok := st.lookup(prefix, rest)
		if !ok {
			st.s.logger.Warn("unresolved reference", log.String("field", p.path), log.String("token", p.token))
			continue
		}
		rv := reflect.ValueOf(val)
		if !rv.IsValid() || !rv.Type().AssignableTo(p.typ) {
			return mismatch(p.path, "token %s resolved to %T, field wants %s", p.token, val, p.typ)
		}
		p.set(rv)
	}
	st.pending = nil
	return nil
}

func (st *decodeState) lookup(prefix, rest string) (any, bool) {
	for i := len(st.resolvers) - 1; i >= 0; i-- {
		if r := st.resolvers[i]; r.prefix == prefix {
			if v, ok := r.fn(rest); ok {
				return v, true
			}
		}
	}
	for i := len(st.s.resolvers) - 1; i >= 0; i-- {
		if r := st.s.resolvers[i]; r.prefix == prefix {
			if v, ok := r.fn(rest); ok {
				return v, true
			}
		}
	}
	return nil, false
}
