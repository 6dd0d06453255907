package serial

import (
	"reflect"
	"strings"
	"sync"
)

type field struct {
	name      string
	index     []int
	omitEmpty bool
	depth     int
}

var fieldCache sync.Map // map[reflect.Type][]field

// fieldsOf lists the persisted fields of a struct type in declaration order.
// Embedded structs without a json name are flattened; on name clashes the
// shallower field wins. json tags and "-" are honoured.
func fieldsOf(t reflect.Type) []field {
	if f, ok := fieldCache.Load(t); ok {
		return f.([]field)
	}
	var out []field
	pos := make(map[string]int)
	collectFields(t, nil, 0, &out, pos)
	f, _ := fieldCache.LoadOrStore(t, out)
	return f.([]field)
}

func collectFields(t reflect.Type, parent []int, depth int, out *[]field, pos map[string]int) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		index := append(append([]int(nil), parent...), i)

		if sf.Anonymous && name == "" && sf.Type.Kind() == reflect.Struct {
			collectFields(sf.Type, index, depth+1, out, pos)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		f := field{name: name, index: index, omitEmpty: strings.Contains(opts, "omitempty"), depth: depth}
		if at, dup := pos[name]; dup {
			if (*out)[at].depth > depth {
				(*out)[at] = f
			}
			continue
		}
		pos[name] = len(*out)
		*out = append(*out, f)
	}
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}
