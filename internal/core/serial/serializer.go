// Package serial converts object graphs to and from the engine's JSON file
// format. Asset fields become relative paths resolved through the asset
// cache, component values become {"@type": tag, ...} variants, and
// references to scene objects become path tokens resolved after the whole
// document has been read.
package serial

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/zeusync/zengine/internal/core/assets"
	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/internal/core/registry"
	"github.com/zeusync/zengine/pkg/generic"
)

// TypeKey holds the type tag of polymorphic values.
const TypeKey = "@type"

// Reference is implemented by values that are written as path tokens instead
// of being inlined, e.g. "[GameObject]Main/Player". The boolean is false when
// the value currently has no addressable path.
type Reference interface {
	ReferenceToken() (string, bool)
}

// Persister takes over its own encoding. Persist returns a tree built with
// the Encoder; Restore reads it back through the Decoder.
type Persister interface {
	Persist(e *Encoder) (any, error)
	Restore(d *Decoder) error
}

// Resolver maps the path part of a token (prefix stripped) to a value.
type Resolver func(path string) (any, bool)

type resolverEntry struct {
	prefix string
	fn     Resolver
}

type Serializer struct {
	reg       *registry.Registry
	cache     *assets.Cache
	logger    log.Log
	resolvers []resolverEntry
	buffers   *generic.Pool[*bytes.Buffer]
}

func New(reg *registry.Registry, cache *assets.Cache, logger log.Log) *Serializer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Serializer{
		reg:    reg,
		cache:  cache,
		logger: logger.Named("serial"),
		buffers: generic.NewPool(
			func() *bytes.Buffer { return new(bytes.Buffer) },
			(*bytes.Buffer).Reset,
		),
	}
}

// AddResolver installs a default resolver consulted after per-call ones.
// Later resolvers take precedence over earlier ones for the same prefix.
func (s *Serializer) AddResolver(prefix string, fn Resolver) {
	s.resolvers = append(s.resolvers, resolverEntry{prefix: prefix, fn: fn})
}

type callOptions struct {
	compact   bool
	resolvers []resolverEntry
}

type Option func(*callOptions)

// Compact disables indentation.
func Compact() Option {
	return func(o *callOptions) { o.compact = true }
}

// WithResolver adds a resolver for this call only.
func WithResolver(prefix string, fn Resolver) Option {
	return func(o *callOptions) {
		o.resolvers = append(o.resolvers, resolverEntry{prefix: prefix, fn: fn})
	}
}

func applyOptions(opts []Option) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Marshal encodes root. When root is an asset it is written inline; every
// other asset it references is written as a path.
func (s *Serializer) Marshal(root any, opts ...Option) ([]byte, error) {
	o := applyOptions(opts)
	st := newEncodeState(s)
	tree, err := st.encode(reflect.ValueOf(root), tagNone)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, errors.Wrap(err, "marshal tree")
	}
	if o.compact {
		return raw, nil
	}
	buf := s.buffers.Get()
	defer s.buffers.Put(buf)
	if err := json.Indent(buf, raw, "", "  "); err != nil {
		return nil, errors.Wrap(err, "indent")
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Unmarshal decodes data into target, which must be a non-nil pointer.
// Tokens are resolved once the whole document has been decoded.
func (s *Serializer) Unmarshal(data []byte, target any, opts ...Option) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrInvalidTarget
	}
	raw, err := parse(data)
	if err != nil {
		return err
	}
	if raw == nil {
		return mismatch("", "document is null")
	}
	o := applyOptions(opts)
	st := newDecodeState(s, o.resolvers)
	if err := st.decode(rv.Elem(), raw, ""); err != nil {
		return err
	}
	return st.resolve()
}

func parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return nil, &ParseError{Offset: syn.Offset, Err: err}
		}
		return nil, &ParseError{Offset: dec.InputOffset(), Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Offset: dec.InputOffset(), Err: errors.New("trailing data after document")}
	}
	return raw, nil
}

// WriteFile writes root as a type-tag line followed by its JSON body.
func (s *Serializer) WriteFile(w io.Writer, root any) error {
	tag := s.reg.TagOf(root)
	if tag == "" {
		return errors.Wrapf(ErrUnregistered, "%T", root)
	}
	body, err := s.Marshal(root)
	if err != nil {
		return err
	}
	_, err = w.Write(assets.JoinHeader(tag, body))
	return errors.Wrap(err, "write")
}

// ReadFile reads a header-prefixed document, constructs the type named by the
// header and decodes the body into it.
func (s *Serializer) ReadFile(r io.Reader, opts ...Option) (any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	tag, body := assets.SplitHeader(data)
	if tag == "" {
		return nil, &ParseError{Err: ErrMissingHeader}
	}
	v, err := s.reg.New(tag)
	if err != nil {
		return nil, err
	}
	if err := s.Unmarshal(body, v, opts...); err != nil {
		return nil, err
	}
	return v, nil
}

// Header returns the type tag of a header-prefixed document without reading
// its body.
func (s *Serializer) Header(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, "read header")
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "\xef\xbb\xbf"))
	if line == "" || strings.HasPrefix(line, "{") {
		return "", &ParseError{Err: ErrMissingHeader}
	}
	return line, nil
}

// DecodeAsset implements assets.Codec.
func (s *Serializer) DecodeAsset(body []byte, a assets.Asset) error {
	return s.Unmarshal(body, a)
}

// EncodeAsset implements assets.Codec.
func (s *Serializer) EncodeAsset(a assets.Asset) ([]byte, error) {
	return s.Marshal(a)
}

func splitToken(tok string) (prefix, rest string, ok bool) {
	if !strings.HasPrefix(tok, "[") {
		return "", "", false
	}
	end := strings.IndexByte(tok, ']')
	if end < 2 {
		return "", "", false
	}
	return tok[:end+1], tok[end+1:], true
}
