package assets

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/hack-pad/hackpadfs"
	"github.com/pkg/errors"

	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/internal/core/registry"
)

type entry struct {
	loc      *Location
	tag      string
	instance Asset
	checksum uint64
}

// Cache owns one entry per discoverable location and at most one live
// instance per entry. It is not safe for concurrent use: every call must come
// from the engine's main thread (the Watcher only queues paths).
type Cache struct {
	reg     *registry.Registry
	codec   Codec
	logger  log.Log
	roots   Roots
	entries map[string]*entry
	loading map[string]bool
}

func NewCache(reg *registry.Registry, logger log.Log) *Cache {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Cache{
		reg:     reg,
		logger:  logger.Named("assets"),
		entries: make(map[string]*entry),
		loading: make(map[string]bool),
	}
}

// SetCodec installs the decoder for JSON-backed assets.
func (c *Cache) SetCodec(codec Codec) {
	c.codec = codec
}

func (c *Cache) Registry() *registry.Registry { return c.reg }

func (c *Cache) Roots() *Roots { return &c.roots }

// Len is the number of known locations.
func (c *Cache) Len() int { return len(c.entries) }

// Get returns the cached instance for loc, constructing and loading it on
// first access. A failed load leaves the slot empty so a later call can retry.
func (c *Cache) Get(loc *Location) (Asset, error) {
	if loc == nil {
		return nil, ErrRuntimeAsset
	}
	key := loc.Path()
	e, ok := c.entries[key]
	if !ok {
		c.logger.Warn("asset not found", log.String("path", key))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if e.instance != nil {
		return e.instance, nil
	}
	if c.loading[key] {
		c.logger.Error("asset load cycle", log.String("path", key))
		return nil, fmt.Errorf("%w: %s", ErrLoadCycle, key)
	}
	c.loading[key] = true
	defer delete(c.loading, key)

	a, sum, err := c.construct(e)
	if err != nil {
		c.logger.Error("asset load failed",
			log.String("path", key), log.String("type", e.tag), log.Error(err))
		return nil, err
	}
	e.instance = a
	e.checksum = sum
	c.logger.Debug("asset loaded", log.String("path", key), log.String("type", e.tag))
	return a, nil
}

// GetPath is Get for a raw relative path.
func (c *Cache) GetPath(rel string) (Asset, error) {
	loc, err := NewLocation(rel)
	if err != nil {
		return nil, err
	}
	return c.Get(loc)
}

func (c *Cache) construct(e *entry) (Asset, uint64, error) {
	info, ok := c.reg.Lookup(e.tag)
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown type %q", ErrConstruct, e.tag)
	}
	a, ok := info.New().(Asset)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s does not implement Asset", ErrConstruct, e.tag)
	}
	a.SetLocation(e.loc)
	ctx := &LoadContext{Location: e.loc, cache: c}

	if info.JSONBacked {
		if c.codec == nil {
			return nil, 0, ErrNoCodec
		}
		data, err := ctx.ReadAll()
		if err != nil {
			return nil, 0, errors.Wrapf(err, "read %s", e.loc)
		}
		tag, body := SplitHeader(data)
		if tag != "" && tag != e.tag {
			c.logger.Warn("asset header disagrees with cache entry",
				log.String("path", e.loc.Path()), log.String("header", tag), log.String("entry", e.tag))
		}
		if err := c.codec.DecodeAsset(body, a); err != nil {
			return nil, 0, err
		}
	}
	if err := a.Load(ctx); err != nil {
		return nil, 0, err
	}
	return a, ctx.sum, nil
}

// Loaded reports whether loc currently has a live instance.
func (c *Cache) Loaded(loc *Location) bool {
	e, ok := c.entries[loc.Path()]
	return ok && e.instance != nil
}

// Unload drops the live instance for loc. It reports whether anything was unloaded.
func (c *Cache) Unload(loc *Location) bool {
	e, ok := c.entries[loc.Path()]
	if !ok || e.instance == nil {
		return false
	}
	c.release(e)
	return true
}

// Release unloads a only while it is still the live instance of its
// location. Stale or runtime instances report false.
func (c *Cache) Release(a Asset) bool {
	if !c.Holds(a) {
		return false
	}
	c.release(c.entries[a.Location().Path()])
	return true
}

// Holds reports whether a is the live instance cached for its location.
func (c *Cache) Holds(a Asset) bool {
	if a == nil || a.Location() == nil {
		return false
	}
	e, ok := c.entries[a.Location().Path()]
	return ok && e.instance != nil && e.instance == a
}

// release empties the slot before running unload hooks, so hooks that call
// back into the cache see it already unloaded.
func (c *Cache) release(e *entry) {
	inst := e.instance
	e.instance = nil
	e.checksum = 0
	if cl, ok := inst.(Cleaner); ok {
		cl.Cleanup()
	}
	inst.Unload()
	c.logger.Debug("asset unloaded", log.String("path", e.loc.Path()))
}

// UnloadAll drops every live instance but keeps the entries.
func (c *Cache) UnloadAll() {
	for _, e := range c.entries {
		if e.instance != nil {
			c.release(e)
		}
	}
}

func (c *Cache) Exists(loc *Location) bool {
	if loc == nil {
		return false
	}
	_, ok := c.entries[loc.Path()]
	return ok
}

// TypeOf returns the providing tag of loc.
func (c *Cache) TypeOf(loc *Location) (string, bool) {
	e, ok := c.entries[loc.Path()]
	if !ok {
		return "", false
	}
	return e.tag, true
}

// Location returns the canonical location pointer the cache shares with
// instances, so callers holding it follow renames.
func (c *Cache) Location(rel string) (*Location, bool) {
	clean, err := normalize(rel)
	if err != nil {
		return nil, false
	}
	e, ok := c.entries[clean]
	if !ok {
		return nil, false
	}
	return e.loc, true
}

// AllOfType lists locations provided by tag, optionally including subtypes,
// sorted by path.
func (c *Cache) AllOfType(tag string, includeSubtypes bool) []*Location {
	var out []*Location
	for _, e := range c.entries {
		if e.tag == tag || (includeSubtypes && c.reg.IsA(e.tag, tag)) {
			out = append(out, e.loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// Add records a newly authored location under tag.
func (c *Cache) Add(loc *Location, tag string) error {
	if _, ok := c.reg.Lookup(tag); !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownTag, tag)
	}
	if _, exists := c.entries[loc.Path()]; exists {
		return fmt.Errorf("%w: %s", ErrExists, loc)
	}
	c.entries[loc.Path()] = &entry{loc: loc, tag: tag}
	return nil
}

// Create authors a new JSON-backed asset at rel: it is written to the project
// and becomes the cached instance for that location.
func (c *Cache) Create(rel string, a Asset) (*Location, error) {
	loc, err := NewLocation(rel)
	if err != nil {
		return nil, err
	}
	tag := c.reg.TagOf(a)
	if tag == "" {
		return nil, fmt.Errorf("%w: unregistered type %T", ErrConstruct, a)
	}
	if err := c.Add(loc, tag); err != nil {
		return nil, err
	}
	a.SetLocation(loc)
	e := c.entries[loc.Path()]
	e.instance = a
	if err := c.Save(a); err != nil {
		delete(c.entries, loc.Path())
		a.SetLocation(nil)
		return nil, err
	}
	return loc, nil
}

// Save writes a JSON-backed asset back to its file as a type-tag line
// followed by the JSON body.
func (c *Cache) Save(a Asset) error {
	loc := a.Location()
	if loc == nil {
		return ErrRuntimeAsset
	}
	if loc.IsBuiltin() {
		return ErrReadOnly
	}
	info, ok := c.reg.TypeOf(a)
	if !ok || !info.JSONBacked {
		return fmt.Errorf("%w: %T is not JSON-backed", ErrConstruct, a)
	}
	if c.codec == nil {
		return ErrNoCodec
	}
	body, err := c.codec.EncodeAsset(a)
	if err != nil {
		return err
	}
	data := JoinHeader(info.Tag, body)
	if err := c.writeFile(loc.Path(), data); err != nil {
		return err
	}
	if e, ok := c.entries[loc.Path()]; ok {
		e.checksum = xxhash.Sum64(data)
	}
	c.logger.Info("asset saved", log.String("path", loc.Path()), log.String("type", info.Tag))
	return nil
}

func (c *Cache) writeFile(rel string, data []byte) error {
	if c.roots.Project == nil {
		return ErrNotFound
	}
	if dir := path.Dir(rel); dir != "." {
		if err := hackpadfs.MkdirAll(c.roots.Project, dir, 0o755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	return errors.Wrapf(hackpadfs.WriteFullFile(c.roots.Project, rel, data, 0o644), "write %s", rel)
}

// Rename moves a project asset on disk and in the cache. The Location pointer
// held by the entry and its instance is updated in place.
func (c *Cache) Rename(loc *Location, newRel string) error {
	e, ok := c.entries[loc.Path()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	if e.loc.IsBuiltin() {
		return ErrReadOnly
	}
	target, err := NewLocation(newRel)
	if err != nil {
		return err
	}
	if target.IsBuiltin() {
		return ErrReadOnly
	}
	if _, exists := c.entries[target.Path()]; exists {
		return fmt.Errorf("%w: %s", ErrExists, target)
	}
	oldPath := e.loc.Path()
	if dir := path.Dir(target.Path()); dir != "." {
		if err := hackpadfs.MkdirAll(c.roots.Project, dir, 0o755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	if err := hackpadfs.Rename(c.roots.Project, oldPath, target.Path()); err != nil {
		return errors.Wrapf(err, "rename %s", oldPath)
	}
	delete(c.entries, oldPath)
	if err := e.loc.UpdateLocation(target.Path()); err != nil {
		return err
	}
	c.entries[e.loc.Path()] = e
	c.logger.Info("asset renamed", log.String("from", oldPath), log.String("to", e.loc.Path()))
	return nil
}

// Checksum is the xxhash of the bytes the live instance was loaded from.
func (c *Cache) Checksum(loc *Location) (uint64, bool) {
	e, ok := c.entries[loc.Path()]
	if !ok || e.instance == nil {
		return 0, false
	}
	return e.checksum, true
}

// Refresh unloads loc when its file content no longer matches the loaded
// checksum. It reports whether the instance was dropped.
func (c *Cache) Refresh(loc *Location) bool {
	e, ok := c.entries[loc.Path()]
	if !ok || e.instance == nil {
		return false
	}
	data, err := c.roots.ReadFile(e.loc)
	if err != nil {
		c.logger.Warn("refresh read failed", log.String("path", e.loc.Path()), log.Error(err))
		c.release(e)
		return true
	}
	if xxhash.Sum64(data) == e.checksum {
		return false
	}
	c.release(e)
	c.logger.Info("asset changed on disk", log.String("path", e.loc.Path()))
	return true
}

// Touch reconciles one project path with the file system: new files gain an
// entry, changed files are refreshed and deleted files are forgotten.
func (c *Cache) Touch(rel string) {
	loc, err := NewLocation(rel)
	if err != nil || loc.IsBuiltin() || c.roots.Project == nil {
		return
	}
	info, statErr := fs.Stat(c.roots.Project, loc.Path())
	e, known := c.entries[loc.Path()]
	switch {
	case statErr != nil && known:
		if e.instance != nil {
			c.release(e)
		}
		delete(c.entries, loc.Path())
		c.logger.Info("asset removed", log.String("path", loc.Path()))
	case statErr != nil, info.IsDir():
	case known:
		c.Refresh(e.loc)
	default:
		tag, err := c.probe(c.roots.Project, loc)
		if err != nil {
			c.logger.Error("asset probe failed", log.String("path", loc.Path()), log.Error(err))
			return
		}
		c.entries[loc.Path()] = &entry{loc: loc, tag: tag}
		c.logger.Info("asset discovered", log.String("path", loc.Path()), log.String("type", tag))
	}
}

// SplitHeader separates the leading type-tag line of a JSON-backed file
// from its body. Files whose first line opens the JSON body have no header.
func SplitHeader(data []byte) (string, []byte) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] == '{' || trimmed[0] == '[' {
		return "", trimmed
	}
	line, body, _ := bytes.Cut(trimmed, []byte("\n"))
	return string(bytes.TrimSpace(line)), body
}

// JoinHeader builds the on-disk form of a JSON-backed asset.
func JoinHeader(tag string, body []byte) []byte {
	out := make([]byte, 0, len(tag)+1+len(body)+1)
	out = append(out, tag...)
	out = append(out, '\n')
	out = append(out, body...)
	if len(body) == 0 || body[len(body)-1] != '\n' {
		out = append(out, '\n')
	}
	return out
}
