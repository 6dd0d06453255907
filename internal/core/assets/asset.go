package assets

import (
	"io"

	"github.com/cespare/xxhash/v2"
)

// AssetTokenPrefix prefixes asset references in untyped positions.
const AssetTokenPrefix = "[Asset]"

// Asset is a persisted or runtime resource. Assets with a nil Location are
// runtime assets and are never written to disk.
type Asset interface {
	Location() *Location
	SetLocation(loc *Location)
	// Load runs after construction (and after the JSON body was decoded for
	// JSON-backed types).
	Load(ctx *LoadContext) error
	Unload()
}

// Cleaner is implemented by assets holding resources that must be released
// before Unload.
type Cleaner interface {
	Cleanup()
}

// Codec decodes and encodes the JSON body of JSON-backed assets. The
// serializer implements it; the cache only sees this seam.
type Codec interface {
	DecodeAsset(body []byte, a Asset) error
	EncodeAsset(a Asset) ([]byte, error)
}

// Base carries the location. Embed it in concrete asset types.
type Base struct {
	loc *Location
}

func (b *Base) Location() *Location { return b.loc }

func (b *Base) SetLocation(loc *Location) { b.loc = loc }

func (b *Base) Load(*LoadContext) error { return nil }

func (b *Base) Unload() {}

// IsRuntime reports whether the asset only lives in memory.
func (b *Base) IsRuntime() bool { return b.loc == nil }

// LoadContext is handed to Asset.Load.
type LoadContext struct {
	Location *Location
	cache    *Cache
	sum      uint64
	hashed   bool
}

// Open returns a reader over the backing file.
func (c *LoadContext) Open() (io.ReadCloser, error) {
	return c.cache.roots.Open(c.Location)
}

// ReadAll reads the whole backing file and records its checksum.
func (c *LoadContext) ReadAll() ([]byte, error) {
	data, err := c.cache.roots.ReadFile(c.Location)
	if err != nil {
		return nil, err
	}
	c.sum = xxhash.Sum64(data)
	c.hashed = true
	return data, nil
}

// AbsPath is the absolute path of the backing file.
func (c *LoadContext) AbsPath() string {
	return c.cache.roots.AbsPath(c.Location)
}

// Cache gives loaders access to dependent assets.
func (c *LoadContext) Cache() *Cache {
	return c.cache
}
