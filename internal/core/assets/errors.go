package assets

import "errors"

var (
	ErrInvalidLocation = errors.New("invalid asset location")
	ErrNotFound        = errors.New("asset not found")
	ErrRuntimeAsset    = errors.New("runtime asset has no location")
	ErrLoadCycle       = errors.New("asset load cycle")
	ErrConstruct       = errors.New("cannot construct asset")
	ErrNoCodec         = errors.New("no codec for JSON-backed asset")
	ErrReadOnly        = errors.New("builtin assets are read-only")
	ErrExists          = errors.New("asset already exists")
	ErrMalformed       = errors.New("malformed asset file")
)
