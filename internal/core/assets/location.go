package assets

import (
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/hack-pad/hackpadfs"
)

// BuiltinPrefix marks locations served from the embedded builtin manifest.
const BuiltinPrefix = "builtin/"

// Location identifies a persisted asset by its slash-separated path relative
// to the project root, or to the builtin namespace.
type Location struct {
	rel string
}

// NewLocation normalizes rel and rejects absolute or escaping paths.
func NewLocation(rel string) (*Location, error) {
	clean, err := normalize(rel)
	if err != nil {
		return nil, err
	}
	return &Location{rel: clean}, nil
}

// MustLocation is NewLocation for literals known to be valid.
func MustLocation(rel string) *Location {
	l, err := NewLocation(rel)
	if err != nil {
		panic(err)
	}
	return l
}

func normalize(rel string) (string, error) {
	p := strings.TrimSpace(filepath.ToSlash(rel))
	p = strings.TrimPrefix(p, AssetTokenPrefix)
	if p == "" || strings.HasPrefix(p, "/") {
		return "", ErrInvalidLocation
	}
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", ErrInvalidLocation
	}
	return p, nil
}

func (l *Location) Path() string {
	if l == nil {
		return ""
	}
	return l.rel
}

func (l *Location) String() string { return l.Path() }

func (l *Location) IsBuiltin() bool {
	return l != nil && strings.HasPrefix(l.rel, BuiltinPrefix)
}

// Ext is the lowercase extension without the dot.
func (l *Location) Ext() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(l.Path()), "."))
}

// Name is the file name without extension.
func (l *Location) Name() string {
	base := path.Base(l.Path())
	return strings.TrimSuffix(base, path.Ext(base))
}

func (l *Location) Equal(o *Location) bool {
	return l.Path() == o.Path()
}

// UpdateLocation rewrites the path in place. Only rename flows call it so
// every holder of this pointer follows the move.
func (l *Location) UpdateLocation(rel string) error {
	clean, err := normalize(rel)
	if err != nil {
		return err
	}
	l.rel = clean
	return nil
}

// Roots resolves locations to readable streams and absolute paths.
type Roots struct {
	// Project is the project tree, writable when backed by hackpadfs os/mem.
	Project hackpadfs.FS
	// ProjectDir is the absolute directory behind Project, empty for in-memory trees.
	ProjectDir string
	// Builtin serves the builtin/ namespace.
	Builtin fs.FS
}

func (r *Roots) fsFor(l *Location) (fs.FS, error) {
	if l.IsBuiltin() {
		if r.Builtin == nil {
			return nil, ErrNotFound
		}
		return r.Builtin, nil
	}
	if r.Project == nil {
		return nil, ErrNotFound
	}
	return r.Project, nil
}

// Open returns a reader over the asset's bytes.
func (r *Roots) Open(l *Location) (io.ReadCloser, error) {
	fsys, err := r.fsFor(l)
	if err != nil {
		return nil, err
	}
	return fsys.Open(l.Path())
}

// ReadFile returns the asset's bytes.
func (r *Roots) ReadFile(l *Location) ([]byte, error) {
	fsys, err := r.fsFor(l)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(fsys, l.Path())
}

// AbsPath returns the on-disk path, or a builtin:// URI for embedded assets.
func (r *Roots) AbsPath(l *Location) string {
	if l.IsBuiltin() {
		return "builtin://" + strings.TrimPrefix(l.Path(), BuiltinPrefix)
	}
	if r.ProjectDir == "" {
		return l.Path()
	}
	return filepath.Join(r.ProjectDir, filepath.FromSlash(l.Path()))
}
