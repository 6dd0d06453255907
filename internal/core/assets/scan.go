package assets

import (
	"bufio"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/hack-pad/hackpadfs"
	hos "github.com/hack-pad/hackpadfs/os"
	"github.com/pkg/errors"

	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/pkg/concurrent"
)

// GenericExtension marks JSON-backed files whose type only the header line names.
const GenericExtension = "asset"

const probeWorkers = 8

// Rebuild opens root on the host file system and rescans it.
func (c *Cache) Rebuild(root string, builtin fs.FS) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", root)
	}
	osfs := hos.NewFS()
	rel, err := osfs.FromOSPath(abs)
	if err != nil {
		return errors.Wrapf(err, "project root %s", abs)
	}
	project, err := osfs.Sub(rel)
	if err != nil {
		return errors.Wrapf(err, "open project %s", abs)
	}
	return c.RebuildFS(project, abs, builtin)
}

// RebuildFS drops every entry (unloading live instances) and rescans the
// builtin manifest plus the project tree. Files that cannot be typed are
// logged and skipped; the scan itself only fails when the tree is unreadable.
func (c *Cache) RebuildFS(project hackpadfs.FS, dir string, builtin fs.FS) error {
	c.UnloadAll()
	c.entries = make(map[string]*entry)
	c.roots = Roots{Project: project, ProjectDir: dir, Builtin: builtin}

	var locs []*Location
	var sources []fs.FS
	if builtin != nil {
		found, err := listFiles(builtin, strings.TrimSuffix(BuiltinPrefix, "/"))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Error("builtin manifest unreadable", log.Error(err))
		}
		for _, l := range found {
			locs = append(locs, l)
			sources = append(sources, builtin)
		}
	}
	if project != nil {
		found, err := listFiles(project, ".")
		if err != nil {
			return errors.Wrap(err, "scan project")
		}
		for _, l := range found {
			if l.IsBuiltin() {
				c.logger.Warn("project file shadows builtin namespace, skipped", log.String("path", l.Path()))
				continue
			}
			locs = append(locs, l)
			sources = append(sources, project)
		}
	}

	type probed struct {
		tag string
		err error
	}
	idx := make([]int, len(locs))
	for i := range idx {
		idx[i] = i
	}
	results := concurrent.ParallelMap(idx, probeWorkers, func(i int) probed {
		tag, err := c.probe(sources[i], locs[i])
		return probed{tag, err}
	})

	for i, loc := range locs {
		if r := results[i]; r.err != nil {
			c.logger.Error("asset skipped", log.String("path", loc.Path()), log.Error(r.err))
			continue
		}
		c.entries[loc.Path()] = &entry{loc: loc, tag: results[i].tag}
	}
	c.logger.Info("asset database rebuilt",
		log.Int("entries", len(c.entries)), log.String("root", dir))
	return nil
}

func listFiles(fsys fs.FS, root string) ([]*Location, error) {
	var out []*Location
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		loc, err := NewLocation(p)
		if err != nil {
			return nil
		}
		out = append(out, loc)
		return nil
	})
	return out, err
}

// probe determines the providing tag of one file: the extension table first,
// then the header line, then content sniffing, then Generic.
func (c *Cache) probe(fsys fs.FS, loc *Location) (string, error) {
	ext := loc.Ext()
	if ext != GenericExtension {
		if tag, ok := c.reg.ByExtension(ext); ok {
			return tag, nil
		}
	}

	f, err := fsys.Open(loc.Path())
	if err != nil {
		return "", err
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	head = head[:n]

	if tag := headerTag(head); tag != "" {
		if info, ok := c.reg.Lookup(tag); ok && info.JSONBacked {
			return tag, nil
		}
		if ext == GenericExtension {
			return "", errors.Wrapf(ErrMalformed, "unknown header type %q", tag)
		}
	}
	if ext == GenericExtension {
		return "", errors.Wrap(ErrMalformed, "missing header line")
	}
	if filetype.IsImage(head) {
		if kind, err := filetype.Match(head); err == nil {
			if tag, ok := c.reg.ByExtension(kind.Extension); ok {
				return tag, nil
			}
		}
	}
	return TagGeneric, nil
}

func headerTag(head []byte) string {
	sc := bufio.NewScanner(strings.NewReader(string(head)))
	if !sc.Scan() {
		return ""
	}
	line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\xef\xbb\xbf"))
	if line == "" || strings.ContainsAny(line, "{}[]\" \t") {
		return ""
	}
	return line
}
