// Package builtin embeds the assets every project can reference under the
// builtin/ namespace.
package builtin

import (
	"embed"
	"io/fs"
)

//go:embed builtin
var files embed.FS

// FS serves paths of the form "builtin/...".
func FS() fs.FS {
	return files
}

// Manifest lists every embedded asset path.
func Manifest() []string {
	var out []string
	_ = fs.WalkDir(files, "builtin", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			out = append(out, p)
		}
		return nil
	})
	return out
}
