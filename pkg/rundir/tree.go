// Package rundir inspects run directories: listing trees, matching
// artefact files and reading the small delimited stats tables they hold.
package rundir

import (
	"fmt"
	"os"
	"path/filepath"

	units "github.com/docker/go-units"
)

// Node is one entry of a directory tree. When listing a directory fails,
// Err holds a readable message and Contents stays nil.
type Node struct {
	Name     string `json:"name"`
	IsDir    bool   `json:"is_dir,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Contents []Node `json:"contents,omitempty"`
	Err      string `json:"error,omitempty"`
}

// Base returns the last element of the node path.
func (n Node) Base() string {
	return filepath.Base(n.Name)
}

// HumanSize formats the file size, e.g. "1.2MB".
func (n Node) HumanSize() string {
	if n.IsDir {
		return ""
	}

	return units.HumanSize(float64(n.Size))
}

// Dirs returns the directory children of n.
func (n Node) Dirs() []Node {
	dirs := make([]Node, 0, len(n.Contents))

	for _, c := range n.Contents {
		if c.IsDir {
			dirs = append(dirs, c)
		}
	}

	return dirs
}

// MakeTree lists path. Child directories are expanded only when recursive
// is set; otherwise they appear as leaf nodes with IsDir set. Entries are
// sorted by name. Errors never propagate: the failing node carries them.
func MakeTree(path string, recursive bool) Node {
	tree := Node{Name: path, IsDir: true}

	entries, err := os.ReadDir(path)
	if err != nil {
		tree.Err = fmt.Sprintf("There was an error listing %s: %v", path, err)

		return tree
	}

	tree.Contents = make([]Node, 0, len(entries))

	for _, entry := range entries {
		full := filepath.Join(path, entry.Name())

		// Stat follows symlinks so linked run directories count as dirs.
		info, err := os.Stat(full)
		if err != nil {
			tree.Contents = append(tree.Contents, Node{
				Name: full,
				Err:  fmt.Sprintf("There was an error reading %s: %v", full, err),
			})

			continue
		}

		if info.IsDir() {
			if recursive {
				tree.Contents = append(tree.Contents, MakeTree(full, true))
			} else {
				tree.Contents = append(tree.Contents, Node{Name: full, IsDir: true})
			}

			continue
		}

		tree.Contents = append(tree.Contents, Node{Name: full, Size: info.Size()})
	}

	return tree
}
