package rundir

import (
	"path/filepath"
	"sort"
	"strings"
)

// FilePaths returns the files in dir matching pattern, sorted. With
// nameOnly set the directory part is dropped. A bad pattern matches
// nothing.
func FilePaths(dir, pattern string, nameOnly bool) []string {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}

	sort.Strings(matches)

	if nameOnly {
		for i, m := range matches {
			matches[i] = filepath.Base(m)
		}
	}

	return matches
}

// FirstMatch returns the first file in dir matching pattern.
func FirstMatch(dir, pattern string) (string, bool) {
	matches := FilePaths(dir, pattern, false)
	if len(matches) == 0 {
		return "", false
	}

	return matches[0], true
}

// RunName holds the parts encoded in a run directory name of the form
// <date>_<project>_<flowcell>[_qc].
type RunName struct {
	Dir      string `json:"dir"`
	Name     string `json:"name"`
	Date     string `json:"date,omitempty"`
	Project  string `json:"project,omitempty"`
	FlowCell string `json:"flowcell,omitempty"`
}

// ParseRunName splits a run directory name. The suffix, e.g. "_qc", is
// removed from the display name. Names without an underscore are taken
// as the project.
func ParseRunName(dir, suffix string) RunName {
	name := dir
	if suffix != "" {
		name = strings.TrimSuffix(dir, suffix)
	}

	rn := RunName{Dir: dir, Name: name}

	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		rn.Project = name

		return rn
	}

	rn.Date = parts[0]
	rn.Project = parts[1]

	if len(parts) > 2 {
		rn.FlowCell = parts[2]
	}

	return rn
}

// IsSafeName reports whether name is a single, plain path element.
func IsSafeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}

	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}
