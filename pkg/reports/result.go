// Package reports parses the delimited lab reports found in a run
// directory into flat display-name to value maps.
package reports

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cometsong/mbiome-dataplots/pkg/rundir"
	"github.com/sirupsen/logrus"
)

// Diagnostic is a non-fatal problem met while reading an input file.
type Diagnostic struct {
	Source  string `json:"source"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// String formats the diagnostic as "source:line: message".
func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", d.Source, d.Line, d.Message)
	}

	return fmt.Sprintf("%s: %s", d.Source, d.Message)
}

// Result is the outcome of a parse: whatever fields could be read, plus
// diagnostics for everything that could not.
type Result struct {
	Fields      map[string]string `json:"fields"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
}

func newResult() Result {
	return Result{Fields: make(map[string]string, 32)}
}

func (r *Result) addf(source string, line int, format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Source:  source,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	})
}

// LogDiagnostics writes each diagnostic as a warning.
func LogDiagnostics(log logrus.FieldLogger, diags []Diagnostic) {
	for _, d := range diags {
		log.WithFields(logrus.Fields{
			"source": d.Source,
			"line":   d.Line,
		}).Warn(d.Message)
	}
}

// parseDir locates the first file matching pattern in dir and hands it to
// parse. A missing or unreadable file becomes a diagnostic.
func parseDir(dir, pattern string, parse func(f *os.File, source string) Result) Result {
	path, ok := rundir.FirstMatch(dir, pattern)
	if !ok {
		res := newResult()
		res.addf(filepath.Join(dir, pattern), 0, "no file matches")

		return res
	}

	f, err := os.Open(path)
	if err != nil {
		res := newResult()
		res.addf(path, 0, "cannot open: %v", err)

		return res
	}
	defer func() { _ = f.Close() }()

	return parse(f, filepath.Base(path))
}

// utf8BOM is written at the start of CSV files exported from Excel.
const utf8BOM = "\ufeff"

// trimBOM drops a byte order mark from the first line of a file.
func trimBOM(text string, line int) string {
	if line != 1 {
		return text
	}

	return strings.TrimPrefix(text, utf8BOM)
}
