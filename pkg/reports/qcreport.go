package reports

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// QCReportLabels are the line labels picked out of a QC report.
var QCReportLabels = []string{
	"Project",
	"Sequence Protocol",
	"Sample Size",
	"Fastq Files",
	"Date Report",
}

// QCReportRenames maps QC report keys to their display names.
var QCReportRenames = map[string]string{
	"Project": "GT Project",
}

// ParseQCReport reads "<Label>: <value>,,,,," lines. Only the first comma
// separated cell of each line is considered; lines whose cell names no
// known label are ignored, labelled lines that do not split into exactly
// a key and a value become diagnostics.
func ParseQCReport(r io.Reader, source string) Result {
	res := newResult()
	sc := bufio.NewScanner(r)
	line := 0

	for sc.Scan() {
		line++

		first, _, _ := strings.Cut(trimBOM(sc.Text(), line), ",")
		first = strings.Trim(strings.TrimSpace(first), `"`)

		if !containsLabel(first) {
			continue
		}

		parts := strings.Split(first, ": ")
		if len(parts) != 2 {
			res.addf(source, line, "malformed report line %q", first)

			continue
		}

		res.Fields[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	if err := sc.Err(); err != nil {
		res.addf(source, line, "reading report: %v", err)
	}

	for from, to := range QCReportRenames {
		if v, ok := res.Fields[from]; ok {
			delete(res.Fields, from)
			res.Fields[to] = v
		}
	}

	if len(res.Fields) == 0 {
		res.addf(source, 0, "no report fields found")
	}

	return res
}

// ParseQCReportDir parses the first file in dir matching pattern.
func ParseQCReportDir(dir, pattern string) Result {
	return parseDir(dir, pattern, func(f *os.File, source string) Result {
		return ParseQCReport(f, source)
	})
}

func containsLabel(cell string) bool {
	for _, label := range QCReportLabels {
		if strings.Contains(cell, label) {
			return true
		}
	}

	return false
}
