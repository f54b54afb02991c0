package reports

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Row markers of the per-read block in a run metrics summary.
const (
	MarkerLevel      = "Level"
	MarkerRead1      = "Read 1"
	MarkerRead2Index = "Read 2 (I)"
	MarkerRead3Index = "Read 3 (I)"
	MarkerRead4      = "Read 4"
	MarkerTotal      = "Total"
)

// Rename maps a source field name to its display name.
type Rename struct {
	From string
	To   string
}

// RenameTable lists the run metrics fields to keep, in display order.
type RenameTable []Rename

// DefaultRunMetricsRenames is the field table used for Run_Metric files.
// Read 4 is the second sequencing read; its sub-metrics are reported as
// "Read 2".
var DefaultRunMetricsRenames = RenameTable{
	{From: "RunDate", To: "Run Date"},
	{From: "ProjectSeqRequestDate", To: "Seq Request Date"},
	{From: "LIMSProjectID", To: "GT Project"},
	{From: "LIMSID", To: "LIMS ID"},
	{From: "MachineID", To: "Machine ID"},
	{From: "FlowCellID", To: "FlowCell ID"},
	{From: "LoadingConc.(pM)", To: "Loading Conc (pM)"},
	{From: "Density", To: "Density"},
	{From: "PF", To: "PF"},
	{From: "Q30", To: "Q30"},
	{From: "Reads(M)", To: "Reads (M)"},
	{From: "ReadsPF (M)", To: "Reads PF (M)"},
	{From: "TotalYield(Gb)", To: "Total Yield (Gb)"},
	{From: "PhiXAligned%", To: "PhiX Aligned %"},
	{From: "PHIXLot", To: "PhiX Lot"},
	{From: "%>=Q30: Read 1", To: "%>=Q30: Read 1"},
	{From: "%>=Q30: Read 2", To: "%>=Q30: Read 2"},
	{From: "Yield: Read 1", To: "Yield: Read 1"},
	{From: "Yield: Read 2", To: "Yield: Read 2"},
	{From: "Density: Read 1", To: "Density: Read 1"},
	{From: "Density: Read 2", To: "Density: Read 2"},
	{From: "Cluster PF: Read 1", To: "Cluster PF: Read 1"},
	{From: "Cluster PF: Read 2", To: "Cluster PF: Read 2"},
	{From: "Aligned: Read 1", To: "Aligned: Read 1"},
	{From: "Aligned: Read 2", To: "Aligned: Read 2"},
	{From: "Error Rate: Read 1", To: "Error Rate: Read 1"},
	{From: "Error Rate: Read 2", To: "Error Rate: Read 2"},
	{From: "Intensity C1: Read 1", To: "Intensity C1: Read 1"},
	{From: "Intensity C1: Read 2", To: "Intensity C1: Read 2"},
}

// readSuffix maps the read rows that are kept to their field suffix.
var readSuffix = map[string]string{
	MarkerRead1: ": Read 1",
	MarkerRead4: ": Read 2",
}

type metricsState int

const (
	stateHeader metricsState = iota
	stateData
	stateSeekLevel
	stateReads
	stateDone
)

// metricsParser walks a run metrics file line by line.
type metricsParser struct {
	state  metricsState
	header []string
	levels []string
	raw    map[string]string
}

func (p *metricsParser) feed(cells []string) {
	marker := ""
	if len(cells) > 0 {
		marker = cells[0]
	}

	switch p.state {
	case stateHeader:
		p.header = cells
		p.state = stateData
	case stateData:
		for i, name := range p.header {
			if name != "" && i < len(cells) {
				p.raw[name] = cells[i]
			}
		}

		p.state = stateSeekLevel
	case stateSeekLevel:
		if marker == MarkerLevel {
			p.levels = cells[1:]
			p.state = stateReads
		}
	case stateReads:
		switch marker {
		case MarkerTotal:
			p.state = stateDone
		case MarkerRead2Index, MarkerRead3Index:
		case MarkerRead1, MarkerRead4:
			suffix := readSuffix[marker]

			for i, name := range p.levels {
				if name != "" && i+1 < len(cells) {
					p.raw[name+suffix] = cells[i+1]
				}
			}
		}
	case stateDone:
	}
}

// ParseRunMetrics reads a run metrics summary: a header line and a data
// line of scalar fields, followed by a per-read block that starts at the
// "Level" row and ends at the "Total" row. Only fields named in table are
// kept, under their display names; table entries absent from the file
// become diagnostics.
func ParseRunMetrics(r io.Reader, source string, table RenameTable) Result {
	res := newResult()
	p := &metricsParser{raw: make(map[string]string, 64)}
	sc := bufio.NewScanner(r)
	line := 0

	for p.state != stateDone && sc.Scan() {
		line++

		text := strings.TrimRight(trimBOM(sc.Text(), line), "\r")
		if text == "" && p.state > stateData {
			continue
		}

		cells := strings.Split(text, ",")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}

		p.feed(cells)
	}

	if err := sc.Err(); err != nil {
		res.addf(source, line, "reading run metrics: %v", err)
	}

	if p.state < stateSeekLevel {
		res.addf(source, line, "missing header or data line")
	}

	for _, rn := range table {
		v, ok := p.raw[rn.From]
		if !ok {
			res.addf(source, 0, "field %q not found", rn.From)

			continue
		}

		res.Fields[rn.To] = v
	}

	return res
}

// ParseRunMetricsDir parses the first file in dir matching pattern.
func ParseRunMetricsDir(dir, pattern string, table RenameTable) Result {
	return parseDir(dir, pattern, func(f *os.File, source string) Result {
		return ParseRunMetrics(f, source, table)
	})
}
