// Package charts renders pipeline tables as inline SVG chart fragments.
package charts

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/cometsong/mbiome-dataplots/pkg/pipeline"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Palette is the fill color sequence, as hex strings.
type Palette [9]string

// DefaultPalette cycles through named web colors.
var DefaultPalette = Palette{
	"9ACD32", // YellowGreen
	"D2691E", // Chocolate
	"B0C4DE", // LightSteelBlue
	"F08080", // LightCoral
	"6B8E23", // OliveDrab
	"483D8B", // DarkSlateBlue
	"DDA0DD", // Plum
	"008080", // Teal
	"C0C0C0", // Silver
}

// Config controls chart geometry and labels. It is a plain value: copy it
// freely, nothing in this package mutates it.
type Config struct {
	Width       int
	Height      int
	BarWidth    int
	LabelMaxLen int
	Ellipsis    string
	Palette     Palette
}

// DefaultConfig returns the built-in chart settings.
func DefaultConfig() Config {
	return Config{
		Width:       config.DefaultChartWidth,
		Height:      config.DefaultChartHeight,
		BarWidth:    config.DefaultChartBarWidth,
		LabelMaxLen: config.DefaultChartLabelMaxLen,
		Ellipsis:    "…",
		Palette:     DefaultPalette,
	}
}

// FromConfig builds a chart Config from the charts config section.
func FromConfig(cfg config.ChartsConfig) Config {
	c := DefaultConfig()

	if cfg.Width > 0 {
		c.Width = cfg.Width
	}

	if cfg.Height > 0 {
		c.Height = cfg.Height
	}

	if cfg.BarWidth > 0 {
		c.BarWidth = cfg.BarWidth
	}

	if cfg.LabelMaxLen > 0 {
		c.LabelMaxLen = cfg.LabelMaxLen
	}

	return c
}

// Label shortens s to LabelMaxLen runes, ending it with the ellipsis.
func (c Config) Label(s string) string {
	r := []rune(s)
	if c.LabelMaxLen <= 0 || len(r) <= c.LabelMaxLen {
		return s
	}

	return string(r[:c.LabelMaxLen]) + c.Ellipsis
}

// Color returns the i-th palette color, wrapping around.
func (c Config) Color(i int) drawing.Color {
	return drawing.ColorFromHex(c.Palette[i%len(c.Palette)])
}

// ReadCountsBar renders a stacked bar per sample, one segment per read
// loss component. Negative losses are drawn as zero; samples without any
// reads are left out of the chart.
func ReadCountsBar(cfg Config, title string, table pipeline.ReadDiffTable) (template.HTML, error) {
	bars := make([]chart.StackedBar, 0, len(table.Rows))

	for _, row := range table.Rows {
		values := make([]chart.Value, 0, len(pipeline.ReadDiffColumns))

		var total float64

		for i, v := range row.Components() {
			f := float64(v)
			if f < 0 {
				f = 0
			}

			total += f

			values = append(values, chart.Value{
				Label: pipeline.ReadDiffColumns[i],
				Value: f,
				Style: chart.Style{
					FillColor:   cfg.Color(i),
					StrokeColor: drawing.ColorBlack,
					StrokeWidth: 1,
				},
			})
		}

		if total <= 0 {
			continue
		}

		bars = append(bars, chart.StackedBar{
			Name:   cfg.Label(row.Sample),
			Width:  cfg.BarWidth,
			Values: values,
		})
	}

	if len(bars) == 0 {
		return emptyFragment(title), nil
	}

	width := cfg.Width
	if w := len(bars)*(cfg.BarWidth+cfg.BarWidth/2) + 120; w > width {
		width = w
	}

	sbc := chart.StackedBarChart{
		Title:      title,
		Width:      width,
		Height:     cfg.Height,
		BarSpacing: cfg.BarWidth / 2,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 10, Right: 10, Bottom: 10},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := sbc.Render(chart.SVG, &buf); err != nil {
		return "", fmt.Errorf("rendering %q: %w", title, err)
	}

	return fragment(title, buf.String(), legend(cfg, pipeline.ReadDiffColumns)), nil
}

// SpikeScatter plots each sample's total spike percentage (x) against its
// total reads (y).
func SpikeScatter(cfg Config, title string, table pipeline.SpikePivotTable) (template.HTML, error) {
	if len(table.Rows) == 0 {
		return emptyFragment(title), nil
	}

	xs := make([]float64, 0, len(table.Rows))
	ys := make([]float64, 0, len(table.Rows))

	var maxX, maxY float64

	for _, row := range table.Rows {
		x, y := row.TotalPct, float64(row.TotalReads)
		xs = append(xs, x)
		ys = append(ys, y)
		maxX = max(maxX, x)
		maxY = max(maxY, y)
	}

	ch := chart.Chart{
		Title:  title,
		Width:  cfg.Width,
		Height: cfg.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 16, Right: 12, Bottom: 16},
		},
		XAxis: chart.XAxis{
			Name:  "Spike Total Pcts",
			Range: &chart.ContinuousRange{Min: 0, Max: padded(maxX)},
		},
		YAxis: chart.YAxis{
			Name:  "Sample Reads",
			Range: &chart.ContinuousRange{Min: 0, Max: padded(maxY)},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Samples",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    5,
					DotColor:    cfg.Color(2),
				},
			},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.SVG, &buf); err != nil {
		return "", fmt.Errorf("rendering %q: %w", title, err)
	}

	return fragment(title, buf.String(), ""), nil
}

// padded leaves headroom above the largest value; axes never collapse to
// a zero-width range.
func padded(v float64) float64 {
	if v <= 0 {
		return 1
	}

	return v * 1.1
}

func legend(cfg Config, names []string) string {
	var sb strings.Builder

	sb.WriteString(`<ul class="legend">`)

	for i, name := range names {
		fmt.Fprintf(&sb, `<li><span class="swatch" style="background:#%s"></span>%s</li>`,
			cfg.Palette[i%len(cfg.Palette)], template.HTMLEscapeString(name))
	}

	sb.WriteString(`</ul>`)

	return sb.String()
}

func fragment(title, svg, extra string) template.HTML {
	//nolint:gosec // svg is produced by the chart renderer, title is escaped
	return template.HTML(fmt.Sprintf(`<div class="chart" title="%s">%s%s</div>`,
		template.HTMLEscapeString(title), svg, extra))
}

func emptyFragment(title string) template.HTML {
	//nolint:gosec // title is escaped
	return template.HTML(fmt.Sprintf(`<div class="chart empty">%s: no data</div>`,
		template.HTMLEscapeString(title)))
}
