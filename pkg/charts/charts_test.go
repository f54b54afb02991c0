package charts

import (
	"strings"
	"testing"

	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/cometsong/mbiome-dataplots/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromConfig(t *testing.T) {
	t.Run("zero values keep defaults", func(t *testing.T) {
		assert.Equal(t, DefaultConfig(), FromConfig(config.ChartsConfig{}))
	})

	t.Run("overrides", func(t *testing.T) {
		c := FromConfig(config.ChartsConfig{Width: 800, Height: 400, BarWidth: 10, LabelMaxLen: 5})
		assert.Equal(t, 800, c.Width)
		assert.Equal(t, 400, c.Height)
		assert.Equal(t, 10, c.BarWidth)
		assert.Equal(t, 5, c.LabelMaxLen)
		assert.Equal(t, DefaultPalette, c.Palette)
	})
}

func TestLabel(t *testing.T) {
	c := DefaultConfig()
	c.LabelMaxLen = 4

	tests := []struct {
		in   string
		want string
	}{
		{"abc", "abc"},
		{"abcd", "abcd"},
		{"abcde", "abcd…"},
		{"ééééé", "éééé…"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Label(tt.in))
		})
	}

	c.LabelMaxLen = 0
	assert.Equal(t, "abcdefgh", c.Label("abcdefgh"))
}

func TestReadCountsBar(t *testing.T) {
	table := pipeline.Diff(pipeline.ReadCountTable{
		{Sample: "Sample1", Raw: 100, Trimmed: 95, Combined: 90, NonChimera: 80, NonHost: 70},
		{Sample: "Sample2", Raw: 200, Trimmed: 150, Combined: 300, NonChimera: 140, NonHost: 130},
	})

	out, err := ReadCountsBar(DefaultConfig(), "Project P Read Counts", table)
	require.NoError(t, err)

	html := string(out)
	assert.True(t, strings.HasPrefix(html, `<div class="chart"`))
	assert.Contains(t, html, "<svg")
	assert.Contains(t, html, `<ul class="legend">`)

	for _, col := range pipeline.ReadDiffColumns {
		assert.Contains(t, html, col)
	}
}

func TestReadCountsBar_Empty(t *testing.T) {
	tests := []struct {
		name  string
		table pipeline.ReadDiffTable
	}{
		{name: "no rows", table: pipeline.ReadDiffTable{}},
		{
			name: "all zero",
			table: pipeline.Diff(pipeline.ReadCountTable{
				{Sample: "Blank"},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ReadCountsBar(DefaultConfig(), "Empty <run>", tt.table)
			require.NoError(t, err)
			assert.Contains(t, string(out), `class="chart empty"`)
			assert.Contains(t, string(out), "Empty &lt;run&gt;")
			assert.NotContains(t, string(out), "<svg")
		})
	}
}

func TestSpikeScatter(t *testing.T) {
	table := pipeline.Pivot([]pipeline.SpikeRow{
		{Sample: "S1", Spike: "OTU_A", Pct: 10, SpikeReads: 10, TotalReads: 100},
		{Sample: "S1", Spike: "OTU_B", Pct: 5, SpikeReads: 5, TotalReads: 100},
		{Sample: "S2", Spike: "OTU_A", Pct: 1, SpikeReads: 2, TotalReads: 200},
	})

	out, err := SpikeScatter(DefaultConfig(), "Project P Spike Pcts", table)
	require.NoError(t, err)
	assert.Contains(t, string(out), `<div class="chart"`)
	assert.Contains(t, string(out), "<svg")
}

func TestSpikeScatter_SinglePoint(t *testing.T) {
	table := pipeline.Pivot([]pipeline.SpikeRow{
		{Sample: "S1", Spike: "OTU_A", Pct: 0, SpikeReads: 0, TotalReads: 0},
	})

	out, err := SpikeScatter(DefaultConfig(), "single", table)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<svg")
}

func TestSpikeScatter_Empty(t *testing.T) {
	out, err := SpikeScatter(DefaultConfig(), "none", pipeline.SpikePivotTable{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "none: no data")
}

func TestPadded(t *testing.T) {
	assert.InDelta(t, 1.0, padded(0), 1e-9)
	assert.InDelta(t, 1.0, padded(-3), 1e-9)
	assert.InDelta(t, 11.0, padded(10), 1e-9)
}
