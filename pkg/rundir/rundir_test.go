package rundir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkfile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestMakeTree(t *testing.T) {
	root := t.TempDir()
	mkfile(t, filepath.Join(root, "b.csv"), "12345")
	mkfile(t, filepath.Join(root, "a.txt"), "x")
	mkfile(t, filepath.Join(root, "run1_qc", "fastqc", "s1_fastqc.html"), "<html>")

	t.Run("flat listing keeps directories as leaves", func(t *testing.T) {
		tree := MakeTree(root, false)

		require.Empty(t, tree.Err)
		require.Len(t, tree.Contents, 3)
		assert.Equal(t, []string{"a.txt", "b.csv", "run1_qc"}, []string{
			tree.Contents[0].Base(), tree.Contents[1].Base(), tree.Contents[2].Base(),
		})
		assert.True(t, tree.Contents[2].IsDir)
		assert.Nil(t, tree.Contents[2].Contents)
		assert.Equal(t, int64(5), tree.Contents[1].Size)
		assert.Equal(t, "5B", tree.Contents[1].HumanSize())
		assert.Len(t, tree.Dirs(), 1)
	})

	t.Run("recursive listing expands directories", func(t *testing.T) {
		tree := MakeTree(root, true)

		run := tree.Contents[2]
		require.Len(t, run.Contents, 1)

		fastqc := run.Contents[0]
		assert.True(t, fastqc.IsDir)
		require.Len(t, fastqc.Contents, 1)
		assert.Equal(t, filepath.Join(root, "run1_qc", "fastqc", "s1_fastqc.html"), fastqc.Contents[0].Name)
	})

	t.Run("unreadable path yields error node", func(t *testing.T) {
		missing := filepath.Join(root, "gone")
		tree := MakeTree(missing, true)

		assert.Nil(t, tree.Contents)
		assert.True(t, strings.HasPrefix(tree.Err, "There was an error listing "+missing))
	})

	t.Run("permission denied directory", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permissions are not enforced for root")
		}

		locked := filepath.Join(root, "locked")
		require.NoError(t, os.Mkdir(locked, 0o000))
		t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

		tree := MakeTree(root, true)

		var found bool

		for _, c := range tree.Contents {
			if c.Base() == "locked" {
				found = true

				assert.NotEmpty(t, c.Err)
			}
		}

		assert.True(t, found)
		assert.Empty(t, tree.Err, "siblings still list")
	})
}

func TestParseRunName(t *testing.T) {
	tests := []struct {
		name   string
		dir    string
		suffix string
		want   RunName
	}{
		{
			name:   "full run name",
			dir:    "180316_18-microbe-028_BNYL2_qc",
			suffix: "_qc",
			want: RunName{
				Dir:      "180316_18-microbe-028_BNYL2_qc",
				Name:     "180316_18-microbe-028_BNYL2",
				Date:     "180316",
				Project:  "18-microbe-028",
				FlowCell: "BNYL2",
			},
		},
		{
			name:   "suffix trimmed only at the end",
			dir:    "qcrun",
			suffix: "_qc",
			want:   RunName{Dir: "qcrun", Name: "qcrun", Project: "qcrun"},
		},
		{
			name:   "two parts has no flowcell",
			dir:    "180316_proj",
			suffix: "_qc",
			want:   RunName{Dir: "180316_proj", Name: "180316_proj", Date: "180316", Project: "proj"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRunName(tt.dir, tt.suffix))
		})
	}
}

func TestIsSafeName(t *testing.T) {
	assert.True(t, IsSafeName("180316_proj_FC_qc"))
	assert.False(t, IsSafeName(""))
	assert.False(t, IsSafeName(".."))
	assert.False(t, IsSafeName("a/b"))
	assert.False(t, IsSafeName("..hidden"))
}

func TestFilePaths(t *testing.T) {
	dir := t.TempDir()
	mkfile(t, filepath.Join(dir, "Samples_Read_Count_2.xlsx"), "")
	mkfile(t, filepath.Join(dir, "samples_read_count_1.csv"), "")
	mkfile(t, filepath.Join(dir, "other.csv"), "")

	got := FilePaths(dir, "[Ss]amples_[Rr]ead_[Cc]ount*.*", true)
	assert.Equal(t, []string{"Samples_Read_Count_2.xlsx", "samples_read_count_1.csv"}, got)

	first, ok := FirstMatch(dir, "*.csv")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "other.csv"), first)

	_, ok = FirstMatch(dir, "*.tsv")
	assert.False(t, ok)

	assert.Nil(t, FilePaths(dir, "[", false))
}

func TestReadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flash_stats.tsv")
	mkfile(t, path, "Sample\tCombined\tPct\nS1\t900\t90.0\nS2\t800\n")

	table, err := ReadTable(path)
	require.NoError(t, err)

	assert.Equal(t, "flash_stats.tsv", table.Source)
	assert.Equal(t, []string{"Sample", "Combined", "Pct"}, table.Header)
	require.Len(t, table.Rows, 2)

	recs := table.Records()
	assert.Equal(t, "90.0", recs[0]["Pct"])
	assert.Equal(t, "", recs[1]["Pct"])

	_, err = ReadTable(filepath.Join(dir, "missing.tsv"))
	require.Error(t, err)
}
