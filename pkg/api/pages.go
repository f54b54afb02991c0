package api

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/cometsong/mbiome-dataplots/pkg/reports"
	"github.com/cometsong/mbiome-dataplots/pkg/rundir"
)

var pages = template.Must(template.New("pages").Parse(
	layoutTemplate + runListTemplate + runDetailsTemplate +
		fastqcTemplate + folderTemplate,
))

// runListEntry is one row of the run list. The record columns are only
// filled when the run has been indexed.
type runListEntry struct {
	Name     string
	Href     string
	Date     string
	Project  string
	FlowCell string
	RunDate  string
	Machine  string
}

type runListPage struct {
	Datasets string
	Error    string
	Indexed  bool
	Runs     []runListEntry
}

// sheetLink is a read-count workbook with an optional first-sheet preview.
type sheetLink struct {
	Name    string
	Preview *rundir.Table
}

// assemblyAccuracy groups the control assembly stats of one assembler.
type assemblyAccuracy struct {
	Name  string
	Stats *rundir.Table
	Plot  string
}

type runDetailsPage struct {
	Name            string
	Base            string
	Project         string
	FlowCell        string
	Record          map[string]string
	RecordKeys      []string
	RunMetricCSV    string
	ReadCountSheets []sheetLink
	ReadDistImages  []string
	FastQCStats     *rundir.Table
	Assemblies      []assemblyAccuracy
	ReadCountCharts []template.HTML
	SpikeCharts     []template.HTML
	Tree            rundir.Node
	Diagnostics     []reports.Diagnostic
}

type fastqcEntry struct {
	Name string
	Href string
	Zip  string
}

type fastqcPage struct {
	Name  string
	Base  string
	Error string
	Files []fastqcEntry
}

type folderPage struct {
	Name string
	Base string
	Path string
	Tree rundir.Node
}

// renderPage executes a named page template into a buffer first so a
// template error never produces a half written response.
func (s *server) renderPage(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer

	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.WithError(err).WithField("page", name).Error("Failed to render page")
		http.Error(w, "rendering page", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

const layoutTemplate = `
{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.}}</title>
<style>
body { font-family: sans-serif; margin: 1.5em; }
a.large { font-size: 1.3em; }
table { border-collapse: collapse; margin: 0.5em 0 1.5em; }
td, th { border: 1px solid #ccc; padding: 2px 8px; text-align: left; }
.chart { margin: 1em 0; }
.chart.empty { color: #888; }
ul.legend { list-style: none; padding: 0; }
ul.legend li { display: inline-block; margin-right: 1em; }
ul.legend span { display: inline-block; width: 1em; height: 1em; margin-right: 0.3em; }
.error { color: #b00; }
.diagnostics { color: #555; font-size: 0.9em; }
</style>
</head>
<body>
{{end}}
{{define "foot"}}</body>
</html>
{{end}}
{{define "table"}}<table>
<tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{end}}
{{define "tree"}}<ul class="tree">
{{range .Contents}}{{if .Err}}<li class="error">{{.Err}}</li>
{{else if .IsDir}}<li>{{.Base}}/
{{if .Contents}}{{template "tree" .}}{{end}}</li>
{{else}}<li>{{.Base}} <small>{{.HumanSize}}</small></li>
{{end}}{{end}}</ul>
{{end}}
`

const runListTemplate = `
{{define "run_list"}}{{template "head" "Mbiome Core Sequencer Run QC List"}}
<h1>Mbiome Core Sequencer Run QC List</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<table>
<tr><th>Run</th><th>Date</th><th>Project</th><th>FlowCell</th>{{if .Indexed}}<th>Run Date</th><th>Machine</th>{{end}}</tr>
{{range .Runs}}<tr>
<td><a class="large" href="{{.Href}}">{{.Name}}</a></td>
<td>{{.Date}}</td><td>{{.Project}}</td><td>{{.FlowCell}}</td>
{{if $.Indexed}}<td>{{.RunDate}}</td><td>{{.Machine}}</td>{{end}}
</tr>
{{end}}</table>
{{template "foot"}}{{end}}
`

const runDetailsTemplate = `
{{define "run_details"}}{{template "head" (printf "RunQC: %s" .Name)}}
<h1>MicrobiomeCore Run QC Info for "{{.Name}}"</h1>
<p>Project: <b>{{.Project}}</b> FlowCell: <b>{{.FlowCell}}</b></p>

<h2>Run Info</h2>
{{if .RecordKeys}}<table>
{{range .RecordKeys}}<tr><th>{{.}}</th><td>{{index $.Record .}}</td></tr>
{{end}}</table>
{{else}}<p>No run info available.</p>{{end}}

<h2>Files</h2>
<ul>
<li><a href="{{.Base}}fastqc/">FastQC Results</a></li>
{{if .RunMetricCSV}}<li><a href="{{.Base}}{{.RunMetricCSV}}">{{.RunMetricCSV}}</a></li>{{end}}
{{range .ReadCountSheets}}<li><a href="{{$.Base}}{{.Name}}">{{.Name}}</a></li>{{end}}
</ul>
{{range .ReadCountSheets}}{{if .Preview}}<h3>{{.Name}}</h3>
{{template "table" .Preview}}{{end}}{{end}}

{{if .ReadDistImages}}<h2>Read Distributions</h2>
{{range .ReadDistImages}}<img src="{{$.Base}}{{.}}" alt="{{.}}">
{{end}}{{end}}

{{if .FastQCStats}}<h2>FastQC Stats</h2>
{{template "table" .FastQCStats}}{{end}}

{{if .Assemblies}}<h2>Control Assembly Accuracy</h2>
{{range .Assemblies}}<h3>{{.Name}}</h3>
{{if .Stats}}{{template "table" .Stats}}{{end}}
{{if .Plot}}<img src="{{$.Base}}{{.Plot}}" alt="{{.Plot}}">{{end}}
{{end}}{{end}}

{{if .ReadCountCharts}}<h2>16S Read Counts</h2>
{{range .ReadCountCharts}}{{.}}
{{end}}{{end}}

{{if .SpikeCharts}}<h2>16S Spike Percentages</h2>
{{range .SpikeCharts}}{{.}}
{{end}}{{end}}

<h2>Directory Contents</h2>
{{if .Tree.Err}}<p class="error">{{.Tree.Err}}</p>{{else}}{{template "tree" .Tree}}{{end}}

{{if .Diagnostics}}<h2>Diagnostics</h2>
<ul class="diagnostics">
{{range .Diagnostics}}<li>{{.String}}</li>
{{end}}</ul>{{end}}
{{template "foot"}}{{end}}
`

const fastqcTemplate = `
{{define "fastqc"}}{{template "head" (printf "RunQC: %s FastQC" .Name)}}
<h1><a href="{{.Base}}">{{.Name}}</a></h1>
<h2>FastQC Result List</h2>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<ul>
{{range .Files}}<li><a href="{{.Href}}">{{.Name}}</a>{{if .Zip}} (<a href="{{.Zip}}">zip</a>){{end}}</li>
{{end}}</ul>
{{template "foot"}}{{end}}
`

const folderTemplate = `
{{define "folder"}}{{template "head" (printf "RunQC: %s/%s" .Name .Path)}}
<h1><a href="{{.Base}}">{{.Name}}</a>/{{.Path}}</h1>
{{if .Tree.Err}}<p class="error">{{.Tree.Err}}</p>
{{else}}<ul>
{{range .Tree.Contents}}{{if .IsDir}}<li><a href="{{.Base}}/">{{.Base}}/</a></li>
{{else}}<li><a href="{{.Base}}">{{.Base}}</a> <small>{{.HumanSize}}</small></li>
{{end}}{{end}}</ul>{{end}}
{{template "foot"}}{{end}}
`
