package report

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"

	"github.com/SamuelRCrider/sitrecon/core"
)

type htmlRow struct {
	Scenario  string
	Reference string
	Candidate string
	TP        int
	FP        int
	FN        int
	Precision core.Ratio
	Recall    core.Ratio
	F1        core.Ratio
	FPRate    core.Ratio
	Overlap   float64
	Notes     string
}

type htmlPage struct {
	Title    string
	Rows     []htmlRow
	Summary  htmlRow
	Methods  []core.LoadResult
	Warnings []core.Warning
}

var funcs = template.FuncMap{
	"pct": formatPercent,
	"bar": func(r core.Ratio) string {
		if !r.Defined {
			return "0"
		}
		return strconv.FormatFloat(r.Percent, 'f', 1, 64)
	},
}

var page = template.Must(template.New("report").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Segoe UI, Arial, sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
th { background: #f0f0f0; }
tr.summary td { font-weight: bold; background: #fafafa; }
.chart { width: 640px; margin-bottom: 1.5em; }
.chart .label { font-size: 0.9em; margin: 6px 0 2px; }
.track { background: #eee; height: 14px; margin-bottom: 2px; }
.fill { height: 14px; }
.precision { background: #2b7bb9; }
.recall { background: #3a9d5d; }
.f1 { background: #d08b1f; }
.na { color: #888; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{- if .Methods}}
<h2>Methods</h2>
<table>
<tr><th>Method</th><th>Status</th><th>Records</th><th>Duplicates</th><th>Skipped rows</th><th>Source</th></tr>
{{- range .Methods}}
<tr><td>{{.Method}}</td><td>{{if .Loaded}}loaded{{else}}failed{{end}}</td><td>{{len .Records}}</td><td>{{.Duplicates}}</td><td>{{len .Skipped}}</td><td>{{.Path}}</td></tr>
{{- end}}
</table>
{{- end}}
<h2>Scenarios</h2>
<table>
<tr><th>Scenario</th><th>Reference</th><th>Candidate</th><th>TP</th><th>FP</th><th>FN</th><th>Precision</th><th>Recall</th><th>F1</th><th>FP rate</th><th>Overlap</th><th>Notes</th></tr>
{{- range .Rows}}
<tr><td>{{.Scenario}}</td><td>{{.Reference}}</td><td>{{.Candidate}}</td><td>{{.TP}}</td><td>{{.FP}}</td><td>{{.FN}}</td><td>{{.Precision}}</td><td>{{.Recall}}</td><td>{{.F1}}</td><td>{{.FPRate}}</td><td>{{pct .Overlap}}%</td><td>{{.Notes}}</td></tr>
{{- end}}
{{- with .Summary}}
<tr class="summary"><td>{{.Scenario}}</td><td></td><td></td><td>{{.TP}}</td><td>{{.FP}}</td><td>{{.FN}}</td><td>{{.Precision}}</td><td>{{.Recall}}</td><td>{{.F1}}</td><td>{{.FPRate}}</td><td>{{pct .Overlap}}%</td><td>{{.Notes}}</td></tr>
{{- end}}
</table>
<h2>Accuracy</h2>
{{- range .Rows}}
<div class="chart">
<div class="label">{{.Scenario}}</div>
<div class="track" title="Precision {{.Precision}}"><div class="fill precision" style="width: {{bar .Precision}}%"></div></div>
<div class="track" title="Recall {{.Recall}}"><div class="fill recall" style="width: {{bar .Recall}}%"></div></div>
<div class="track" title="F1 {{.F1}}"><div class="fill f1" style="width: {{bar .F1}}%"></div></div>
{{- if not .Recall.Defined}}<div class="na">{{.Notes}}</div>{{end}}
</div>
{{- end}}
{{- if .Warnings}}
<h2>Warnings</h2>
<ul>
{{- range .Warnings}}
<li>{{.String}}</li>
{{- end}}
</ul>
{{- end}}
</body>
</html>
`))

// HTML renders the run summary as a standalone page with tables and bar
// charts. Like the CSV, it carries no wall-clock data.
func HTML(summary *core.RunSummary, title string) ([]byte, error) {
	p := htmlPage{Title: title, Methods: summary.Loads, Warnings: summary.Warnings}
	for _, r := range summary.Results {
		p.Rows = append(p.Rows, htmlRow{
			Scenario:  r.Scenario,
			Reference: r.Reference,
			Candidate: r.Candidate,
			TP:        len(r.TruePositives),
			FP:        len(r.FalsePositives),
			FN:        len(r.FalseNegatives),
			Precision: r.Metrics.Precision,
			Recall:    r.Metrics.Recall,
			F1:        r.Metrics.F1,
			FPRate:    r.Metrics.FalsePositiveRate,
			Overlap:   r.OverlapPercentage,
			Notes:     strings.Join(r.Notes, "; "),
		})
	}
	totals, overlap := core.Totals(summary.Results)
	p.Summary = htmlRow{
		Scenario:  SummaryRowName,
		TP:        totals.TruePositives,
		FP:        totals.FalsePositives,
		FN:        totals.FalseNegatives,
		Precision: totals.Precision,
		Recall:    totals.Recall,
		F1:        totals.F1,
		FPRate:    totals.FalsePositiveRate,
		Overlap:   overlap,
		Notes:     strings.Join(totals.Notes(), "; "),
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
