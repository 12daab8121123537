package ui

import (
	"fmt"
	"html/template"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/me/keysweep/pkg/model"
)

// Template functions available in all templates.
var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"formatTimePtr": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"since": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return humanize.Time(t)
	},
	"comma": func(v uint64) string {
		return humanize.Comma(int64(v))
	},
	"rate": func(v float64) string {
		return humanize.CommafWithDigits(v, 1)
	},
	"exitCode": func(code *int) string {
		if code == nil {
			return "-"
		}
		return fmt.Sprint(*code)
	},
	"add": func(a, b int) int { return a + b },
	"stateColor": func(state string) string {
		switch strings.ToUpper(state) {
		case string(model.ChunkStateMatched), "SUCCESS":
			return "ok"
		case string(model.ChunkStateLost), string(model.ChunkStateInterrupted), "ERROR", "FAILED":
			return "bad"
		case string(model.PhaseDraining):
			return "warn"
		default:
			return "info"
		}
	},
}

// renderTemplate renders a template inside the shared layout.
func renderTemplate(w io.Writer, name string, data map[string]any) error {
	content, ok := templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}
	layout, ok := templates["layout"]
	if !ok {
		return fmt.Errorf("layout template not found")
	}

	tmpl, err := template.New("layout").Funcs(templateFuncs).Parse(layout)
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}
	if _, err := tmpl.New("content").Parse(content); err != nil {
		return fmt.Errorf("parse content: %w", err)
	}

	for compName, compContent := range templates {
		if strings.HasPrefix(compName, "components/") {
			if _, err := tmpl.New(path.Base(compName)).Parse(compContent); err != nil {
				return fmt.Errorf("parse component %s: %w", compName, err)
			}
		}
	}
	return tmpl.Execute(w, data)
}

var templates = map[string]string{
	"layout": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    {{if .Refresh}}<meta http-equiv="refresh" content="{{.Refresh}}">{{end}}
    <title>{{.Title}}</title>
    <style>
        body { font-family: system-ui, sans-serif; margin: 2rem; color: #1f2937; }
        nav a { margin-right: 1rem; }
        table { border-collapse: collapse; margin-top: 1rem; }
        th, td { padding: 0.3rem 0.8rem; border-bottom: 1px solid #e5e7eb; text-align: left; }
        td.num { text-align: right; font-variant-numeric: tabular-nums; }
        .ok { color: #047857; } .bad { color: #b91c1c; } .warn { color: #b45309; } .info { color: #1d4ed8; }
        .banner { padding: 0.8rem; background: #ecfdf5; border: 1px solid #047857; }
    </style>
</head>
<body>
    <nav><a href="/">Dashboard</a><a href="/chunks">Chunks</a><a href="/chunks?lost=true">Lost chunks</a></nav>
    {{template "content" .}}
</body>
</html>`,

	"dashboard": `{{define "content"}}
<h1>Run {{.Snap.RunID}}</h1>
<p>Phase <span class="{{stateColor (print .Snap.Phase)}}">{{.Snap.Phase}}</span>{{if .Snap.Outcome}}, outcome <strong>{{.Snap.Outcome}}</strong>{{end}}. Up {{.Uptime}}.</p>
{{if .Snap.Payload}}<p class="banner">SUCCESS: <code>{{.Snap.Payload}}</code></p>{{end}}
<table>
    <tr><th>Cursor</th><td class="num">{{comma .Snap.Cursor}}</td></tr>
    <tr><th>Chunk size</th><td class="num">{{comma .Snap.ChunkSize}}</td></tr>
    <tr><th>Workers</th><td class="num">{{len .Snap.Workers}} / {{.Snap.MaxWorkers}}</td></tr>
    <tr><th>Dispatched</th><td class="num">{{.Snap.Dispatched}}</td></tr>
    <tr><th>Lost</th><td class="num">{{.Snap.Lost}}</td></tr>
    <tr><th>Keys/sec</th><td class="num">{{rate .KeysPerSec}}</td></tr>
    <tr><th>Scanned in flight</th><td class="num">{{comma .InFlight}}</td></tr>
    <tr><th>Updated</th><td>{{since .Snap.UpdatedAt}}</td></tr>
</table>

<h2>Active workers</h2>
{{if .Snap.Workers}}
<table>
    <tr><th>Slot</th><th>Seq</th><th>PID</th><th>Range</th><th>Counter</th><th>Keys/sec</th><th>Started</th></tr>
    {{range .Snap.Workers}}
    <tr>
        <td>{{.Slot}}</td><td>{{.Seq}}</td><td>{{.PID}}</td><td>{{.Chunk}}</td>
        <td class="num">{{comma .LastCounter}}</td><td class="num">{{rate .Rate}}</td><td>{{since .StartedAt}}</td>
    </tr>
    {{end}}
</table>
{{else}}
<p>No active workers.</p>
{{end}}

<h2>Chunk ledger</h2>
{{template "chunk_table" .Ledger}}
{{end}}`,

	"chunks": `{{define "content"}}
<h1>{{if .LostOnly}}Lost chunks{{else}}Chunks{{end}}{{if .RunID}} for run {{.RunID}}{{end}}</h1>
<p>{{.Total}} total, page {{.Page}}.</p>
{{template "chunk_table" .Chunks}}
<p>
    {{if .HasPrev}}<a href="/chunks?page={{add .Page -1}}&lost={{.LostOnly}}&run={{.RunID}}">Previous</a>{{end}}
    {{if .HasNext}}<a href="/chunks?page={{add .Page 1}}&lost={{.LostOnly}}&run={{.RunID}}">Next</a>{{end}}
</p>
{{end}}`,

	"components/chunk_table": `{{define "chunk_table"}}{{if .}}
<table>
    <tr><th>Seq</th><th>Slot</th><th>PID</th><th>Range</th><th>State</th><th>Exit</th><th>Dispatched</th><th>Finished</th></tr>
    {{range .}}
    <tr>
        <td>{{.Seq}}</td><td>{{.Slot}}</td><td>{{.PID}}</td><td>{{.Chunk}}</td>
        <td class="{{stateColor (print .State)}}">{{.State}}</td><td>{{exitCode .ExitCode}}</td>
        <td>{{formatTime .DispatchedAt}}</td><td>{{formatTimePtr .FinishedAt}}</td>
    </tr>
    {{end}}
</table>
{{else}}
<p>No chunks recorded.</p>
{{end}}
{{end}}`,

	"error": `{{define "content"}}
<h1>Error</h1>
<p class="bad">{{.Message}}</p>
{{end}}`,
}
