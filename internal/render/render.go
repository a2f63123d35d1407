// Package render folds summary results into the HTML digest mailed to the
// recipient.
package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/Philanthropists/newsletter-digest/internal/summarize"
)

const DefaultTitle = "Newsletter Summaries"

const digestTemplate = `<!DOCTYPE html>
<html>
<head>
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; }
    .summary-container { border: 1px solid #ddd; padding: 15px; margin-bottom: 20px; }
    h2 { color: #333; }
    .summary { margin-top: 10px; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
{{- range .Blocks}}
  <div class="summary-container">
    <h2>{{.Subject}}</h2>
    <h3>By {{.Sender}}</h3>
{{- range .Sections}}
    <h3>{{.Label}} Summary</h3>
    <div class="summary">{{.Output}}</div>
{{- end}}
  </div>
{{- end}}
</body>
</html>
`

var digest = template.Must(template.New("digest").Parse(digestTemplate))

type Renderer struct {
	Title string
	// Labels maps a backend name to the heading shown above its output.
	Labels map[string]string
}

type section struct {
	Label  string
	Output template.HTML
}

type block struct {
	Subject  string
	Sender   string
	Sections []section
}

type page struct {
	Title  string
	Blocks []block
}

// Render uses the default title and labels every section with its backend name.
func Render(results []summarize.Result, order []string) (string, error) {
	return Renderer{}.Render(results, order)
}

// Render emits one block per result in sequence order and, inside each block,
// one section per backend in order. Backend output is inserted verbatim.
// Subject, sender and labels are HTML-escaped, so markup in a header shows up
// as text: "Tom & Jerry" is written as "Tom &amp; Jerry" and "C++" as
// "C&#43;&#43;". A browser displays both exactly as sent.
func (r Renderer) Render(results []summarize.Result, order []string) (string, error) {
	title := r.Title
	if title == "" {
		title = DefaultTitle
	}

	p := page{Title: title, Blocks: make([]block, 0, len(results))}
	for _, res := range results {
		b := block{Subject: res.Subject, Sender: res.Sender, Sections: make([]section, 0, len(order))}
		for _, name := range order {
			output, ok := res.Summaries[name]
			if !ok {
				output = summarize.ErrorMarker
			}
			b.Sections = append(b.Sections, section{
				Label:  r.label(name),
				Output: template.HTML(output),
			})
		}
		p.Blocks = append(p.Blocks, b)
	}

	var buf bytes.Buffer
	if err := digest.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("rendering digest: %w", err)
	}

	return buf.String(), nil
}

func (r Renderer) label(name string) string {
	if label, ok := r.Labels[name]; ok && label != "" {
		return label
	}
	return name
}
