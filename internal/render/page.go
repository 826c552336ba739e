package render

import (
	"bytes"
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate *template.Template

func init() {
	content, err := templateFS.ReadFile("templates/comparison.html")
	if err != nil {
		pageTemplate = template.Must(template.New("comparison").Parse(fallbackTemplate))
		return
	}
	pageTemplate = template.Must(template.New("comparison").Parse(string(content)))
}

// PageData fills the standalone document template.
type PageData struct {
	Title  string
	Body   template.HTML
	Footer string
}

// Page renders v as a complete HTML document.
func Page(v View, footer string) (string, error) {
	title := "Comparison"
	if v.Header != nil {
		if h := v.Header.ByClass("comparison-title"); len(h) > 0 && h[0].Text != "" {
			title = h[0].Text
		}
	}
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, PageData{
		Title:  title,
		Body:   template.HTML(v.HTML()),
		Footer: footer,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body>{{.Body}}{{if .Footer}}<footer>{{.Footer}}</footer>{{end}}</body>
</html>`
