package documents

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/odyssey-erp/odyssey-distribution/web"
)

// HTMLConverter posts HTML to a conversion service and returns the PDF.
type HTMLConverter interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// GotenbergRenderer executes the embedded HTML templates and converts them remotely.
type GotenbergRenderer struct {
	converter HTMLConverter
	templates *template.Template
}

// NewGotenbergRenderer parses the document templates.
func NewGotenbergRenderer(converter HTMLConverter) (*GotenbergRenderer, error) {
	funcs := template.FuncMap{
		"formatDate": func(t time.Time) string { return FormatDate(t) },
	}
	tmpl, err := template.New("documents").Funcs(funcs).ParseFS(web.Templates, "templates/documents/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse document templates: %w", err)
	}
	return &GotenbergRenderer{converter: converter, templates: tmpl}, nil
}

// RenderHTML executes the named template without converting it.
func (g *GotenbergRenderer) RenderHTML(tmpl Template, doc Document) (string, error) {
	doc, err := prepare(tmpl, doc)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := g.templates.ExecuteTemplate(&buf, string(tmpl), doc); err != nil {
		return "", fmt.Errorf("execute template %s: %w", tmpl, err)
	}
	return buf.String(), nil
}

// RenderPDF implements Renderer.
func (g *GotenbergRenderer) RenderPDF(ctx context.Context, tmpl Template, doc Document) ([]byte, error) {
	html, err := g.RenderHTML(tmpl, doc)
	if err != nil {
		return nil, err
	}
	pdf, err := g.converter.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("gotenberg %s: %w", tmpl, err)
	}
	return pdf, nil
}
