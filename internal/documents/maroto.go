package documents

import (
	"context"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// MarotoRenderer builds PDFs in process.
type MarotoRenderer struct{}

func NewMarotoRenderer() *MarotoRenderer { return &MarotoRenderer{} }

// RenderPDF implements Renderer.
func (MarotoRenderer) RenderPDF(_ context.Context, tmpl Template, doc Document) ([]byte, error) {
	doc, err := prepare(tmpl, doc)
	if err != nil {
		return nil, err
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(doc.Title+" "+doc.Number, true).
		Build()

	m := maroto.New(cfg)
	m.AddRows(row.New(16).Add(
		col.New(7).Add(text.New(doc.Title, props.Text{Style: fontstyle.Bold, Size: 14, Color: colorPrimary, Top: 1})),
		col.New(5).Add(
			text.New(doc.Number, props.Text{Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 1}),
			text.New(doc.Status, props.Text{Size: 8, Align: align.Right, Top: 8, Color: colorGray}),
		),
	))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	for _, f := range doc.Meta {
		m.AddRows(fieldRow(f, align.Left))
	}
	if len(doc.Columns) > 0 {
		m.AddRows(tableRow(doc.Columns, true))
		for _, r := range doc.Rows {
			m.AddRows(tableRow(r, false))
		}
	}
	if len(doc.Totals) > 0 {
		m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
		for _, f := range doc.Totals {
			m.AddRows(fieldRow(f, align.Right))
		}
	}
	if doc.Footer != "" {
		m.AddRows(row.New(10).Add(col.New(12).Add(text.New(doc.Footer, props.Text{Size: 8, Top: 4, Color: colorGray}))))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("maroto %s: %w", tmpl, err)
	}
	return out.GetBytes(), nil
}

func fieldRow(f Field, a align.Type) core.Row {
	return row.New(6).Add(
		col.New(4).Add(text.New(f.Label, props.Text{Size: 8, Color: colorGray, Align: a, Top: 1})),
		col.New(8).Add(text.New(f.Value, props.Text{Size: 9, Align: a, Top: 1})),
	)
}

// tableRow spreads cells over the 12 grid columns; the first cell takes the remainder.
func tableRow(cells []string, header bool) core.Row {
	n := len(cells)
	if n == 0 {
		return row.New(6)
	}
	width := 12 / n
	if width == 0 {
		width = 1
	}
	style := props.Text{Size: 8, Top: 1}
	if header {
		style.Style = fontstyle.Bold
		style.Color = colorPrimary
	}
	cols := make([]core.Col, 0, n)
	for i, c := range cells {
		size := width
		if i == 0 {
			size = 12 - width*(n-1)
			if size < 1 {
				size = 1
			}
		}
		cols = append(cols, col.New(size).Add(text.New(c, style)))
	}
	return row.New(7).Add(cols...)
}
