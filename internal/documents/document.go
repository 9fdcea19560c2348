// Package documents renders printable PDFs for invoices, picking lists and delivery orders.
package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Template names a printable document layout.
type Template string

const (
	TemplateInvoice       Template = "invoice"
	TemplatePickingList   Template = "picking_list"
	TemplateDeliveryOrder Template = "delivery_order"
)

// Valid reports whether the template is known.
func (t Template) Valid() bool {
	switch t {
	case TemplateInvoice, TemplatePickingList, TemplateDeliveryOrder:
		return true
	}
	return false
}

// Field is a labelled value printed in the header or totals block.
type Field struct {
	Label string
	Value string
}

// Document is the renderer-neutral view of a printable document.
type Document struct {
	Title     string
	Number    string
	Status    string
	Meta      []Field
	Columns   []string
	Rows      [][]string
	Totals    []Field
	Footer    string
	PrintedAt time.Time
}

// Renderer turns a document into PDF bytes.
type Renderer interface {
	RenderPDF(ctx context.Context, tmpl Template, doc Document) ([]byte, error)
}

var printer = message.NewPrinter(language.English)

// FormatAmount prints money with thousands separators and two decimals.
func FormatAmount(d decimal.Decimal) string {
	units := d.Round(2)
	whole := units.Truncate(0)
	cents := units.Sub(whole).Abs().Shift(2).IntPart()
	sign := ""
	if units.IsNegative() && whole.IsZero() {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%02d", sign, printer.Sprintf("%d", whole.IntPart()), cents)
}

// FormatQuantity prints a unit count with thousands separators.
func FormatQuantity(q int64) string {
	return printer.Sprintf("%d", q)
}

// FormatDate prints a calendar date; the zero time prints as an empty string.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006")
}

// FormatDatePtr is FormatDate for optional timestamps.
func FormatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatDate(*t)
}

func titleOf(tmpl Template) string {
	switch tmpl {
	case TemplateInvoice:
		return "Invoice"
	case TemplatePickingList:
		return "Picking List"
	case TemplateDeliveryOrder:
		return "Delivery Order"
	}
	return string(tmpl)
}

func prepare(tmpl Template, doc Document) (Document, error) {
	if !tmpl.Valid() {
		return Document{}, fmt.Errorf("documents: unknown template %q", tmpl)
	}
	if doc.Title == "" {
		doc.Title = titleOf(tmpl)
	}
	if doc.PrintedAt.IsZero() {
		doc.PrintedAt = time.Now()
	}
	return doc, nil
}
