// Package pricing computes line and document totals for sales documents.
package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Line is the priced input of one document line.
type Line struct {
	Quantity        int64
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// LineTotals is the computed breakdown of a line.
type LineTotals struct {
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Net is the line amount after discount and before tax.
func (t LineTotals) Net() decimal.Decimal {
	return t.Gross.Sub(t.Discount)
}

// Totals is the document level sum.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`
}

// CalculateLine applies discount then tax, rounding each amount half-up to 2 places.
func CalculateLine(l Line) LineTotals {
	gross := l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)).Round(2)
	discount := gross.Mul(l.DiscountPercent).Div(hundred).Round(2)
	net := gross.Sub(discount)
	tax := net.Mul(l.TaxPercent).Div(hundred).Round(2)
	return LineTotals{Gross: gross, Discount: discount, Tax: tax, Total: net.Add(tax)}
}

// Sum adds line breakdowns into document totals. Subtotal is net of discounts.
func Sum(lines []LineTotals) Totals {
	t := Totals{Subtotal: decimal.Zero, DiscountTotal: decimal.Zero, TaxTotal: decimal.Zero, Total: decimal.Zero}
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.Net())
		t.DiscountTotal = t.DiscountTotal.Add(l.Discount)
		t.TaxTotal = t.TaxTotal.Add(l.Tax)
		t.Total = t.Total.Add(l.Total)
	}
	return t
}

// Prorate prices qty units of a line that was priced for the full quantity. It is used when
// billing or returning part of a line.
func Prorate(full Line, qty int64) LineTotals {
	part := full
	part.Quantity = qty
	return CalculateLine(part)
}
