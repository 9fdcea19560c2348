// Package docnumber issues human readable document numbers of the form
// PREFIX-NNN/WAREHOUSE/MM-YYYY, scoped per document type, warehouse and calendar month.
package docnumber

import (
	"context"
	"fmt"
	"time"
)

// DocType names a numbered document family.
type DocType string

const (
	Quotation         DocType = "QUO"
	SalesOrder        DocType = "SO"
	PickingList       DocType = "PL"
	DeliveryOrder     DocType = "DO"
	Invoice           DocType = "INV"
	Payment           DocType = "PAY"
	WarehouseTransfer DocType = "IT"
	SalesReturn       DocType = "SR"
	CreditNote        DocType = "CN"
)

// Store increments counters inside the caller's transaction.
type Store interface {
	// Increment bumps the counter for the scope and returns the new value, starting at 1.
	Increment(ctx context.Context, docType DocType, warehouseID int64, period string) (int64, error)
	WarehouseCode(ctx context.Context, warehouseID int64) (string, error)
}

// Period returns the MM-YYYY counter scope of t.
func Period(t time.Time) string {
	return t.Format("01-2006")
}

// Format renders a document number.
func Format(docType DocType, seq int64, warehouseCode string, at time.Time) string {
	return fmt.Sprintf("%s-%03d/%s/%s", docType, seq, warehouseCode, Period(at))
}

// Next issues the next number for docType at warehouseID in the month of at.
func Next(ctx context.Context, store Store, docType DocType, warehouseID int64, at time.Time) (string, error) {
	code, err := store.WarehouseCode(ctx, warehouseID)
	if err != nil {
		return "", fmt.Errorf("docnumber: warehouse %d: %w", warehouseID, err)
	}
	seq, err := store.Increment(ctx, docType, warehouseID, Period(at))
	if err != nil {
		return "", fmt.Errorf("docnumber: increment %s: %w", docType, err)
	}
	return Format(docType, seq, code, at), nil
}
