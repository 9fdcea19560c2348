package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest raises an invoice from exactly one of a sales order or a delivery order.
type CreateInvoiceRequest struct {
	SalesOrderID    int64 `json:"sales_order_id" validate:"omitempty,gt=0"`
	DeliveryOrderID int64 `json:"delivery_order_id" validate:"omitempty,gt=0"`
}

type UpdateStatusRequest struct {
	Status InvoiceStatus `json:"status" validate:"required,oneof=UNPAID PARTIAL PAID OVERDUE"`
}

type PaymentRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Method       PaymentMethod   `json:"method" validate:"required,oneof=CASH TRANSFER CREDIT_NOTE"`
	CreditNoteID *int64          `json:"credit_note_id,omitempty" validate:"omitempty,gt=0"`
	Reference    string          `json:"reference" validate:"max=255"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
}

type UpdatePaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference *string         `json:"reference,omitempty" validate:"omitempty,max=255"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}

// CreditNoteInput is what a completed sales return hands to billing.
type CreditNoteInput struct {
	CustomerID    int64
	SalesReturnID int64
	WarehouseID   int64
	Amount        decimal.Decimal
}
