package returns

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusApproved  Status = "APPROVED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

var Transitions = shared.Transitions[Status]{
	StatusDraft:    {StatusApproved, StatusCancelled},
	StatusApproved: {StatusCompleted, StatusCancelled},
}

// Condition decides whether a returned unit goes back on the shelf.
type Condition string

const (
	ConditionGood    Condition = "GOOD"
	ConditionDamaged Condition = "DAMAGED"
)

var (
	ErrSalesReturnNotFound = fmt.Errorf("sales return: %w", shared.ErrNotFound)
	ErrExceedsInvoiced     = fmt.Errorf("%w: return quantity exceeds the invoiced quantity", shared.ErrBusinessRule)
	ErrProductNotInvoiced  = fmt.Errorf("%w: product is not on the invoice", shared.ErrValidation)
)

// SalesReturn brings invoiced goods back from a customer.
type SalesReturn struct {
	ID           int64     `json:"id"`
	Number       string    `json:"number"`
	InvoiceID    int64     `json:"invoice_id"`
	SalesOrderID int64     `json:"sales_order_id"`
	CustomerID   int64     `json:"customer_id"`
	WarehouseID  int64     `json:"warehouse_id"`
	Status       Status    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	CreditNoteID *int64    `json:"credit_note_id,omitempty"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Items        []Item    `json:"items"`
}

func (r SalesReturn) Ref() shared.Ref {
	return shared.NewRef(shared.RefSalesReturn, r.ID)
}

// Amount is the credit owed for the return, quantity times unit price summed over items.
func (r SalesReturn) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
	}
	return total.Round(2)
}

type Item struct {
	ID            int64           `json:"id"`
	SalesReturnID int64           `json:"sales_return_id"`
	ProductID     int64           `json:"product_id"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Condition     Condition       `json:"condition"`
}

type ListFilter struct {
	InvoiceID int64
	Status    Status
	Page      shared.Page
}

type CreateRequest struct {
	InvoiceID int64       `json:"invoice_id" validate:"required,gt=0"`
	Reason    string      `json:"reason" validate:"max=500"`
	Items     []ItemInput `json:"items" validate:"required,min=1,dive"`
}

type ItemInput struct {
	ProductID int64     `json:"product_id" validate:"required,gt=0"`
	Quantity  int64     `json:"quantity" validate:"required,gt=0"`
	Condition Condition `json:"condition" validate:"required,oneof=GOOD DAMAGED"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
