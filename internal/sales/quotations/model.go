package quotations

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusConverted Status = "CONVERTED"
)

// Transitions is the quotation state machine. REJECTED may be revised back to DRAFT.
var Transitions = shared.Transitions[Status]{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusConverted},
	StatusRejected:  {StatusDraft},
}

var (
	ErrQuotationNotFound = fmt.Errorf("quotation: %w", shared.ErrNotFound)
	ErrAlreadyConverted  = fmt.Errorf("%w: quotation has already been converted to a sales order", shared.ErrBusinessRule)
	ErrNoItems           = fmt.Errorf("%w: quotation needs at least one item before it can be submitted", shared.ErrBusinessRule)
	ErrNotEditable       = fmt.Errorf("%w: only DRAFT quotations can be changed", shared.ErrInvalidTransition)
)

type Quotation struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	CustomerID   int64      `json:"customer_id"`
	WarehouseID  int64      `json:"warehouse_id"`
	Status       Status     `json:"status"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	SalesOrderID *int64     `json:"sales_order_id,omitempty"`
	pricing.Totals
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Items     []Item    `json:"items"`
}

func (q Quotation) Ref() shared.Ref {
	return shared.NewRef(shared.RefQuotation, q.ID)
}

type Item struct {
	ID              int64           `json:"id"`
	QuotationID     int64           `json:"quotation_id"`
	ProductID       int64           `json:"product_id"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	Discount        decimal.Decimal `json:"discount_amount"`
	Tax             decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

type ListFilter struct {
	CustomerID int64
	Status     Status
	Page       shared.Page
}
