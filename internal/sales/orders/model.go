package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusProcessing  Status = "PROCESSING"
	StatusReadyToShip Status = "READY_TO_SHIP"
	StatusShipped     Status = "SHIPPED"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
)

// Transitions is the sales order state machine.
var Transitions = shared.Transitions[Status]{
	StatusPending:     {StatusProcessing, StatusCancelled},
	StatusProcessing:  {StatusReadyToShip, StatusPending, StatusCancelled},
	StatusReadyToShip: {StatusShipped, StatusCancelled},
	StatusShipped:     {StatusCompleted},
}

// manualTargets are the statuses a user may request through update-status. SHIPPED and
// COMPLETED are reached through delivery and billing only.
var manualTargets = map[Status]bool{
	StatusPending:     true,
	StatusProcessing:  true,
	StatusReadyToShip: true,
	StatusCancelled:   true,
}

var (
	ErrOrderNotFound = fmt.Errorf("sales order: %w", shared.ErrNotFound)
	ErrManualStatus  = fmt.Errorf("%w: status can only be reached through the delivery and invoicing flow", shared.ErrInvalidTransition)
)

type SalesOrder struct {
	ID          int64  `json:"id"`
	Number      string `json:"number"`
	CustomerID  int64  `json:"customer_id"`
	WarehouseID int64  `json:"warehouse_id"`
	QuotationID *int64 `json:"quotation_id,omitempty"`
	Status      Status `json:"status"`
	Notes       string `json:"notes,omitempty"`
	pricing.Totals
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Items     []Item    `json:"items"`
}

// Ref points at the order for ledger and activity rows.
func (o SalesOrder) Ref() shared.Ref {
	return shared.NewRef(shared.RefSalesOrder, o.ID)
}

// Item is an order line. Allocations record where its reservation sits.
type Item struct {
	ID              int64                  `json:"id"`
	SalesOrderID    int64                  `json:"sales_order_id"`
	ProductID       int64                  `json:"product_id"`
	Quantity        int64                  `json:"quantity"`
	UnitPrice       decimal.Decimal        `json:"unit_price"`
	DiscountPercent decimal.Decimal        `json:"discount_percent"`
	TaxPercent      decimal.Decimal        `json:"tax_percent"`
	Discount        decimal.Decimal        `json:"discount_amount"`
	Tax             decimal.Decimal        `json:"tax_amount"`
	LineTotal       decimal.Decimal        `json:"line_total"`
	Allocations     []inventory.Allocation `json:"allocations,omitempty"`
}

// Line returns the pricing input of the item.
func (i Item) Line() pricing.Line {
	return pricing.Line{Quantity: i.Quantity, UnitPrice: i.UnitPrice, DiscountPercent: i.DiscountPercent, TaxPercent: i.TaxPercent}
}

// Reserved is the quantity still held for the item.
func (i Item) Reserved() int64 {
	var total int64
	for _, a := range i.Allocations {
		total += a.Quantity
	}
	return total
}

// ListFilter narrows order listings.
type ListFilter struct {
	CustomerID int64
	Status     Status
	Page       shared.Page
}
