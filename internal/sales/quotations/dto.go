package quotations

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Quantity        int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

type CreateQuotationRequest struct {
	CustomerID  int64         `json:"customer_id" validate:"required,gt=0"`
	WarehouseID int64         `json:"warehouse_id" validate:"required,gt=0"`
	ValidUntil  *time.Time    `json:"valid_until,omitempty"`
	Notes       string        `json:"notes" validate:"max=2000"`
	Items       []ItemRequest `json:"items" validate:"dive"`
}

type UpdateQuotationRequest struct {
	ValidUntil *time.Time    `json:"valid_until,omitempty"`
	Notes      *string       `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items      []ItemRequest `json:"items" validate:"dive"`
}

type DecisionRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}
