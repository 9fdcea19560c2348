package orders

import "github.com/shopspring/decimal"

type ItemRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Quantity        int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

type CreateRequest struct {
	CustomerID  int64         `json:"customer_id" validate:"required,gt=0"`
	WarehouseID int64         `json:"warehouse_id" validate:"required,gt=0"`
	Notes       string        `json:"notes" validate:"max=2000"`
	Items       []ItemRequest `json:"items" validate:"required,min=1,dive"`
	// QuotationID is set by quotation conversion only.
	QuotationID *int64 `json:"-"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
