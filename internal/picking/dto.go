package picking

type CreateRequest struct {
	SalesOrderID int64 `json:"sales_order_id" validate:"required,gt=0"`
}

type PickItem struct {
	ItemID         int64 `json:"item_id" validate:"required,gt=0"`
	QuantityPicked int64 `json:"quantity_picked" validate:"gte=0"`
}

type PickRequest struct {
	Items []PickItem `json:"items" validate:"required,min=1,dive"`
}
