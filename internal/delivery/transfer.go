package delivery

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// TransferShipment describes the goods a transfer puts on the road.
type TransferShipment struct {
	TransferID    int64
	PickingListID *int64
	WarehouseID   int64
	ProductID     int64
	Quantity      int64
}

// CreateForTransfer records a delivery order that is already SHIPPED. The transfer has
// issued the stock, so no ledger movement is written here.
func CreateForTransfer(ctx context.Context, tx TransferTx, actor shared.Actor, in TransferShipment) (DeliveryOrder, error) {
	if in.TransferID <= 0 || in.WarehouseID <= 0 || in.ProductID <= 0 || in.Quantity <= 0 {
		return DeliveryOrder{}, shared.NewValidationError("transfer", "transfer, warehouse, product and quantity are required")
	}
	number, err := docnumber.Next(ctx, tx, docnumber.DeliveryOrder, in.WarehouseID, actor.At)
	if err != nil {
		return DeliveryOrder{}, err
	}
	at := actor.At
	do, err := tx.InsertDeliveryOrder(ctx, DeliveryOrder{
		Number:        number,
		Source:        shared.NewRef(shared.RefWarehouseTransfer, in.TransferID),
		PickingListID: in.PickingListID,
		WarehouseID:   in.WarehouseID,
		Status:        StatusShipped,
		ShippedAt:     &at,
		CreatedBy:     actor.UserID,
		CreatedAt:     actor.At,
		UpdatedAt:     actor.At,
		Items:         []Item{{ProductID: in.ProductID, QuantityShipped: in.Quantity, Status: ItemPending}},
	})
	if err != nil {
		return DeliveryOrder{}, fmt.Errorf("insert delivery order: %w", err)
	}
	err = shared.LogActivity(ctx, tx, actor, "delivery_order.created",
		fmt.Sprintf("Delivery order %s shipped for transfer", do.Number), do.Ref(), nil,
		map[string]any{"status": string(do.Status), "transfer_id": in.TransferID})
	return do, err
}

// DeliverForTransfer marks a transfer's delivery order fully DELIVERED on receipt.
func DeliverForTransfer(ctx context.Context, tx TransferTx, actor shared.Actor, id int64) (DeliveryOrder, error) {
	do, err := tx.GetDeliveryOrderForUpdate(ctx, id)
	if err != nil {
		return DeliveryOrder{}, err
	}
	if do.Source.Kind != shared.RefWarehouseTransfer {
		return DeliveryOrder{}, fmt.Errorf("%w: delivery order %s does not belong to a transfer", shared.ErrBusinessRule, do.Number)
	}
	for i := range do.Items {
		do.Items[i].QuantityDelivered = do.Items[i].QuantityShipped
		do.Items[i].Status = ItemDelivered
	}
	at := actor.At
	do.DeliveredAt = &at
	return move(ctx, tx, tx, actor, do, StatusDelivered)
}
