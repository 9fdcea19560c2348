package delivery

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// ============================================================================
// DELIVERY ORDER STATUS
// ============================================================================

// Status is the lifecycle of a delivery order. SHIPPED is the in-transit state.
type Status string

const (
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Transitions is the delivery order state machine.
var Transitions = shared.Transitions[Status]{
	StatusPreparing: {StatusReady, StatusShipped, StatusCancelled},
	StatusReady:     {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

// ItemStatus is the per-line delivery outcome.
type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemDelivered ItemStatus = "DELIVERED"
	ItemPartial   ItemStatus = "PARTIAL"
	ItemDamaged   ItemStatus = "DAMAGED"
)

func (s ItemStatus) valid() bool {
	switch s {
	case ItemPending, ItemDelivered, ItemPartial, ItemDamaged:
		return true
	}
	return false
}

var (
	ErrDeliveryOrderNotFound = fmt.Errorf("delivery order: %w", shared.ErrNotFound)
	ErrActiveDeliveryExists  = fmt.Errorf("%w: sales order already has an active delivery order", shared.ErrBusinessRule)
	ErrOrderNotReady         = fmt.Errorf("%w: sales order must be READY_TO_SHIP", shared.ErrBusinessRule)
	ErrPickingNotCompleted   = fmt.Errorf("%w: picking list must be COMPLETED", shared.ErrBusinessRule)
	ErrNothingToShip         = fmt.Errorf("%w: nothing was picked", shared.ErrBusinessRule)
	ErrTransferDelivery      = fmt.Errorf("%w: transfer deliveries are received through the warehouse transfer", shared.ErrBusinessRule)
	ErrItemNotOnOrder        = fmt.Errorf("%w: item does not belong to this delivery order", shared.ErrValidation)
)

// ============================================================================
// DELIVERY ORDER ENTITY
// ============================================================================

// DeliveryOrder moves goods out of a warehouse for a sales order or a transfer.
type DeliveryOrder struct {
	ID            int64      `json:"id"`
	Number        string     `json:"number"`
	Source        shared.Ref `json:"source"`
	PickingListID *int64     `json:"picking_list_id,omitempty"`
	WarehouseID   int64      `json:"warehouse_id"`
	Status        Status     `json:"status"`
	ShippedAt     *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CreatedBy     int64      `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Items         []Item     `json:"items"`
}

func (d DeliveryOrder) Ref() shared.Ref {
	return shared.NewRef(shared.RefDeliveryOrder, d.ID)
}

// Item is a shipped product line.
type Item struct {
	ID                int64      `json:"id"`
	DeliveryOrderID   int64      `json:"delivery_order_id"`
	ProductID         int64      `json:"product_id"`
	QuantityShipped   int64      `json:"quantity_shipped"`
	QuantityDelivered int64      `json:"quantity_delivered"`
	Status            ItemStatus `json:"status"`
}

// AllDelivered reports whether every item reached DELIVERED.
func (d DeliveryOrder) AllDelivered() bool {
	if len(d.Items) == 0 {
		return false
	}
	for _, it := range d.Items {
		if it.Status != ItemDelivered {
			return false
		}
	}
	return true
}

type ListFilter struct {
	SalesOrderID int64
	Status       Status
	Page         shared.Page
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateRequest builds a delivery order from exactly one of a sales order or a picking list.
type CreateRequest struct {
	SalesOrderID  int64 `json:"sales_order_id" validate:"omitempty,gt=0"`
	PickingListID int64 `json:"picking_list_id" validate:"omitempty,gt=0"`
}

type DeliveredItem struct {
	ItemID            int64      `json:"item_id" validate:"required,gt=0"`
	QuantityDelivered int64      `json:"quantity_delivered" validate:"gte=0"`
	Status            ItemStatus `json:"status" validate:"omitempty,oneof=PENDING DELIVERED PARTIAL DAMAGED"`
}

// ReceiveRequest records the outcome at the customer. Without items every line is taken as
// fully delivered.
type ReceiveRequest struct {
	Items []DeliveredItem `json:"items" validate:"dive"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
