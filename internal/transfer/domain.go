package transfer

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

var Transitions = shared.Transitions[Status]{
	StatusRequested: {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusReceived},
}

var (
	ErrTransferNotFound = fmt.Errorf("warehouse transfer: %w", shared.ErrNotFound)
	ErrSameWarehouse    = fmt.Errorf("%w: source and destination warehouse must differ", shared.ErrValidation)
)

// Transfer moves one product between two warehouses.
type Transfer struct {
	ID              int64     `json:"id"`
	Number          string    `json:"number"`
	ProductID       int64     `json:"product_id"`
	FromWarehouseID int64     `json:"from_warehouse_id"`
	ToWarehouseID   int64     `json:"to_warehouse_id"`
	Quantity        int64     `json:"quantity"`
	Status          Status    `json:"status"`
	PickingListID   *int64    `json:"picking_list_id,omitempty"`
	DeliveryOrderID *int64    `json:"delivery_order_id,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	RequestedBy     int64     `json:"requested_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (t Transfer) Ref() shared.Ref {
	return shared.NewRef(shared.RefWarehouseTransfer, t.ID)
}

func (t Transfer) CanApprove() bool { return Transitions.Allows(t.Status, StatusApproved) }
func (t Transfer) CanDeliver() bool { return Transitions.Allows(t.Status, StatusInTransit) }
func (t Transfer) CanReceive() bool { return Transitions.Allows(t.Status, StatusReceived) }
func (t Transfer) CanCancel() bool  { return Transitions.Allows(t.Status, StatusCancelled) }

type ListFilter struct {
	WarehouseID int64
	ProductID   int64
	Status      Status
	Page        shared.Page
}

type RequestInput struct {
	ProductID       int64  `json:"product_id" validate:"required,gt=0"`
	FromWarehouseID int64  `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64  `json:"to_warehouse_id" validate:"required,gt=0"`
	Quantity        int64  `json:"quantity" validate:"required,gt=0"`
	Notes           string `json:"notes" validate:"max=500"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
