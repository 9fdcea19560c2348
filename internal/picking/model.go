package picking

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Transitions is the picking list state machine. Picks are absolute, so a list can fall
// back to PENDING when every picked quantity is reset to zero.
var Transitions = shared.Transitions[Status]{
	StatusDraft:      {StatusPending, StatusInProgress, StatusCompleted, StatusCancelled},
	StatusPending:    {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusPending, StatusCompleted, StatusCancelled},
}

type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemPartial   ItemStatus = "PARTIAL"
	ItemCompleted ItemStatus = "COMPLETED"
)

var (
	ErrPickingListNotFound = fmt.Errorf("picking list: %w", shared.ErrNotFound)
	ErrDuplicateList       = fmt.Errorf("%w: sales order already has an open picking list", shared.ErrBusinessRule)
	ErrCompletedList       = fmt.Errorf("%w: completed picking lists cannot be changed", shared.ErrBusinessRule)
	ErrItemNotOnList       = fmt.Errorf("%w: item does not belong to this picking list", shared.ErrValidation)
	ErrTransferList        = fmt.Errorf("%w: picking list belongs to a warehouse transfer, cancel the transfer instead", shared.ErrBusinessRule)
)

type PickingList struct {
	ID           int64     `json:"id"`
	Number       string    `json:"number"`
	SalesOrderID *int64    `json:"sales_order_id,omitempty"`
	TransferID   *int64    `json:"transfer_id,omitempty"`
	WarehouseID  int64     `json:"warehouse_id"`
	Status       Status    `json:"status"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Items        []Item    `json:"items"`
}

func (p PickingList) Ref() shared.Ref {
	return shared.NewRef(shared.RefPickingList, p.ID)
}

type Item struct {
	ID               int64      `json:"id"`
	PickingListID    int64      `json:"picking_list_id"`
	ProductID        int64      `json:"product_id"`
	QuantityRequired int64      `json:"quantity_required"`
	QuantityPicked   int64      `json:"quantity_picked"`
	Status           ItemStatus `json:"status"`
}

// ItemStatusFor derives an item status from its quantities.
func ItemStatusFor(required, picked int64) ItemStatus {
	switch {
	case picked <= 0:
		return ItemPending
	case picked < required:
		return ItemPartial
	default:
		return ItemCompleted
	}
}

// ListStatusFor derives the list status from its items. A list with no item picked yet
// keeps a DRAFT status.
func ListStatusFor(current Status, items []Item) Status {
	if len(items) == 0 {
		return current
	}
	completed, pending := 0, 0
	for _, it := range items {
		switch it.Status {
		case ItemCompleted:
			completed++
		case ItemPending:
			pending++
		}
	}
	switch {
	case completed == len(items):
		return StatusCompleted
	case pending == len(items):
		if current == StatusDraft {
			return StatusDraft
		}
		return StatusPending
	default:
		return StatusInProgress
	}
}

type ListFilter struct {
	SalesOrderID int64
	Status       Status
	Page         shared.Page
}
