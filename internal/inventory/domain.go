package inventory

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// MovementType enumerates stock ledger movements.
type MovementType string

const (
	MovementIn            MovementType = "IN"
	MovementOut           MovementType = "OUT"
	MovementReservation   MovementType = "RESERVATION"
	MovementRelease       MovementType = "RELEASE"
	MovementAdjustmentIn  MovementType = "ADJUSTMENT_IN"
	MovementAdjustmentOut MovementType = "ADJUSTMENT_OUT"
	MovementDamage        MovementType = "DAMAGE"
	MovementTransferIn    MovementType = "TRANSFER_IN"
	MovementTransferOut   MovementType = "TRANSFER_OUT"
	MovementReturnIn      MovementType = "RETURN_IN"
)

var (
	// ErrInsufficientStock indicates available stock cannot cover the request.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", shared.ErrBusinessRule)
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = shared.NewValidationError("quantity", "must be greater than 0")
	// ErrStockNotFound indicates a missing product/warehouse stock row.
	ErrStockNotFound = fmt.Errorf("product stock: %w", shared.ErrNotFound)
	// ErrReservedExceedsOnHand indicates an adjustment that would leave reservations uncovered.
	ErrReservedExceedsOnHand = fmt.Errorf("%w: reserved quantity would exceed quantity on hand", shared.ErrBusinessRule)
)

// ProductStock is the per product per warehouse quantity pair.
type ProductStock struct {
	ID               int64     `json:"id"`
	ProductID        int64     `json:"product_id"`
	WarehouseID      int64     `json:"warehouse_id"`
	Quantity         int64     `json:"quantity"`
	ReservedQuantity int64     `json:"reserved_quantity"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available is the quantity free for new reservations.
func (s ProductStock) Available() int64 {
	return s.Quantity - s.ReservedQuantity
}

// Movement is an immutable ledger row.
type Movement struct {
	ID               int64        `json:"id"`
	ProductID        int64        `json:"product_id"`
	WarehouseID      int64        `json:"warehouse_id"`
	Type             MovementType `json:"type"`
	QuantityChange   int64        `json:"quantity_change"`
	ReservedChange   int64        `json:"reserved_change"`
	PreviousQuantity int64        `json:"previous_quantity"`
	NewQuantity      int64        `json:"new_quantity"`
	Reference        shared.Ref   `json:"reference"`
	Note             string       `json:"note,omitempty"`
	ActorID          int64        `json:"actor_id"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Allocation records how much of a reservation sits in one warehouse.
type Allocation struct {
	WarehouseID int64 `json:"warehouse_id"`
	Quantity    int64 `json:"quantity"`
}

// ReserveInput asks for quantity of a product across all warehouses. The preferred
// warehouse, when set, is drained first.
type ReserveInput struct {
	ProductID            int64
	Quantity             int64
	Reference            shared.Ref
	PreferredWarehouseID int64
}

// MoveInput describes a single warehouse ledger operation.
type MoveInput struct {
	ProductID   int64
	WarehouseID int64
	Quantity    int64
	Reference   shared.Ref
	Note        string
}

// DeductInput ships stock out of a warehouse, consuming Reserved of the document's own
// reservation. Type defaults to OUT.
type DeductInput struct {
	MoveInput
	Reserved int64
	Type     MovementType
}

// AdjustInput describes a manual correction. Delta may be negative.
type AdjustInput struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	Delta       int64  `json:"delta" validate:"required"`
	Reason      string `json:"reason" validate:"required"`
	Damage      bool   `json:"damage"`
	// Reference defaults to STOCK_ADJUSTMENT:<product_id> for manual corrections.
	Reference shared.Ref `json:"-"`
}

// StockFilter narrows stock listings.
type StockFilter struct {
	ProductID   int64
	WarehouseID int64
	Page        shared.Page
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID   int64
	WarehouseID int64
	Reference   shared.Ref
	From        time.Time
	To          time.Time
	Limit       int
}

// Reconciliation compares the stock row against a replay of its movements.
type Reconciliation struct {
	ProductID        int64 `json:"product_id"`
	WarehouseID      int64 `json:"warehouse_id"`
	Quantity         int64 `json:"quantity"`
	ReservedQuantity int64 `json:"reserved_quantity"`
	LedgerQuantity   int64 `json:"ledger_quantity"`
	LedgerReserved   int64 `json:"ledger_reserved"`
	Movements        int   `json:"movements"`
	Consistent       bool  `json:"consistent"`
}

func validateMove(in MoveInput) error {
	if in.ProductID <= 0 || in.WarehouseID <= 0 {
		return shared.NewValidationError("product_id", "product and warehouse are required")
	}
	if in.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
