package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Store is the transaction scoped persistence the ledger runs on.
type Store interface {
	// LockProductStocks returns every stock row of a product, locked FOR UPDATE.
	LockProductStocks(ctx context.Context, productID int64) ([]ProductStock, error)
	// LockStock returns one stock row locked FOR UPDATE or ErrStockNotFound.
	LockStock(ctx context.Context, productID, warehouseID int64) (ProductStock, error)
	// EnsureStock returns the locked stock row, inserting an empty one when absent.
	EnsureStock(ctx context.Context, productID, warehouseID int64) (ProductStock, error)
	// TryReserve increments reserved_quantity only when quantity - reserved_quantity >= qty.
	// ok is false when no row matched.
	TryReserve(ctx context.Context, stockID, qty int64) (ProductStock, bool, error)
	// ApplyChange adds the deltas only when the result keeps 0 <= reserved <= quantity.
	ApplyChange(ctx context.Context, stockID, quantityDelta, reservedDelta int64) (ProductStock, bool, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

// Reserve holds quantity of a product across warehouses, most available first. Either the
// full quantity is reserved or an error is returned; callers roll back their transaction on
// error so no partial reservation survives.
func Reserve(ctx context.Context, store Store, actor shared.Actor, in ReserveInput) ([]Allocation, error) {
	if in.ProductID <= 0 {
		return nil, shared.NewValidationError("product_id", "is required")
	}
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	stocks, err := store.LockProductStocks(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("lock stock for product %d: %w", in.ProductID, err)
	}
	var total int64
	for _, s := range stocks {
		if s.Available() > 0 {
			total += s.Available()
		}
	}
	if total < in.Quantity {
		return nil, fmt.Errorf("%w: product %d needs %d, %d available", ErrInsufficientStock, in.ProductID, in.Quantity, total)
	}
	sort.SliceStable(stocks, func(i, j int) bool {
		if in.PreferredWarehouseID > 0 && (stocks[i].WarehouseID == in.PreferredWarehouseID) != (stocks[j].WarehouseID == in.PreferredWarehouseID) {
			return stocks[i].WarehouseID == in.PreferredWarehouseID
		}
		if stocks[i].Available() != stocks[j].Available() {
			return stocks[i].Available() > stocks[j].Available()
		}
		return stocks[i].WarehouseID < stocks[j].WarehouseID
	})

	remaining := in.Quantity
	var allocations []Allocation
	for _, s := range stocks {
		if remaining == 0 {
			break
		}
		take := min(remaining, s.Available())
		if take <= 0 {
			continue
		}
		if err := reserveRow(ctx, store, actor, s, take, in.Reference, ""); err != nil {
			return nil, err
		}
		allocations = append(allocations, Allocation{WarehouseID: s.WarehouseID, Quantity: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: product %d short by %d", ErrInsufficientStock, in.ProductID, remaining)
	}
	return allocations, nil
}

// ReserveAt holds quantity in one warehouse.
func ReserveAt(ctx context.Context, store Store, actor shared.Actor, in MoveInput) error {
	if err := validateMove(in); err != nil {
		return err
	}
	s, err := store.LockStock(ctx, in.ProductID, in.WarehouseID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return fmt.Errorf("%w: product %d has no stock in warehouse %d", ErrInsufficientStock, in.ProductID, in.WarehouseID)
		}
		return err
	}
	if s.Available() < in.Quantity {
		return fmt.Errorf("%w: product %d needs %d in warehouse %d, %d available", ErrInsufficientStock, in.ProductID, in.Quantity, in.WarehouseID, s.Available())
	}
	return reserveRow(ctx, store, actor, s, in.Quantity, in.Reference, in.Note)
}

func reserveRow(ctx context.Context, store Store, actor shared.Actor, s ProductStock, qty int64, ref shared.Ref, note string) error {
	updated, ok, err := store.TryReserve(ctx, s.ID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock %d: %w", s.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: product %d in warehouse %d changed concurrently", ErrInsufficientStock, s.ProductID, s.WarehouseID)
	}
	_, err = store.InsertMovement(ctx, Movement{
		ProductID:        s.ProductID,
		WarehouseID:      s.WarehouseID,
		Type:             MovementReservation,
		ReservedChange:   qty,
		PreviousQuantity: s.Quantity,
		NewQuantity:      updated.Quantity,
		Reference:        ref,
		Note:             note,
		ActorID:          actor.UserID,
		CreatedAt:        actor.At,
	})
	return err
}

// Release returns reserved quantity to available.
func Release(ctx context.Context, store Store, actor shared.Actor, in MoveInput) (Movement, error) {
	if err := validateMove(in); err != nil {
		return Movement{}, err
	}
	s, err := store.LockStock(ctx, in.ProductID, in.WarehouseID)
	if err != nil {
		return Movement{}, err
	}
	return apply(ctx, store, actor, s, 0, -in.Quantity, MovementRelease, in, ErrReservedExceedsOnHand)
}

// Deduct ships stock out. Quantity must cover the shipment; the reserved decrement is
// floored at zero and the movement records the actual change.
func Deduct(ctx context.Context, store Store, actor shared.Actor, in DeductInput) (Movement, error) {
	if err := validateMove(in.MoveInput); err != nil {
		return Movement{}, err
	}
	if in.Reserved < 0 {
		return Movement{}, shared.NewValidationError("reserved", "cannot be negative")
	}
	s, err := store.LockStock(ctx, in.ProductID, in.WarehouseID)
	if err != nil {
		return Movement{}, err
	}
	if s.Quantity < in.Quantity {
		return Movement{}, fmt.Errorf("%w: product %d needs %d in warehouse %d, %d on hand", ErrInsufficientStock, in.ProductID, in.Quantity, in.WarehouseID, s.Quantity)
	}
	typ := in.Type
	if typ == "" {
		typ = MovementOut
	}
	resDelta := -min(in.Reserved, s.ReservedQuantity)
	return apply(ctx, store, actor, s, -in.Quantity, resDelta, typ, in.MoveInput, ErrInsufficientStock)
}

// Receive adds on-hand quantity, creating the stock row when needed.
func Receive(ctx context.Context, store Store, actor shared.Actor, typ MovementType, in MoveInput) (Movement, error) {
	if err := validateMove(in); err != nil {
		return Movement{}, err
	}
	s, err := store.EnsureStock(ctx, in.ProductID, in.WarehouseID)
	if err != nil {
		return Movement{}, err
	}
	return apply(ctx, store, actor, s, in.Quantity, 0, typ, in, ErrReservedExceedsOnHand)
}

// Issue removes unreserved on-hand quantity.
func Issue(ctx context.Context, store Store, actor shared.Actor, typ MovementType, in MoveInput) (Movement, error) {
	if err := validateMove(in); err != nil {
		return Movement{}, err
	}
	s, err := store.LockStock(ctx, in.ProductID, in.WarehouseID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return Movement{}, fmt.Errorf("%w: product %d has no stock in warehouse %d", ErrInsufficientStock, in.ProductID, in.WarehouseID)
		}
		return Movement{}, err
	}
	return apply(ctx, store, actor, s, -in.Quantity, 0, typ, in, ErrInsufficientStock)
}

// Adjust applies a manual correction. It never clamps: a correction that would drop the
// quantity below zero or below the reserved quantity is rejected.
func Adjust(ctx context.Context, store Store, actor shared.Actor, in AdjustInput) (Movement, error) {
	if in.Delta == 0 {
		return Movement{}, shared.NewValidationError("delta", "must not be zero")
	}
	if in.Damage && in.Delta > 0 {
		return Movement{}, shared.NewValidationError("delta", "damage must reduce stock")
	}
	move := MoveInput{
		ProductID:   in.ProductID,
		WarehouseID: in.WarehouseID,
		Quantity:    abs(in.Delta),
		Reference:   in.Reference,
		Note:        in.Reason,
	}
	if move.Reference.IsZero() {
		move.Reference = shared.NewRef(shared.RefStockAdjustment, in.ProductID)
	}
	if err := validateMove(move); err != nil {
		return Movement{}, err
	}
	typ := MovementAdjustmentIn
	var (
		s   ProductStock
		err error
	)
	if in.Delta > 0 {
		s, err = store.EnsureStock(ctx, in.ProductID, in.WarehouseID)
	} else {
		typ = MovementAdjustmentOut
		if in.Damage {
			typ = MovementDamage
		}
		s, err = store.LockStock(ctx, in.ProductID, in.WarehouseID)
	}
	if err != nil {
		return Movement{}, err
	}
	if s.Quantity+in.Delta < s.ReservedQuantity {
		return Movement{}, fmt.Errorf("%w: on hand %d, reserved %d, delta %d", ErrReservedExceedsOnHand, s.Quantity, s.ReservedQuantity, in.Delta)
	}
	return apply(ctx, store, actor, s, in.Delta, 0, typ, move, ErrReservedExceedsOnHand)
}

func apply(ctx context.Context, store Store, actor shared.Actor, s ProductStock, qtyDelta, resDelta int64, typ MovementType, in MoveInput, rejected error) (Movement, error) {
	updated, ok, err := store.ApplyChange(ctx, s.ID, qtyDelta, resDelta)
	if err != nil {
		return Movement{}, fmt.Errorf("update stock %d: %w", s.ID, err)
	}
	if !ok {
		return Movement{}, fmt.Errorf("%w: product %d in warehouse %d (on hand %d, reserved %d)", rejected, s.ProductID, s.WarehouseID, s.Quantity, s.ReservedQuantity)
	}
	return store.InsertMovement(ctx, Movement{
		ProductID:        s.ProductID,
		WarehouseID:      s.WarehouseID,
		Type:             typ,
		QuantityChange:   qtyDelta,
		ReservedChange:   resDelta,
		PreviousQuantity: s.Quantity,
		NewQuantity:      updated.Quantity,
		Reference:        in.Reference,
		Note:             in.Note,
		ActorID:          actor.UserID,
		CreatedAt:        actor.At,
	})
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
