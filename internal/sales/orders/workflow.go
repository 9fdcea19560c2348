package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Store persists sales orders inside the caller's transaction.
type Store interface {
	// InsertSalesOrder stores header and items and returns them with IDs assigned.
	InsertSalesOrder(ctx context.Context, so SalesOrder) (SalesOrder, error)
	// GetSalesOrderForUpdate loads the order with items and allocations, locking the header.
	GetSalesOrderForUpdate(ctx context.Context, id int64) (SalesOrder, error)
	UpdateSalesOrderStatus(ctx context.Context, id int64, status Status, notes string, at time.Time) error
	UpdateAllocations(ctx context.Context, itemID int64, allocations []inventory.Allocation) error
	// CancelOpenPickingLists cancels non-terminal picking lists of the order.
	CancelOpenPickingLists(ctx context.Context, salesOrderID int64, at time.Time) error
	// CancelOpenDeliveryOrders cancels PREPARING and READY delivery orders of the order.
	CancelOpenDeliveryOrders(ctx context.Context, salesOrderID int64, at time.Time) error
}

// TxRepository is everything a sales order step touches in one transaction.
type TxRepository interface {
	Store
	inventory.Store
	docnumber.Store
	shared.ActivityStore
}

// Place prices, numbers and stores a PENDING order and reserves stock for every line.
// Quotation conversion calls it inside its own transaction.
func Place(ctx context.Context, tx TxRepository, actor shared.Actor, req CreateRequest) (SalesOrder, error) {
	if err := validateCreate(req); err != nil {
		return SalesOrder{}, err
	}
	number, err := docnumber.Next(ctx, tx, docnumber.SalesOrder, req.WarehouseID, actor.At)
	if err != nil {
		return SalesOrder{}, err
	}
	so := SalesOrder{
		Number:      number,
		CustomerID:  req.CustomerID,
		WarehouseID: req.WarehouseID,
		QuotationID: req.QuotationID,
		Status:      StatusPending,
		Notes:       req.Notes,
		CreatedBy:   actor.UserID,
		CreatedAt:   actor.At,
		UpdatedAt:   actor.At,
	}
	lines := make([]pricing.LineTotals, 0, len(req.Items))
	for _, in := range req.Items {
		item := Item{
			ProductID:       in.ProductID,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxPercent:      in.TaxPercent,
		}
		lt := pricing.CalculateLine(item.Line())
		item.Discount, item.Tax, item.LineTotal = lt.Discount, lt.Tax, lt.Total
		lines = append(lines, lt)
		so.Items = append(so.Items, item)
	}
	so.Totals = pricing.Sum(lines)

	so, err = tx.InsertSalesOrder(ctx, so)
	if err != nil {
		return SalesOrder{}, fmt.Errorf("insert sales order: %w", err)
	}
	for i, item := range so.Items {
		allocations, err := inventory.Reserve(ctx, tx, actor, inventory.ReserveInput{
			ProductID:            item.ProductID,
			Quantity:             item.Quantity,
			Reference:            so.Ref(),
			PreferredWarehouseID: so.WarehouseID,
		})
		if err != nil {
			return SalesOrder{}, fmt.Errorf("reserve product %d: %w", item.ProductID, err)
		}
		if err := tx.UpdateAllocations(ctx, item.ID, allocations); err != nil {
			return SalesOrder{}, fmt.Errorf("save allocations: %w", err)
		}
		so.Items[i].Allocations = allocations
	}
	err = shared.LogActivity(ctx, tx, actor, "sales_order.created",
		fmt.Sprintf("Sales order %s created", so.Number), so.Ref(), nil,
		map[string]any{"status": string(so.Status), "total": so.Total.StringFixed(2)})
	if err != nil {
		return SalesOrder{}, err
	}
	return so, nil
}

// Advance moves an order along its state machine and logs the change.
func Advance(ctx context.Context, tx Store, activity shared.ActivityStore, actor shared.Actor, id int64, to Status) (SalesOrder, error) {
	so, err := tx.GetSalesOrderForUpdate(ctx, id)
	if err != nil {
		return SalesOrder{}, err
	}
	return advanceLoaded(ctx, tx, activity, actor, so, to, "")
}

func advanceLoaded(ctx context.Context, tx Store, activity shared.ActivityStore, actor shared.Actor, so SalesOrder, to Status, note string) (SalesOrder, error) {
	if err := Transitions.Check("sales order "+so.Number, so.Status, to); err != nil {
		return SalesOrder{}, err
	}
	from := so.Status
	notes := so.Notes
	if note != "" {
		notes = note
	}
	if err := tx.UpdateSalesOrderStatus(ctx, so.ID, to, notes, actor.At); err != nil {
		return SalesOrder{}, fmt.Errorf("update sales order status: %w", err)
	}
	so.Status = to
	so.Notes = notes
	so.UpdatedAt = actor.At
	err := shared.LogActivity(ctx, activity, actor, "sales_order.status_changed",
		fmt.Sprintf("Sales order %s moved from %s to %s", so.Number, from, to), so.Ref(),
		map[string]any{"status": string(from)}, map[string]any{"status": string(to)})
	return so, err
}

// ReleaseAll returns every outstanding allocation of the order to available stock.
func ReleaseAll(ctx context.Context, tx TxRepository, actor shared.Actor, so SalesOrder, ref shared.Ref) error {
	for i, item := range so.Items {
		for _, a := range item.Allocations {
			if a.Quantity <= 0 {
				continue
			}
			_, err := inventory.Release(ctx, tx, actor, inventory.MoveInput{
				ProductID:   item.ProductID,
				WarehouseID: a.WarehouseID,
				Quantity:    a.Quantity,
				Reference:   ref,
				Note:        "release " + so.Number,
			})
			if err != nil {
				return fmt.Errorf("release product %d: %w", item.ProductID, err)
			}
		}
		if len(item.Allocations) > 0 {
			if err := tx.UpdateAllocations(ctx, item.ID, nil); err != nil {
				return err
			}
			so.Items[i].Allocations = nil
		}
	}
	return nil
}

// ShippedLine is a quantity of a product leaving on a delivery order.
type ShippedLine struct {
	ProductID int64
	Quantity  int64
}

// Ship deducts shipped quantities against the order's allocations, falling back to the
// delivery warehouse for anything beyond the reservation. Reservations left after the
// shipment are released so the order holds no stock once shipped.
func Ship(ctx context.Context, tx TxRepository, actor shared.Actor, so SalesOrder, warehouseID int64, lines []ShippedLine, ref shared.Ref) ([]inventory.Movement, error) {
	remaining := make(map[int64]int64, len(lines))
	for _, l := range lines {
		remaining[l.ProductID] += l.Quantity
	}
	var moves []inventory.Movement
	deduct := func(productID, warehouse, qty, reserved int64) error {
		m, err := inventory.Deduct(ctx, tx, actor, inventory.DeductInput{
			MoveInput: inventory.MoveInput{ProductID: productID, WarehouseID: warehouse, Quantity: qty, Reference: ref, Note: "ship " + so.Number},
			Reserved:  reserved,
		})
		if err != nil {
			return fmt.Errorf("deduct product %d: %w", productID, err)
		}
		moves = append(moves, m)
		return nil
	}
	for _, item := range so.Items {
		for _, a := range item.Allocations {
			take := min(remaining[item.ProductID], a.Quantity)
			if take <= 0 {
				continue
			}
			if err := deduct(item.ProductID, a.WarehouseID, take, take); err != nil {
				return nil, err
			}
			remaining[item.ProductID] -= take
		}
	}
	for _, l := range lines {
		if qty := remaining[l.ProductID]; qty > 0 {
			if err := deduct(l.ProductID, warehouseID, qty, 0); err != nil {
				return nil, err
			}
			remaining[l.ProductID] = 0
		}
	}

	// What was not consumed above is still reserved; give it back.
	consumed := make(map[int64]int64, len(lines))
	for _, l := range lines {
		consumed[l.ProductID] += l.Quantity
	}
	for i, item := range so.Items {
		var left []inventory.Allocation
		for _, a := range item.Allocations {
			take := min(consumed[item.ProductID], a.Quantity)
			consumed[item.ProductID] -= take
			if rest := a.Quantity - take; rest > 0 {
				left = append(left, inventory.Allocation{WarehouseID: a.WarehouseID, Quantity: rest})
			}
		}
		so.Items[i].Allocations = left
	}
	if err := ReleaseAll(ctx, tx, actor, so, ref); err != nil {
		return nil, err
	}
	for _, item := range so.Items {
		if err := tx.UpdateAllocations(ctx, item.ID, nil); err != nil {
			return nil, err
		}
	}
	return moves, nil
}

func validateCreate(req CreateRequest) error {
	verr := &shared.ValidationError{}
	if req.CustomerID <= 0 {
		verr.Add("customer_id", "is required")
	}
	if req.WarehouseID <= 0 {
		verr.Add("warehouse_id", "is required")
	}
	if len(req.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, it := range req.Items {
		ValidateLine(verr, fmt.Sprintf("items.%d", i), it.ProductID, it.Quantity, it.UnitPrice, it.DiscountPercent, it.TaxPercent)
	}
	return verr.OrNil()
}

// ValidateLine checks one priced line and records failures under prefix.
func ValidateLine(verr *shared.ValidationError, prefix string, productID, qty int64, price, discount, tax decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	if productID <= 0 {
		verr.Add(prefix+".product_id", "is required")
	}
	if qty <= 0 {
		verr.Add(prefix+".quantity", "must be greater than 0")
	}
	if price.IsNegative() {
		verr.Add(prefix+".unit_price", "cannot be negative")
	}
	if discount.IsNegative() || discount.GreaterThan(hundred) {
		verr.Add(prefix+".discount_percent", "must be between 0 and 100")
	}
	if tax.IsNegative() || tax.GreaterThan(hundred) {
		verr.Add(prefix+".tax_percent", "must be between 0 and 100")
	}
}
