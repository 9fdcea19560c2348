// Package memdb is an in-memory stand-in for the PostgreSQL repositories. Transactions are
// serialized and roll back to a snapshot when the callback fails, which is enough to
// exercise the all-or-nothing workflow steps without a database.
package memdb

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/odyssey-erp/odyssey-distribution/internal/approvals"
	"github.com/odyssey-erp/odyssey-distribution/internal/billing"
	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/returns"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	_ "github.com/odyssey-erp/odyssey-distribution/internal/testing/guard"
	"github.com/odyssey-erp/odyssey-distribution/internal/transfer"
)

// ErrInjected is returned by a store call armed with FailOn.
var ErrInjected = errors.New("memdb: injected failure")

type state struct {
	nextID     map[string]int64
	warehouses map[int64]string
	stocks     map[int64]inventory.ProductStock
	movements  []inventory.Movement
	counters   map[string]int64
	approvals  map[int64]approvals.Approval
	quotations map[int64]quotations.Quotation
	orders     map[int64]orders.SalesOrder
	picking    map[int64]picking.PickingList
	deliveries map[int64]delivery.DeliveryOrder
	invoices   map[int64]billing.Invoice
	payments   map[int64]billing.Payment
	credits    map[int64]billing.CreditNote
	returns    map[int64]returns.SalesReturn
	transfers  map[int64]transfer.Transfer
	activities []shared.Activity
}

func newState() *state {
	return &state{
		nextID:     map[string]int64{},
		warehouses: map[int64]string{},
		stocks:     map[int64]inventory.ProductStock{},
		counters:   map[string]int64{},
		approvals:  map[int64]approvals.Approval{},
		quotations: map[int64]quotations.Quotation{},
		orders:     map[int64]orders.SalesOrder{},
		picking:    map[int64]picking.PickingList{},
		deliveries: map[int64]delivery.DeliveryOrder{},
		invoices:   map[int64]billing.Invoice{},
		payments:   map[int64]billing.Payment{},
		credits:    map[int64]billing.CreditNote{},
		returns:    map[int64]returns.SalesReturn{},
		transfers:  map[int64]transfer.Transfer{},
	}
}

// clone copies every table. Stored rows never share slices with callers, so copying the
// maps is a full snapshot.
func (s *state) clone() *state {
	return &state{
		nextID:     maps.Clone(s.nextID),
		warehouses: maps.Clone(s.warehouses),
		stocks:     maps.Clone(s.stocks),
		movements:  slices.Clone(s.movements),
		counters:   maps.Clone(s.counters),
		approvals:  maps.Clone(s.approvals),
		quotations: maps.Clone(s.quotations),
		orders:     maps.Clone(s.orders),
		picking:    maps.Clone(s.picking),
		deliveries: maps.Clone(s.deliveries),
		invoices:   maps.Clone(s.invoices),
		payments:   maps.Clone(s.payments),
		credits:    maps.Clone(s.credits),
		returns:    maps.Clone(s.returns),
		transfers:  maps.Clone(s.transfers),
		activities: slices.Clone(s.activities),
	}
}

func (s *state) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// DB holds every table in memory.
type DB struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
	fail map[string]error
}

// New returns an empty database.
func New() *DB {
	return &DB{st: newState(), fail: map[string]error{}}
}

// FailOn makes the next call of the named store method return err (ErrInjected when nil).
func (d *DB) FailOn(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	d.fail[method] = err
}

func (d *DB) injected(method string) error {
	if err, ok := d.fail[method]; ok {
		delete(d.fail, method)
		return err
	}
	return nil
}

// run executes fn as one transaction.
func (d *DB) run(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.txMu.Lock()
	defer d.txMu.Unlock()
	d.mu.Lock()
	snapshot := d.st.clone()
	d.mu.Unlock()
	if err := fn(&Tx{db: d}); err != nil {
		d.mu.Lock()
		d.st = snapshot
		d.mu.Unlock()
		return err
	}
	return nil
}

func (d *DB) read(fn func(*state)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.st)
}

// AddWarehouse registers a warehouse code and returns its id.
func (d *DB) AddWarehouse(code string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.st.id("warehouses")
	d.st.warehouses[id] = code
	return id
}

// SetStock seeds a stock row without writing a movement.
func (d *DB) SetStock(productID, warehouseID, quantity, reserved int64) inventory.ProductStock {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, s := range d.st.stocks {
		if s.ProductID == productID && s.WarehouseID == warehouseID {
			s.Quantity, s.ReservedQuantity = quantity, reserved
			d.st.stocks[id] = s
			return s
		}
	}
	s := inventory.ProductStock{ID: d.st.id("stocks"), ProductID: productID, WarehouseID: warehouseID, Quantity: quantity, ReservedQuantity: reserved}
	d.st.stocks[s.ID] = s
	return s
}

// Stock returns the row of a product in a warehouse, zero when absent.
func (d *DB) Stock(productID, warehouseID int64) inventory.ProductStock {
	var out inventory.ProductStock
	d.read(func(s *state) {
		for _, st := range s.stocks {
			if st.ProductID == productID && st.WarehouseID == warehouseID {
				out = st
			}
		}
	})
	return out
}

// Movements returns the whole ledger in insertion order.
func (d *DB) Movements() []inventory.Movement {
	var out []inventory.Movement
	d.read(func(s *state) { out = slices.Clone(s.movements) })
	return out
}

// Activities returns logged activity of subject.
func (d *DB) Activities(subject shared.Ref) []shared.Activity {
	var out []shared.Activity
	d.read(func(s *state) {
		for _, a := range s.activities {
			if a.Subject == subject {
				out = append(out, a)
			}
		}
	})
	return out
}

// Tx implements every domain Store on the shared state.
type Tx struct {
	db *DB
}

func (t *Tx) lock(method string) (*state, func(), error) {
	t.db.mu.Lock()
	if err := t.db.injected(method); err != nil {
		t.db.mu.Unlock()
		return nil, nil, err
	}
	return t.db.st, t.db.mu.Unlock, nil
}

// Inventory adapts the DB to inventory.RepositoryPort.
func (d *DB) Inventory() *InventoryRepo { return &InventoryRepo{d} }

// Quotations adapts the DB to quotations.RepositoryPort.
func (d *DB) Quotations() *QuotationRepo { return &QuotationRepo{d} }

// Orders adapts the DB to orders.RepositoryPort.
func (d *DB) Orders() *OrderRepo { return &OrderRepo{d} }

// Picking adapts the DB to picking.RepositoryPort.
func (d *DB) Picking() *PickingRepo { return &PickingRepo{d} }

// Delivery adapts the DB to delivery.RepositoryPort.
func (d *DB) Delivery() *DeliveryRepo { return &DeliveryRepo{d} }

// Billing adapts the DB to billing.RepositoryPort.
func (d *DB) Billing() *BillingRepo { return &BillingRepo{d} }

// Returns adapts the DB to returns.RepositoryPort.
func (d *DB) Returns() *ReturnRepo { return &ReturnRepo{d} }

// Transfers adapts the DB to transfer.RepositoryPort.
func (d *DB) Transfers() *TransferRepo { return &TransferRepo{d} }

type InventoryRepo struct{ db *DB }

func (r *InventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.db.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

type QuotationRepo struct{ db *DB }

func (r *QuotationRepo) WithTx(ctx context.Context, fn func(context.Context, quotations.TxRepository) error) error {
	return r.db.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

type OrderRepo struct{ db *DB }

func (r *OrderRepo) WithTx(ctx context.Context, fn func(context.Context, orders.TxRepository) error) error {
	return r.db.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

type PickingRepo struct{ db *DB }

func (r *PickingRepo) WithTx(ctx context.Context, fn func(context.Context, picking.TxRepository) error) error {
	return r.db.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

type DeliveryRepo struct{ db *DB }

func (r *DeliveryRepo) WithTx(ctx context.Context, fn func(context.Context, delivery.TxRepository) error) error {
	return r.db.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

type BillingRepo struct{ db *DB }

func (r *BillingRepo) WithTx(ctx context.Context, fn func(context.Context, billing.TxRepository) error) error {
	return r.db.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

type ReturnRepo struct{ db *DB }

func (r *ReturnRepo) WithTx(ctx context.Context, fn func(context.Context, returns.TxRepository) error) error {
	return r.db.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

type TransferRepo struct{ db *DB }

func (r *TransferRepo) WithTx(ctx context.Context, fn func(context.Context, transfer.TxRepository) error) error {
	return r.db.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}
