package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	*StockStore
	*shared.ActivityLogger
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{StockStore: NewStore(tx), ActivityLogger: shared.NewActivityLogger(tx)})
	})
}

// ListStock returns stock rows matching filter and the total count.
func (r *Repository) ListStock(ctx context.Context, filter StockFilter) ([]ProductStock, int, error) {
	where, args := stockWhere(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM product_stocks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+stockColumns+` FROM product_stocks`+where+
		fmt.Sprintf(" ORDER BY product_id, warehouse_id LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []ProductStock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// GetStock loads one stock row without locking.
func (r *Repository) GetStock(ctx context.Context, productID, warehouseID int64) (ProductStock, error) {
	s, err := scanStock(r.pool.QueryRow(ctx, `SELECT `+stockColumns+` FROM product_stocks WHERE product_id=$1 AND warehouse_id=$2`, productID, warehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductStock{}, ErrStockNotFound
		}
		return ProductStock{}, err
	}
	return s, nil
}

// ListMovements returns ledger rows oldest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProductID > 0 {
		add("product_id = $%d", filter.ProductID)
	}
	if filter.WarehouseID > 0 {
		add("warehouse_id = $%d", filter.WarehouseID)
	}
	if !filter.Reference.IsZero() {
		add("ref_kind = $%d", string(filter.Reference.Kind))
		add("ref_id = $%d", filter.Reference.ID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	query := `SELECT ` + movementColumns + ` FROM stock_movements`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// StockStore implements Store on a pool or transaction.
type StockStore struct {
	db db.DBTX
}

// NewStore binds the ledger store to conn. Locking methods only hold their locks when conn
// is a transaction.
func NewStore(conn db.DBTX) *StockStore {
	return &StockStore{db: conn}
}

const stockColumns = `id, product_id, warehouse_id, quantity, reserved_quantity, updated_at`

const movementColumns = `id, product_id, warehouse_id, movement_type, quantity_change, reserved_change,
previous_quantity, new_quantity, ref_kind, ref_id, note, actor_id, created_at`

// LockProductStocks implements Store.
func (s *StockStore) LockProductStocks(ctx context.Context, productID int64) ([]ProductStock, error) {
	rows, err := s.db.Query(ctx, `SELECT `+stockColumns+` FROM product_stocks WHERE product_id=$1 ORDER BY id FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductStock
	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// LockStock implements Store.
func (s *StockStore) LockStock(ctx context.Context, productID, warehouseID int64) (ProductStock, error) {
	st, err := scanStock(s.db.QueryRow(ctx, `SELECT `+stockColumns+` FROM product_stocks WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`, productID, warehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductStock{}, fmt.Errorf("product %d warehouse %d: %w", productID, warehouseID, ErrStockNotFound)
		}
		return ProductStock{}, err
	}
	return st, nil
}

// EnsureStock implements Store.
func (s *StockStore) EnsureStock(ctx context.Context, productID, warehouseID int64) (ProductStock, error) {
	_, err := s.db.Exec(ctx, `INSERT INTO product_stocks (product_id, warehouse_id, quantity, reserved_quantity, updated_at)
VALUES ($1, $2, 0, 0, NOW()) ON CONFLICT (product_id, warehouse_id) DO NOTHING`, productID, warehouseID)
	if err != nil {
		return ProductStock{}, err
	}
	return s.LockStock(ctx, productID, warehouseID)
}

// TryReserve implements Store with a single conditional UPDATE.
func (s *StockStore) TryReserve(ctx context.Context, stockID, qty int64) (ProductStock, bool, error) {
	st, err := scanStock(s.db.QueryRow(ctx, `UPDATE product_stocks
SET reserved_quantity = reserved_quantity + $2, updated_at = NOW()
WHERE id = $1 AND quantity - reserved_quantity >= $2
RETURNING `+stockColumns, stockID, qty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductStock{}, false, nil
		}
		return ProductStock{}, false, err
	}
	return st, true, nil
}

// ApplyChange implements Store with a single conditional UPDATE.
func (s *StockStore) ApplyChange(ctx context.Context, stockID, quantityDelta, reservedDelta int64) (ProductStock, bool, error) {
	st, err := scanStock(s.db.QueryRow(ctx, `UPDATE product_stocks
SET quantity = quantity + $2, reserved_quantity = reserved_quantity + $3, updated_at = NOW()
WHERE id = $1
  AND quantity + $2 >= 0
  AND reserved_quantity + $3 >= 0
  AND reserved_quantity + $3 <= quantity + $2
RETURNING `+stockColumns, stockID, quantityDelta, reservedDelta))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsCheckViolation(err) {
			return ProductStock{}, false, nil
		}
		return ProductStock{}, false, err
	}
	return st, true, nil
}

// InsertMovement implements Store.
func (s *StockStore) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO stock_movements (product_id, warehouse_id, movement_type, quantity_change, reserved_change,
previous_quantity, new_quantity, ref_kind, ref_id, note, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		m.ProductID, m.WarehouseID, string(m.Type), m.QuantityChange, m.ReservedChange,
		m.PreviousQuantity, m.NewQuantity, string(m.Reference.Kind), m.Reference.ID, m.Note, m.ActorID, m.CreatedAt).Scan(&m.ID)
	return m, err
}

func stockWhere(filter StockFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.WarehouseID > 0 {
		args = append(args, filter.WarehouseID)
		conds = append(conds, fmt.Sprintf("warehouse_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanStock(row pgx.Row) (ProductStock, error) {
	var s ProductStock
	err := row.Scan(&s.ID, &s.ProductID, &s.WarehouseID, &s.Quantity, &s.ReservedQuantity, &s.UpdatedAt)
	return s, err
}

func scanMovement(row pgx.Row) (Movement, error) {
	var (
		m    Movement
		kind string
		typ  string
	)
	err := row.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &typ, &m.QuantityChange, &m.ReservedChange,
		&m.PreviousQuantity, &m.NewQuantity, &kind, &m.Reference.ID, &m.Note, &m.ActorID, &m.CreatedAt)
	m.Type = MovementType(typ)
	m.Reference.Kind = shared.RefKind(kind)
	return m, err
}
