package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// TransferStore implements Store on a pool or transaction.
type TransferStore struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *TransferStore {
	return &TransferStore{db: conn}
}

type txRepository struct {
	*TransferStore
	*picking.PickingStore
	*delivery.DeliveryStore
	*inventory.StockStore
	*docnumber.CounterStore
	*shared.ActivityLogger
}

// Repository provides PostgreSQL persistence for warehouse transfers.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			TransferStore:  NewStore(tx),
			PickingStore:   picking.NewStore(tx),
			DeliveryStore:  delivery.NewStore(tx),
			StockStore:     inventory.NewStore(tx),
			CounterStore:   docnumber.NewStore(tx),
			ActivityLogger: shared.NewActivityLogger(tx),
		})
	})
}

func (r *Repository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	return NewStore(r.pool).get(ctx, id, false)
}

// ListTransfers returns transfers newest first. WarehouseID matches either end.
func (r *Repository) ListTransfers(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.WarehouseID > 0 {
		args = append(args, filter.WarehouseID)
		conds = append(conds, fmt.Sprintf("(from_warehouse_id = $%d OR to_warehouse_id = $%d)", len(args), len(args)))
	}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouse_transfers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM warehouse_transfers`+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

const transferColumns = `id, number, product_id, from_warehouse_id, to_warehouse_id, quantity, status, picking_list_id,
delivery_order_id, notes, requested_by, created_at, updated_at`

func (s *TransferStore) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO warehouse_transfers (number, product_id, from_warehouse_id, to_warehouse_id, quantity, status,
notes, requested_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		t.Number, t.ProductID, t.FromWarehouseID, t.ToWarehouseID, t.Quantity, string(t.Status),
		t.Notes, t.RequestedBy, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
	if err != nil {
		if db.IsCheckViolation(err) {
			return Transfer{}, ErrSameWarehouse
		}
		return Transfer{}, err
	}
	return t, nil
}

func (s *TransferStore) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	return s.get(ctx, id, true)
}

func (s *TransferStore) SaveTransfer(ctx context.Context, t Transfer) error {
	tag, err := s.db.Exec(ctx, `UPDATE warehouse_transfers
SET status=$2, picking_list_id=$3, delivery_order_id=$4, notes=$5, updated_at=$6 WHERE id=$1`,
		t.ID, string(t.Status), db.NullInt(t.PickingListID), db.NullInt(t.DeliveryOrderID), t.Notes, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (s *TransferStore) get(ctx context.Context, id int64, lock bool) (Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM warehouse_transfers WHERE id=$1`
	if lock {
		query += " FOR UPDATE"
	}
	t, err := scanTransfer(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, fmt.Errorf("id %d: %w", id, ErrTransferNotFound)
		}
		return Transfer{}, err
	}
	return t, nil
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var (
		t      Transfer
		status string
	)
	err := row.Scan(&t.ID, &t.Number, &t.ProductID, &t.FromWarehouseID, &t.ToWarehouseID, &t.Quantity, &status,
		&t.PickingListID, &t.DeliveryOrderID, &t.Notes, &t.RequestedBy, &t.CreatedAt, &t.UpdatedAt)
	t.Status = Status(status)
	return t, err
}
