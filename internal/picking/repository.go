package picking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// PickingStore implements Store on a pool or transaction.
type PickingStore struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *PickingStore {
	return &PickingStore{db: conn}
}

type txRepository struct {
	*PickingStore
	*orders.OrderStore
	*docnumber.CounterStore
	*shared.ActivityLogger
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			PickingStore:   NewStore(tx),
			OrderStore:     orders.NewStore(tx),
			CounterStore:   docnumber.NewStore(tx),
			ActivityLogger: shared.NewActivityLogger(tx),
		})
	})
}

func (r *Repository) GetPickingList(ctx context.Context, id int64) (PickingList, error) {
	return NewStore(r.pool).load(ctx, id, false)
}

func (r *Repository) ListPickingLists(ctx context.Context, filter ListFilter) ([]PickingList, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.SalesOrderID > 0 {
		args = append(args, filter.SalesOrderID)
		conds = append(conds, fmt.Sprintf("sales_order_id = $%d", len(args)))
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM picking_lists`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+listColumns+` FROM picking_lists`+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []PickingList
	for rows.Next() {
		pl, err := scanList(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, pl)
	}
	return out, total, rows.Err()
}

const listColumns = `id, number, sales_order_id, transfer_id, warehouse_id, status, created_by, created_at, updated_at`

func (s *PickingStore) InsertPickingList(ctx context.Context, pl PickingList) (PickingList, error) {
	err := s.db.QueryRow(ctx, `INSERT INTO picking_lists (number, sales_order_id, transfer_id, warehouse_id, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		pl.Number, pl.SalesOrderID, pl.TransferID, pl.WarehouseID, string(pl.Status), pl.CreatedBy, pl.CreatedAt, pl.UpdatedAt).Scan(&pl.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return PickingList{}, ErrDuplicateList
		}
		return PickingList{}, err
	}
	for i := range pl.Items {
		it := &pl.Items[i]
		it.PickingListID = pl.ID
		if err := s.db.QueryRow(ctx, `INSERT INTO picking_list_items (picking_list_id, product_id, quantity_required, quantity_picked, status)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, pl.ID, it.ProductID, it.QuantityRequired, it.QuantityPicked, string(it.Status)).Scan(&it.ID); err != nil {
			return PickingList{}, fmt.Errorf("insert picking item: %w", err)
		}
	}
	return pl, nil
}

func (s *PickingStore) GetPickingListForUpdate(ctx context.Context, id int64) (PickingList, error) {
	return s.load(ctx, id, true)
}

func (s *PickingStore) HasOpenPickingList(ctx context.Context, salesOrderID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM picking_lists
WHERE sales_order_id=$1 AND status NOT IN ('COMPLETED', 'CANCELLED'))`, salesOrderID).Scan(&exists)
	return exists, err
}

func (s *PickingStore) SavePickingList(ctx context.Context, pl PickingList) error {
	tag, err := s.db.Exec(ctx, `UPDATE picking_lists SET status=$2, updated_at=$3 WHERE id=$1`, pl.ID, string(pl.Status), pl.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPickingListNotFound
	}
	for _, it := range pl.Items {
		if _, err := s.db.Exec(ctx, `UPDATE picking_list_items SET quantity_picked=$3, status=$4 WHERE id=$1 AND picking_list_id=$2`,
			it.ID, pl.ID, it.QuantityPicked, string(it.Status)); err != nil {
			return err
		}
	}
	return nil
}

func (s *PickingStore) DeletePickingList(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM picking_lists WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPickingListNotFound
	}
	return nil
}

func (s *PickingStore) load(ctx context.Context, id int64, lock bool) (PickingList, error) {
	query := `SELECT ` + listColumns + ` FROM picking_lists WHERE id=$1`
	if lock {
		query += " FOR UPDATE"
	}
	pl, err := scanList(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PickingList{}, fmt.Errorf("id %d: %w", id, ErrPickingListNotFound)
		}
		return PickingList{}, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, picking_list_id, product_id, quantity_required, quantity_picked, status
FROM picking_list_items WHERE picking_list_id=$1 ORDER BY id`, id)
	if err != nil {
		return PickingList{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it     Item
			status string
		)
		if err := rows.Scan(&it.ID, &it.PickingListID, &it.ProductID, &it.QuantityRequired, &it.QuantityPicked, &status); err != nil {
			return PickingList{}, err
		}
		it.Status = ItemStatus(status)
		pl.Items = append(pl.Items, it)
	}
	return pl, rows.Err()
}

func scanList(row pgx.Row) (PickingList, error) {
	var (
		pl     PickingList
		status string
	)
	err := row.Scan(&pl.ID, &pl.Number, &pl.SalesOrderID, &pl.TransferID, &pl.WarehouseID, &status, &pl.CreatedBy, &pl.CreatedAt, &pl.UpdatedAt)
	pl.Status = Status(status)
	return pl, err
}
