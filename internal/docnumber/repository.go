package docnumber

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// CounterStore implements Store on PostgreSQL.
type CounterStore struct {
	db db.DBTX
}

// NewStore binds the store to a pool or transaction.
func NewStore(conn db.DBTX) *CounterStore {
	return &CounterStore{db: conn}
}

// Increment upserts the counter row. The row lock taken by ON CONFLICT DO UPDATE is held
// until the surrounding transaction ends, so concurrent issuers serialize per scope.
func (s *CounterStore) Increment(ctx context.Context, docType DocType, warehouseID int64, period string) (int64, error) {
	var value int64
	err := s.db.QueryRow(ctx, `INSERT INTO document_counters (doc_type, warehouse_id, period, last_value)
VALUES ($1, $2, $3, 1)
ON CONFLICT (doc_type, warehouse_id, period) DO UPDATE SET last_value = document_counters.last_value + 1
RETURNING last_value`, string(docType), warehouseID, period).Scan(&value)
	return value, err
}

// WarehouseCode resolves the short warehouse code used in numbers.
func (s *CounterStore) WarehouseCode(ctx context.Context, warehouseID int64) (string, error) {
	var code string
	err := s.db.QueryRow(ctx, `SELECT code FROM warehouses WHERE id=$1`, warehouseID).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("warehouse %d: %w", warehouseID, shared.ErrNotFound)
		}
		return "", err
	}
	return code, nil
}
