package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListStock(ctx context.Context, filter StockFilter) ([]ProductStock, int, error)
	GetStock(ctx context.Context, productID, warehouseID int64) (ProductStock, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// TxRepository exposes the ledger store and activity log bound to one transaction.
type TxRepository interface {
	Store
	shared.ActivityStore
}

// Service coordinates manual stock operations and ledger queries. Workflow modules call
// the ledger functions directly on their own transaction.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Adjust posts a manual stock correction.
func (s *Service) Adjust(ctx context.Context, actor shared.Actor, in AdjustInput) (Movement, error) {
	var move Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		move, err = Adjust(ctx, tx, actor, in)
		if err != nil {
			return err
		}
		return shared.LogActivity(ctx, tx, actor, "stock.adjusted",
			fmt.Sprintf("Stock of product %d in warehouse %d adjusted by %d", in.ProductID, in.WarehouseID, in.Delta),
			move.Reference,
			map[string]any{"quantity": move.PreviousQuantity},
			map[string]any{"quantity": move.NewQuantity, "type": string(move.Type), "reason": in.Reason})
	})
	if err != nil {
		return Movement{}, err
	}
	s.logger.Info("stock adjusted",
		slog.Int64("product_id", in.ProductID),
		slog.Int64("warehouse_id", in.WarehouseID),
		slog.Int64("delta", in.Delta),
		slog.String("type", string(move.Type)))
	return move, nil
}

// ListStock returns stock rows and the total count for pagination.
func (s *Service) ListStock(ctx context.Context, filter StockFilter) ([]ProductStock, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.ListStock(ctx, filter)
}

// ListMovements returns ledger rows oldest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.Limit <= 0 || filter.Limit > 5000 {
		filter.Limit = 5000
	}
	return s.repo.ListMovements(ctx, filter)
}

// Reconcile replays the movements of one stock row and compares them with the stored quantities.
func (s *Service) Reconcile(ctx context.Context, productID, warehouseID int64) (Reconciliation, error) {
	if productID <= 0 || warehouseID <= 0 {
		return Reconciliation{}, shared.NewValidationError("product_id", "product and warehouse are required")
	}
	stock, err := s.repo.GetStock(ctx, productID, warehouseID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return Reconciliation{}, err
	}
	moves, err := s.repo.ListMovements(ctx, MovementFilter{ProductID: productID, WarehouseID: warehouseID})
	if err != nil {
		return Reconciliation{}, err
	}
	rec := Reconciliation{
		ProductID:        productID,
		WarehouseID:      warehouseID,
		Quantity:         stock.Quantity,
		ReservedQuantity: stock.ReservedQuantity,
		Movements:        len(moves),
	}
	for _, m := range moves {
		rec.LedgerQuantity += m.QuantityChange
		rec.LedgerReserved += m.ReservedChange
	}
	rec.Consistent = rec.LedgerQuantity == rec.Quantity && rec.LedgerReserved == rec.ReservedQuantity
	if !rec.Consistent {
		s.logger.Warn("stock ledger mismatch",
			slog.Int64("product_id", productID),
			slog.Int64("warehouse_id", warehouseID),
			slog.Int64("quantity", rec.Quantity),
			slog.Int64("ledger_quantity", rec.LedgerQuantity),
			slog.Int64("reserved", rec.ReservedQuantity),
			slog.Int64("ledger_reserved", rec.LedgerReserved))
	}
	return rec, nil
}
