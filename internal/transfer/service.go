package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Store persists transfers inside the caller's transaction.
type Store interface {
	InsertTransfer(ctx context.Context, t Transfer) (Transfer, error)
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	// SaveTransfer writes status, linked documents, notes and updated_at.
	SaveTransfer(ctx context.Context, t Transfer) error
}

// TxRepository is everything a transfer step touches in one transaction.
type TxRepository interface {
	Store
	picking.TransferTx
	delivery.TransferTx
	inventory.Store
}

type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	ListTransfers(ctx context.Context, filter ListFilter) ([]Transfer, int, error)
}

type Service struct {
	repo     RepositoryPort
	notifier shared.Notifier
	logger   *slog.Logger
}

func NewService(repo RepositoryPort, notifier shared.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// Request records a REQUESTED transfer. Stock is not touched until approval.
func (s *Service) Request(ctx context.Context, actor shared.Actor, in RequestInput) (Transfer, error) {
	verr := &shared.ValidationError{}
	if in.ProductID <= 0 {
		verr.Add("product_id", "is required")
	}
	if in.FromWarehouseID <= 0 {
		verr.Add("from_warehouse_id", "is required")
	}
	if in.ToWarehouseID <= 0 {
		verr.Add("to_warehouse_id", "is required")
	}
	if in.Quantity <= 0 {
		verr.Add("quantity", "must be greater than 0")
	}
	if err := verr.OrNil(); err != nil {
		return Transfer{}, err
	}
	if in.FromWarehouseID == in.ToWarehouseID {
		return Transfer{}, ErrSameWarehouse
	}
	var (
		t      Transfer
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := docnumber.Next(ctx, tx, docnumber.WarehouseTransfer, in.FromWarehouseID, actor.At)
		if err != nil {
			return err
		}
		t, err = tx.InsertTransfer(ctx, Transfer{
			Number:          number,
			ProductID:       in.ProductID,
			FromWarehouseID: in.FromWarehouseID,
			ToWarehouseID:   in.ToWarehouseID,
			Quantity:        in.Quantity,
			Status:          StatusRequested,
			Notes:           in.Notes,
			RequestedBy:     actor.UserID,
			CreatedAt:       actor.At,
			UpdatedAt:       actor.At,
		})
		if err != nil {
			return fmt.Errorf("insert transfer: %w", err)
		}
		outbox.Add(shared.Notification{
			Role:     shared.RoleApprover,
			Message:  fmt.Sprintf("Warehouse transfer %s awaits approval", t.Number),
			Severity: shared.SeverityInfo,
			Link:     link(t.ID),
		})
		return shared.LogActivity(ctx, tx, actor, "warehouse_transfer.requested",
			fmt.Sprintf("Transfer %s requested: %d unit(s) of product %d", t.Number, t.Quantity, t.ProductID), t.Ref(), nil,
			map[string]any{"status": string(t.Status), "from_warehouse_id": t.FromWarehouseID, "to_warehouse_id": t.ToWarehouseID})
	})
	if err != nil {
		return Transfer{}, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	s.logger.Info("transfer requested", slog.Int64("id", t.ID), slog.String("number", t.Number))
	return t, nil
}

// Approve reserves the quantity at the source warehouse and opens a DRAFT picking list. When
// the source cannot cover it the transfer stays REQUESTED.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (Transfer, error) {
	return s.step(ctx, actor, id, StatusApproved, func(ctx context.Context, tx TxRepository, t *Transfer) error {
		if err := inventory.ReserveAt(ctx, tx, actor, inventory.MoveInput{
			ProductID:   t.ProductID,
			WarehouseID: t.FromWarehouseID,
			Quantity:    t.Quantity,
			Reference:   t.Ref(),
			Note:        "Transfer " + t.Number,
		}); err != nil {
			return err
		}
		pl, err := picking.CreateForTransfer(ctx, tx, actor, picking.TransferPick{
			TransferID:  t.ID,
			WarehouseID: t.FromWarehouseID,
			ProductID:   t.ProductID,
			Quantity:    t.Quantity,
		})
		if err != nil {
			return err
		}
		t.PickingListID = &pl.ID
		return nil
	})
}

// Deliver issues the reserved stock from the source and ships a delivery order.
func (s *Service) Deliver(ctx context.Context, actor shared.Actor, id int64) (Transfer, error) {
	return s.step(ctx, actor, id, StatusInTransit, func(ctx context.Context, tx TxRepository, t *Transfer) error {
		if _, err := inventory.Deduct(ctx, tx, actor, inventory.DeductInput{
			MoveInput: inventory.MoveInput{
				ProductID:   t.ProductID,
				WarehouseID: t.FromWarehouseID,
				Quantity:    t.Quantity,
				Reference:   t.Ref(),
				Note:        "Transfer " + t.Number,
			},
			Reserved: t.Quantity,
			Type:     inventory.MovementTransferOut,
		}); err != nil {
			return err
		}
		if t.PickingListID != nil {
			if _, err := picking.CompleteForTransfer(ctx, tx, actor, *t.PickingListID); err != nil {
				return err
			}
		}
		do, err := delivery.CreateForTransfer(ctx, tx, actor, delivery.TransferShipment{
			TransferID:    t.ID,
			PickingListID: t.PickingListID,
			WarehouseID:   t.FromWarehouseID,
			ProductID:     t.ProductID,
			Quantity:      t.Quantity,
		})
		if err != nil {
			return err
		}
		t.DeliveryOrderID = &do.ID
		return nil
	})
}

// Receive books the goods into the destination warehouse and closes the delivery order.
func (s *Service) Receive(ctx context.Context, actor shared.Actor, id int64) (Transfer, error) {
	return s.step(ctx, actor, id, StatusReceived, func(ctx context.Context, tx TxRepository, t *Transfer) error {
		if _, err := inventory.Receive(ctx, tx, actor, inventory.MovementTransferIn, inventory.MoveInput{
			ProductID:   t.ProductID,
			WarehouseID: t.ToWarehouseID,
			Quantity:    t.Quantity,
			Reference:   t.Ref(),
			Note:        "Transfer " + t.Number,
		}); err != nil {
			return err
		}
		if t.DeliveryOrderID == nil {
			return nil
		}
		_, err := delivery.DeliverForTransfer(ctx, tx, actor, *t.DeliveryOrderID)
		return err
	})
}

// Cancel voids a REQUESTED or APPROVED transfer, releasing an approved reservation.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, req CancelRequest) (Transfer, error) {
	return s.step(ctx, actor, id, StatusCancelled, func(ctx context.Context, tx TxRepository, t *Transfer) error {
		if req.Reason != "" {
			t.Notes = req.Reason
		}
		if t.Status != StatusApproved {
			return nil
		}
		if _, err := inventory.Release(ctx, tx, actor, inventory.MoveInput{
			ProductID:   t.ProductID,
			WarehouseID: t.FromWarehouseID,
			Quantity:    t.Quantity,
			Reference:   t.Ref(),
			Note:        "Transfer " + t.Number + " cancelled",
		}); err != nil {
			return err
		}
		if t.PickingListID == nil {
			return nil
		}
		return picking.CancelForTransfer(ctx, tx, actor, *t.PickingListID)
	})
}

func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.repo.ListTransfers(ctx, filter)
}

// step locks the transfer, checks the move to "to", runs fn and persists the result. fn sees
// the transfer in its current status.
func (s *Service) step(ctx context.Context, actor shared.Actor, id int64, to Status, fn func(context.Context, TxRepository, *Transfer) error) (Transfer, error) {
	var t Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := Transitions.Check("transfer "+current.Number, current.Status, to); err != nil {
			return err
		}
		if err := fn(ctx, tx, &current); err != nil {
			return err
		}
		from := current.Status
		current.Status = to
		current.UpdatedAt = actor.At
		if err := tx.SaveTransfer(ctx, current); err != nil {
			return fmt.Errorf("save transfer: %w", err)
		}
		t = current
		return shared.LogActivity(ctx, tx, actor, "warehouse_transfer.status_changed",
			fmt.Sprintf("Transfer %s moved from %s to %s", t.Number, from, to), t.Ref(),
			map[string]any{"status": string(from)}, map[string]any{"status": string(to)})
	})
	if err != nil {
		return Transfer{}, err
	}
	s.notify(ctx, t)
	s.logger.Info("transfer status changed", slog.Int64("id", t.ID), slog.String("status", string(t.Status)))
	return t, nil
}

func (s *Service) notify(ctx context.Context, t Transfer) {
	var outbox shared.Outbox
	outbox.Add(shared.Notification{
		UserID:   t.RequestedBy,
		Message:  fmt.Sprintf("Warehouse transfer %s is %s", t.Number, t.Status),
		Severity: severityFor(t.Status),
		Link:     link(t.ID),
	})
	outbox.Flush(ctx, s.notifier, s.logger)
}

func severityFor(status Status) shared.Severity {
	switch status {
	case StatusCancelled:
		return shared.SeverityWarning
	case StatusReceived:
		return shared.SeveritySuccess
	}
	return shared.SeverityInfo
}

func link(id int64) string {
	return "/api/warehouse-transfers/" + strconv.FormatInt(id, 10)
}
