package picking

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// TransferPick describes the single line of a transfer's picking list.
type TransferPick struct {
	TransferID  int64
	WarehouseID int64
	ProductID   int64
	Quantity    int64
}

// CreateForTransfer opens a DRAFT list at the source warehouse of an approved transfer.
func CreateForTransfer(ctx context.Context, tx TransferTx, actor shared.Actor, in TransferPick) (PickingList, error) {
	if in.TransferID <= 0 || in.WarehouseID <= 0 || in.ProductID <= 0 || in.Quantity <= 0 {
		return PickingList{}, shared.NewValidationError("transfer", "transfer, warehouse, product and quantity are required")
	}
	number, err := docnumber.Next(ctx, tx, docnumber.PickingList, in.WarehouseID, actor.At)
	if err != nil {
		return PickingList{}, err
	}
	transferID := in.TransferID
	pl, err := tx.InsertPickingList(ctx, PickingList{
		Number:      number,
		TransferID:  &transferID,
		WarehouseID: in.WarehouseID,
		Status:      StatusDraft,
		CreatedBy:   actor.UserID,
		CreatedAt:   actor.At,
		UpdatedAt:   actor.At,
		Items:       []Item{{ProductID: in.ProductID, QuantityRequired: in.Quantity, Status: ItemPending}},
	})
	if err != nil {
		return PickingList{}, fmt.Errorf("insert picking list: %w", err)
	}
	err = shared.LogActivity(ctx, tx, actor, "picking_list.created",
		fmt.Sprintf("Picking list %s created for transfer", pl.Number), pl.Ref(), nil,
		map[string]any{"status": string(pl.Status), "transfer_id": in.TransferID})
	return pl, err
}

// CompleteForTransfer marks a transfer's list fully picked when the goods leave. A list
// already completed by hand is left as is.
func CompleteForTransfer(ctx context.Context, tx TransferTx, actor shared.Actor, id int64) (PickingList, error) {
	pl, err := tx.GetPickingListForUpdate(ctx, id)
	if err != nil {
		return PickingList{}, err
	}
	if pl.Status == StatusCompleted {
		return pl, nil
	}
	picks := make(map[int64]int64, len(pl.Items))
	for _, it := range pl.Items {
		picks[it.ID] = it.QuantityRequired
	}
	return applyPicks(ctx, tx, actor, pl, picks)
}

// CancelForTransfer cancels a transfer's list unless it is already terminal.
func CancelForTransfer(ctx context.Context, tx TransferTx, actor shared.Actor, id int64) error {
	pl, err := tx.GetPickingListForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if Transitions.Terminal(pl.Status) {
		return nil
	}
	from := pl.Status
	pl.Status = StatusCancelled
	pl.UpdatedAt = actor.At
	if err := tx.SavePickingList(ctx, pl); err != nil {
		return fmt.Errorf("save picking list: %w", err)
	}
	return shared.LogActivity(ctx, tx, actor, "picking_list.cancelled",
		fmt.Sprintf("Picking list %s cancelled", pl.Number), pl.Ref(),
		map[string]any{"status": string(from)}, map[string]any{"status": string(StatusCancelled)})
}
