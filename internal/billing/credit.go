package billing

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// IssueCreditNote records an ISSUED credit note for a completed sales return. It runs on the
// caller's transaction.
func IssueCreditNote(ctx context.Context, tx CreditTx, actor shared.Actor, in CreditNoteInput) (CreditNote, error) {
	if !in.Amount.IsPositive() {
		return CreditNote{}, shared.NewValidationError("amount", "must be greater than 0")
	}
	number, err := docnumber.Next(ctx, tx, docnumber.CreditNote, in.WarehouseID, actor.At)
	if err != nil {
		return CreditNote{}, err
	}
	cn, err := tx.InsertCreditNote(ctx, CreditNote{
		Number:        number,
		CustomerID:    in.CustomerID,
		SalesReturnID: in.SalesReturnID,
		Amount:        in.Amount.Round(2),
		Status:        CreditIssued,
		CreatedAt:     actor.At,
		UpdatedAt:     actor.At,
	})
	if err != nil {
		return CreditNote{}, fmt.Errorf("insert credit note: %w", err)
	}
	err = shared.LogActivity(ctx, tx, actor, "credit_note.issued",
		fmt.Sprintf("Credit note %s issued for %s", cn.Number, cn.Amount.StringFixed(2)), cn.Ref(), nil,
		map[string]any{"status": string(cn.Status), "amount": cn.Amount.StringFixed(2), "sales_return_id": in.SalesReturnID})
	return cn, err
}

func setCreditStatus(ctx context.Context, tx CreditTx, actor shared.Actor, cn CreditNote, to CreditNoteStatus) error {
	if err := CreditNoteTransitions.Check("credit note "+cn.Number, cn.Status, to); err != nil {
		return err
	}
	if err := tx.UpdateCreditNoteStatus(ctx, cn.ID, to, actor.At); err != nil {
		return fmt.Errorf("update credit note status: %w", err)
	}
	return shared.LogActivity(ctx, tx, actor, "credit_note.status_changed",
		fmt.Sprintf("Credit note %s moved from %s to %s", cn.Number, cn.Status, to), cn.Ref(),
		map[string]any{"status": string(cn.Status)}, map[string]any{"status": string(to)})
}
