package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-distribution/internal/docnumber"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// RecordPayment books a payment of 0 < amount <= outstanding balance. A CREDIT_NOTE
// payment consumes an ISSUED note that covers the amount.
func (s *Service) RecordPayment(ctx context.Context, actor shared.Actor, invoiceID int64, req PaymentRequest) (Payment, error) {
	verr := &shared.ValidationError{}
	if !req.Amount.IsPositive() {
		verr.Add("amount", "must be greater than 0")
	}
	if !req.Method.Valid() {
		verr.Add("method", "must be CASH, TRANSFER or CREDIT_NOTE")
	}
	if req.Method == MethodCreditNote && req.CreditNoteID == nil {
		verr.Add("credit_note_id", "is required for credit note payments")
	}
	if req.Method != MethodCreditNote && req.CreditNoteID != nil {
		verr.Add("credit_note_id", "is only allowed for credit note payments")
	}
	if err := verr.OrNil(); err != nil {
		return Payment{}, err
	}
	var (
		p      Payment
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		paid, err := tx.PaidAmount(ctx, inv.ID)
		if err != nil {
			return err
		}
		if outstanding := inv.Total.Sub(paid); req.Amount.Round(2).GreaterThan(outstanding) {
			return fmt.Errorf("%w: outstanding %s, payment %s", ErrOverpayment, outstanding.StringFixed(2), req.Amount.StringFixed(2))
		}
		if req.Method == MethodCreditNote {
			if err := useCreditNote(ctx, tx, actor, inv, *req.CreditNoteID, req); err != nil {
				return err
			}
		}
		number, err := docnumber.Next(ctx, tx, docnumber.Payment, inv.WarehouseID, actor.At)
		if err != nil {
			return err
		}
		paidAt := actor.At
		if req.PaidAt != nil {
			paidAt = *req.PaidAt
		}
		p, err = tx.InsertPayment(ctx, Payment{
			Number:       number,
			InvoiceID:    inv.ID,
			Amount:       req.Amount.Round(2),
			Method:       req.Method,
			CreditNoteID: req.CreditNoteID,
			Reference:    req.Reference,
			PaidAt:       paidAt,
			CreatedBy:    actor.UserID,
			CreatedAt:    actor.At,
		})
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		if err := shared.LogActivity(ctx, tx, actor, "payment.recorded",
			fmt.Sprintf("Payment %s of %s recorded on %s", p.Number, p.Amount.StringFixed(2), inv.Number), inv.Ref(), nil,
			map[string]any{"payment_id": p.ID, "amount": p.Amount.StringFixed(2), "method": string(p.Method)}); err != nil {
			return err
		}
		_, err = recompute(ctx, tx, actor, inv, &outbox)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	s.logger.Info("payment recorded", slog.Int64("invoice_id", invoiceID), slog.Int64("payment_id", p.ID))
	return p, nil
}

func useCreditNote(ctx context.Context, tx TxRepository, actor shared.Actor, inv Invoice, creditNoteID int64, req PaymentRequest) error {
	cn, err := tx.GetCreditNoteForUpdate(ctx, creditNoteID)
	if err != nil {
		return err
	}
	if cn.Status != CreditIssued {
		return ErrCreditNoteUnavailable
	}
	if cn.CustomerID != inv.CustomerID {
		return ErrCreditNoteCustomer
	}
	if cn.Amount.LessThan(req.Amount.Round(2)) {
		return fmt.Errorf("%w: note %s, payment %s", ErrCreditNoteTooSmall, cn.Amount.StringFixed(2), req.Amount.StringFixed(2))
	}
	return setCreditStatus(ctx, tx, actor, cn, CreditUsed)
}

// UpdatePayment changes the amount, reference or date of a payment and recomputes the
// invoice status.
func (s *Service) UpdatePayment(ctx context.Context, actor shared.Actor, paymentID int64, req UpdatePaymentRequest) (Payment, error) {
	if !req.Amount.IsPositive() {
		return Payment{}, shared.NewValidationError("amount", "must be greater than 0")
	}
	var (
		p      Payment
		outbox shared.Outbox
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		inv, err := tx.GetInvoiceForUpdate(ctx, current.InvoiceID)
		if err != nil {
			return err
		}
		paid, err := tx.PaidAmount(ctx, inv.ID)
		if err != nil {
			return err
		}
		amount := req.Amount.Round(2)
		if paid.Sub(current.Amount).Add(amount).GreaterThan(inv.Total) {
			return fmt.Errorf("%w: outstanding %s, payment %s", ErrOverpayment, inv.Total.Sub(paid).Add(current.Amount).StringFixed(2), amount.StringFixed(2))
		}
		if current.Method == MethodCreditNote && current.CreditNoteID != nil {
			cn, err := tx.GetCreditNoteForUpdate(ctx, *current.CreditNoteID)
			if err != nil {
				return err
			}
			if cn.Amount.LessThan(amount) {
				return fmt.Errorf("%w: note %s, payment %s", ErrCreditNoteTooSmall, cn.Amount.StringFixed(2), amount.StringFixed(2))
			}
		}
		before := current.Amount
		current.Amount = amount
		if req.Reference != nil {
			current.Reference = *req.Reference
		}
		if req.PaidAt != nil {
			current.PaidAt = *req.PaidAt
		}
		if err := tx.UpdatePayment(ctx, current); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		p = current
		if err := shared.LogActivity(ctx, tx, actor, "payment.updated",
			fmt.Sprintf("Payment %s on %s updated", p.Number, inv.Number), inv.Ref(),
			map[string]any{"payment_id": p.ID, "amount": before.StringFixed(2)},
			map[string]any{"payment_id": p.ID, "amount": p.Amount.StringFixed(2)}); err != nil {
			return err
		}
		_, err = recompute(ctx, tx, actor, inv, &outbox)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	return p, nil
}

// DeletePayment removes a payment, restoring a consumed credit note to ISSUED.
func (s *Service) DeletePayment(ctx context.Context, actor shared.Actor, paymentID int64) error {
	var outbox shared.Outbox
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		inv, err := tx.GetInvoiceForUpdate(ctx, p.InvoiceID)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, p.ID); err != nil {
			return err
		}
		if p.Method == MethodCreditNote && p.CreditNoteID != nil {
			cn, err := tx.GetCreditNoteForUpdate(ctx, *p.CreditNoteID)
			if err != nil {
				return err
			}
			if err := setCreditStatus(ctx, tx, actor, cn, CreditIssued); err != nil {
				return err
			}
		}
		if err := shared.LogActivity(ctx, tx, actor, "payment.deleted",
			fmt.Sprintf("Payment %s on %s deleted", p.Number, inv.Number), inv.Ref(),
			map[string]any{"payment_id": p.ID, "amount": p.Amount.StringFixed(2)}, nil); err != nil {
			return err
		}
		_, err = recompute(ctx, tx, actor, inv, &outbox)
		return err
	})
	if err != nil {
		return err
	}
	outbox.Flush(ctx, s.notifier, s.logger)
	return nil
}
