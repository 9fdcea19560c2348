// Package approvals records single-level approval decisions on documents.
package approvals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Status of an approval row.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Transitions lists the allowed decisions. Both decisions are terminal.
var Transitions = shared.Transitions[Status]{
	StatusPending: {StatusApproved, StatusRejected},
}

var (
	// ErrPendingExists indicates the subject already awaits a decision.
	ErrPendingExists = fmt.Errorf("%w: an approval is already pending for this document", shared.ErrBusinessRule)
	// ErrApprovalNotFound indicates no matching approval.
	ErrApprovalNotFound = fmt.Errorf("approval: %w", shared.ErrNotFound)
)

// Approval links a decision to a subject document.
type Approval struct {
	ID          int64      `json:"id"`
	Subject     shared.Ref `json:"subject"`
	Status      Status     `json:"status"`
	RequestedBy int64      `json:"requested_by"`
	ApproverID  *int64     `json:"approver_id,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

// Store persists approvals inside the caller's transaction.
type Store interface {
	InsertApproval(ctx context.Context, a Approval) (int64, error)
	// PendingApproval returns the PENDING approval of subject, locked, or ErrApprovalNotFound.
	PendingApproval(ctx context.Context, subject shared.Ref) (Approval, error)
	UpdateApproval(ctx context.Context, a Approval) error
}

// Request opens a PENDING approval for subject.
func Request(ctx context.Context, store Store, actor shared.Actor, subject shared.Ref, notes string) (Approval, error) {
	if subject.IsZero() {
		return Approval{}, shared.NewValidationError("subject", "is required")
	}
	_, err := store.PendingApproval(ctx, subject)
	switch {
	case err == nil:
		return Approval{}, ErrPendingExists
	case !errors.Is(err, shared.ErrNotFound):
		return Approval{}, err
	}
	a := Approval{
		Subject:     subject,
		Status:      StatusPending,
		RequestedBy: actor.UserID,
		Notes:       notes,
		RequestedAt: actor.At,
	}
	a.ID, err = store.InsertApproval(ctx, a)
	if err != nil {
		return Approval{}, fmt.Errorf("insert approval: %w", err)
	}
	return a, nil
}

// Decide flips the PENDING approval of subject to APPROVED or REJECTED. A subject with
// no pending approval yields ErrInvalidTransition and nothing is written.
func Decide(ctx context.Context, store Store, actor shared.Actor, subject shared.Ref, to Status, notes string) (Approval, error) {
	a, err := store.PendingApproval(ctx, subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Approval{}, fmt.Errorf("%w: %s has no pending approval", shared.ErrInvalidTransition, subject)
		}
		return Approval{}, err
	}
	if err := Transitions.Check("approval", a.Status, to); err != nil {
		return Approval{}, err
	}
	approver := actor.UserID
	decided := actor.At
	a.Status = to
	a.ApproverID = &approver
	a.DecidedAt = &decided
	if notes != "" {
		a.Notes = notes
	}
	if err := store.UpdateApproval(ctx, a); err != nil {
		return Approval{}, fmt.Errorf("update approval: %w", err)
	}
	return a, nil
}
