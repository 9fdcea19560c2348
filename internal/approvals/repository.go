package approvals

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// ApprovalStore implements Store on PostgreSQL.
type ApprovalStore struct {
	db db.DBTX
}

// NewStore binds the store to a pool or transaction.
func NewStore(conn db.DBTX) *ApprovalStore {
	return &ApprovalStore{db: conn}
}

const approvalColumns = `id, subject_kind, subject_id, status, requested_by, approver_id, notes, requested_at, decided_at`

// InsertApproval implements Store. A concurrent pending row trips the partial unique index.
func (s *ApprovalStore) InsertApproval(ctx context.Context, a Approval) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO approvals (subject_kind, subject_id, status, requested_by, notes, requested_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(a.Subject.Kind), a.Subject.ID, string(a.Status), a.RequestedBy, a.Notes, a.RequestedAt).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, ErrPendingExists
	}
	return id, err
}

// PendingApproval implements Store.
func (s *ApprovalStore) PendingApproval(ctx context.Context, subject shared.Ref) (Approval, error) {
	a, err := scanApproval(s.db.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals
WHERE subject_kind=$1 AND subject_id=$2 AND status='PENDING' FOR UPDATE`, string(subject.Kind), subject.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Approval{}, ErrApprovalNotFound
	}
	return a, err
}

// UpdateApproval implements Store.
func (s *ApprovalStore) UpdateApproval(ctx context.Context, a Approval) error {
	tag, err := s.db.Exec(ctx, `UPDATE approvals SET status=$2, approver_id=$3, notes=$4, decided_at=$5 WHERE id=$1`,
		a.ID, string(a.Status), a.ApproverID, a.Notes, a.DecidedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrApprovalNotFound
	}
	return nil
}

// Repository serves approval listings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListApprovals returns approvals filtered by subject and status, newest first.
func (r *Repository) ListApprovals(ctx context.Context, filter ListFilter) ([]Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE 1=1`
	var args []any
	if !filter.Subject.IsZero() {
		args = append(args, string(filter.Subject.Kind), filter.Subject.ID)
		query += fmt.Sprintf(" AND subject_kind=$%d AND subject_id=$%d", len(args)-1, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	query += " ORDER BY requested_at DESC, id DESC"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanApproval(row pgx.Row) (Approval, error) {
	var (
		a      Approval
		kind   string
		status string
	)
	err := row.Scan(&a.ID, &kind, &a.Subject.ID, &status, &a.RequestedBy, &a.ApproverID, &a.Notes, &a.RequestedAt, &a.DecidedAt)
	a.Subject.Kind = shared.RefKind(kind)
	a.Status = Status(status)
	return a, err
}
