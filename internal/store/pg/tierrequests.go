package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"tiergate.dev/internal/tierrequest"
)

var _ tierrequest.Store = (*TierRequestStore)(nil)

// TierRequestStore implements tierrequest.Store on the vendors and
// tier_change_requests tables.
type TierRequestStore struct {
	db *sqlx.DB
}

func (s *Store) TierRequests() *TierRequestStore { return &TierRequestStore{db: s.db} }

const requestColumns = `id, vendor_id, current_tier, requested_tier, request_type, status,
	vendor_notes, rejection_reason, coalesce(reviewed_by, '') as reviewed_by, reviewed_at,
	requested_at, updated_at`

func (s *TierRequestStore) Vendor(ctx context.Context, id string) (tierrequest.Vendor, error) {
	var v tierrequest.Vendor
	err := s.db.GetContext(ctx, &v, `select id, user_id, company_name, tier from vendors where id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return tierrequest.Vendor{}, tierrequest.ErrVendorNotFound
	}
	return v, err
}

func (s *TierRequestStore) Create(ctx context.Context, req *tierrequest.Request) error {
	_, err := s.db.ExecContext(ctx, `
		insert into tier_change_requests
			(id, vendor_id, current_tier, requested_tier, request_type, status, vendor_notes, requested_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.ID, req.VendorID, req.CurrentTier, req.RequestedTier, req.Type, req.Status,
		req.VendorNotes, req.RequestedAt, req.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case isCode(err, pgErrUniqueViolation):
		return tierrequest.ErrDuplicatePending
	case isCode(err, pgErrForeignKeyViolation):
		return tierrequest.ErrVendorNotFound
	default:
		return err
	}
}

func (s *TierRequestStore) Get(ctx context.Context, id string) (tierrequest.Request, error) {
	var r tierrequest.Request
	err := s.db.GetContext(ctx, &r, `select `+requestColumns+` from tier_change_requests where id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return tierrequest.Request{}, tierrequest.ErrNotFound
	}
	return r, err
}

func (s *TierRequestStore) Latest(ctx context.Context, vendorID string, typ tierrequest.Type, status tierrequest.Status) (tierrequest.Request, error) {
	var r tierrequest.Request
	err := s.db.GetContext(ctx, &r, `
		select `+requestColumns+`
		from tier_change_requests
		where vendor_id = $1 and request_type = $2 and ($3::text = '' or status = $3::text)
		order by requested_at desc, id desc
		limit 1
	`, vendorID, typ, status)
	if errors.Is(err, sql.ErrNoRows) {
		return tierrequest.Request{}, tierrequest.ErrNotFound
	}
	return r, err
}

func (s *TierRequestStore) List(ctx context.Context, f tierrequest.Filter) ([]tierrequest.Request, int, error) {
	f = f.Normalize()
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Type != "" {
		add("request_type = $%d", f.Type)
	}
	if f.VendorID != "" {
		add("vendor_id = $%d", f.VendorID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `select count(*) from tier_change_requests`+clause, args...); err != nil {
		return nil, 0, err
	}
	items := []tierrequest.Request{}
	query := fmt.Sprintf(`select %s from tier_change_requests%s order by requested_at desc, id desc limit $%d offset $%d`,
		requestColumns, clause, len(args)+1, len(args)+2)
	if err := s.db.SelectContext(ctx, &items, query, append(args, f.Limit, f.Offset())...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Approve flips the request and the vendor tier in one transaction.
func (s *TierRequestStore) Approve(ctx context.Context, id, reviewerID string, at time.Time) (tierrequest.Request, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return tierrequest.Request{}, err
	}
	defer func() { _ = tx.Rollback() }()

	req, err := transition(ctx, tx, "approve", `
		update tier_change_requests
		set status = 'approved', reviewed_by = $2, reviewed_at = $3, updated_at = $3
		where id = $1 and status = 'pending'
		returning `+requestColumns, id, reviewerID, at)
	if err != nil {
		return tierrequest.Request{}, err
	}
	res, err := tx.ExecContext(ctx, `update vendors set tier = $2, updated_at = $3 where id = $1`,
		req.VendorID, req.RequestedTier, at)
	if err != nil {
		return tierrequest.Request{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return tierrequest.Request{}, err
	} else if n == 0 {
		return tierrequest.Request{}, tierrequest.ErrVendorNotFound
	}
	if err := tx.Commit(); err != nil {
		return tierrequest.Request{}, err
	}
	return req, nil
}

func (s *TierRequestStore) Reject(ctx context.Context, id, reviewerID, reason string, at time.Time) (tierrequest.Request, error) {
	return transition(ctx, s.db, "reject", `
		update tier_change_requests
		set status = 'rejected', rejection_reason = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4
		where id = $1 and status = 'pending'
		returning `+requestColumns, id, reason, reviewerID, at)
}

func (s *TierRequestStore) Cancel(ctx context.Context, id string, at time.Time) (tierrequest.Request, error) {
	return transition(ctx, s.db, "cancel", `
		update tier_change_requests
		set status = 'cancelled', updated_at = $2
		where id = $1 and status = 'pending'
		returning `+requestColumns, id, at)
}

func (s *TierRequestStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `select count(*) from tier_change_requests where status = 'pending'`)
	return n, err
}

// transition runs a conditional update out of pending. When no row matches,
// it tells a missing request apart from one that already left pending.
func transition(ctx context.Context, q sqlx.QueryerContext, verb, query string, args ...any) (tierrequest.Request, error) {
	var r tierrequest.Request
	err := sqlx.GetContext(ctx, q, &r, query, args...)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return tierrequest.Request{}, err
	}
	var status tierrequest.Status
	err = sqlx.GetContext(ctx, q, &status, `select status from tier_change_requests where id = $1`, args[0])
	if errors.Is(err, sql.ErrNoRows) {
		return tierrequest.Request{}, tierrequest.ErrNotFound
	}
	if err != nil {
		return tierrequest.Request{}, err
	}
	return tierrequest.Request{}, &tierrequest.StateError{Verb: verb, Status: status}
}
