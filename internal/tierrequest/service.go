// Package tierrequest implements the vendor tier change workflow:
// pending requests that an admin approves or rejects, or the owning
// vendor cancels.
package tierrequest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"tiergate.dev/internal/auth"
	"tiergate.dev/internal/ids"
	"tiergate.dev/internal/obs"
	"tiergate.dev/internal/tier"
)

const (
	minNotesLength  = 20
	maxNotesLength  = 500
	maxReasonLength = 1000
)

// Service enforces permissions and validation around a Store.
type Service struct {
	store     Store
	now       func() time.Time
	minReason int
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithMinRejectionReason raises the minimum rejection reason length above 1.
func WithMinRejectionReason(n int) Option {
	return func(s *Service) {
		if n > 1 && n <= maxReasonLength {
			s.minReason = n
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now, minReason: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit files a new upgrade or downgrade request for vendorID.
func (s *Service) Submit(ctx context.Context, actor auth.Principal, vendorID string, typ Type, requested, notes string) (Request, error) {
	if !typ.Valid() {
		return Request{}, invalid("requestType", "requestType must be upgrade or downgrade")
	}
	vendor, err := s.ownedVendor(ctx, actor, vendorID)
	if err != nil {
		return Request{}, err
	}
	current := tier.Normalize(vendor.Tier)
	target, err := validateTarget(typ, current, requested)
	if err != nil {
		return Request{}, err
	}
	notes = strings.TrimSpace(notes)
	if notes != "" {
		n := utf8.RuneCountInString(notes)
		if n < minNotesLength {
			return Request{}, invalid("vendorNotes", "Vendor notes must be at least %d characters", minNotesLength)
		}
		if n > maxNotesLength {
			return Request{}, invalid("vendorNotes", "Vendor notes must be less than %d characters", maxNotesLength)
		}
	}

	if _, err := s.store.Latest(ctx, vendor.ID, typ, StatusPending); err == nil {
		return Request{}, ErrDuplicatePending
	} else if !errors.Is(err, ErrNotFound) {
		return Request{}, err
	}

	now := s.now().UTC()
	req := Request{
		ID:            ids.NewAt(now),
		VendorID:      vendor.ID,
		CurrentTier:   current,
		RequestedTier: target,
		Type:          typ,
		Status:        StatusPending,
		VendorNotes:   notes,
		RequestedAt:   now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, &req); err != nil {
		return Request{}, err
	}
	s.transitioned(req, actor)
	return req, nil
}

// Pending returns the vendor's pending request of typ, or nil.
func (s *Service) Pending(ctx context.Context, actor auth.Principal, vendorID string, typ Type) (*Request, error) {
	return s.latest(ctx, actor, vendorID, typ, StatusPending)
}

// MostRecent returns the vendor's newest request of typ in any status, or nil.
func (s *Service) MostRecent(ctx context.Context, actor auth.Principal, vendorID string, typ Type) (*Request, error) {
	return s.latest(ctx, actor, vendorID, typ, "")
}

// Get returns a request for admin review.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (Request, error) {
	if !actor.IsAdmin() {
		return Request{}, ErrForbidden
	}
	return s.store.Get(ctx, id)
}

// List pages through requests for admin review, newest first.
func (s *Service) List(ctx context.Context, actor auth.Principal, f Filter) (Page, error) {
	if !actor.IsAdmin() {
		return Page{}, ErrForbidden
	}
	if f.Status != "" && !f.Status.Valid() {
		return Page{}, invalid("status", "unknown status %q", f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return Page{}, invalid("requestType", "unknown request type %q", f.Type)
	}
	f = f.Normalize()
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	pages := (total + f.Limit - 1) / f.Limit
	return Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit, TotalPages: pages}, nil
}

// Approve moves a pending request to approved and applies the requested tier
// to the vendor in the same unit of work.
func (s *Service) Approve(ctx context.Context, actor auth.Principal, id string) (Request, error) {
	if !actor.IsAdmin() {
		return Request{}, ErrForbidden
	}
	req, err := s.store.Approve(ctx, id, actor.UserID, s.now().UTC())
	if err != nil {
		return Request{}, err
	}
	s.transitioned(req, actor)
	return req, nil
}

// Reject moves a pending request to rejected. The reason is validated before
// the store is touched.
func (s *Service) Reject(ctx context.Context, actor auth.Principal, id, reason string) (Request, error) {
	if !actor.IsAdmin() {
		return Request{}, ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	n := utf8.RuneCountInString(reason)
	switch {
	case n == 0:
		return Request{}, invalid("rejectionReason", "Rejection reason is required")
	case n < s.minReason:
		return Request{}, invalid("rejectionReason", "Rejection reason must be at least %d characters", s.minReason)
	case n > maxReasonLength:
		return Request{}, invalid("rejectionReason", "Rejection reason must be %d characters or less", maxReasonLength)
	}
	req, err := s.store.Reject(ctx, id, actor.UserID, reason, s.now().UTC())
	if err != nil {
		return Request{}, err
	}
	s.transitioned(req, actor)
	return req, nil
}

// Cancel withdraws the owning vendor's pending request.
func (s *Service) Cancel(ctx context.Context, actor auth.Principal, vendorID string, typ Type, id string) (Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.VendorID != vendorID {
		return Request{}, ErrForbidden
	}
	if req.Type != typ {
		return Request{}, ErrNotFound
	}
	vendor, err := s.store.Vendor(ctx, vendorID)
	if err != nil {
		return Request{}, err
	}
	if actor.UserID == "" || vendor.UserID != actor.UserID {
		return Request{}, ErrForbidden
	}
	req, err = s.store.Cancel(ctx, id, s.now().UTC())
	if err != nil {
		return Request{}, err
	}
	s.transitioned(req, actor)
	return req, nil
}

// Vendor returns the vendor profile when actor may see it.
func (s *Service) Vendor(ctx context.Context, actor auth.Principal, vendorID string) (Vendor, error) {
	return s.ownedVendor(ctx, actor, vendorID)
}

// PendingCount is used by the metrics job.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.store.CountPending(ctx)
}

func (s *Service) latest(ctx context.Context, actor auth.Principal, vendorID string, typ Type, status Status) (*Request, error) {
	if _, err := s.ownedVendor(ctx, actor, vendorID); err != nil {
		return nil, err
	}
	req, err := s.store.Latest(ctx, vendorID, typ, status)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Service) ownedVendor(ctx context.Context, actor auth.Principal, vendorID string) (Vendor, error) {
	vendor, err := s.store.Vendor(ctx, vendorID)
	if err != nil {
		return Vendor{}, err
	}
	if !actor.CanActFor(vendor.UserID) {
		return Vendor{}, ErrForbidden
	}
	return vendor, nil
}

func (s *Service) transitioned(req Request, actor auth.Principal) {
	obs.TierTransition(string(req.Status))
	log := obs.Logger()
	log.Info().
		Str("request_id", req.ID).
		Str("vendor_id", req.VendorID).
		Str("status", string(req.Status)).
		Str("requested_tier", string(req.RequestedTier)).
		Str("actor", actor.UserID).
		Msg("tier request transition")
}

func validateTarget(typ Type, current tier.Tier, requested string) (tier.Tier, error) {
	target, ok := tier.Parse(requested)
	if !ok {
		return "", invalid("requestedTier", "Invalid tier %q", requested)
	}
	switch typ {
	case TypeUpgrade:
		if target == tier.Free {
			return "", invalid("requestedTier", "Upgrade target must be tier1, tier2 or tier3")
		}
		if tier.Level(target) <= tier.Level(current) {
			return "", invalid("requestedTier", "Requested tier must be higher than current tier %s", current)
		}
	case TypeDowngrade:
		if target == tier.Tier3 {
			return "", invalid("requestedTier", "Downgrade target must be free, tier1 or tier2")
		}
		if tier.Level(target) >= tier.Level(current) {
			return "", invalid("requestedTier", "Requested tier must be lower than current tier %s", current)
		}
	default:
		return "", fmt.Errorf("%w: unknown request type %q", ErrInvalidInput, typ)
	}
	return target, nil
}
