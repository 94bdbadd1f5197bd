package tierrequest

import (
	"context"
	"time"
)

// Store persists vendors' tier fields and tier change requests.
//
// Approve, Reject and Cancel are compare-and-swap transitions out of
// StatusPending: they return ErrNotFound for unknown ids and a *StateError
// when the request is no longer pending. Approve must update the vendor tier
// in the same unit of work and leave the request pending if that fails.
type Store interface {
	Vendor(ctx context.Context, id string) (Vendor, error)
	// Create returns ErrDuplicatePending when the vendor already has a
	// pending request of the same type.
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id string) (Request, error)
	// Latest returns the newest request for vendor and type, restricted to
	// status when it is non-empty.
	Latest(ctx context.Context, vendorID string, typ Type, status Status) (Request, error)
	List(ctx context.Context, f Filter) ([]Request, int, error)
	Approve(ctx context.Context, id, reviewerID string, at time.Time) (Request, error)
	Reject(ctx context.Context, id, reviewerID, reason string, at time.Time) (Request, error)
	Cancel(ctx context.Context, id string, at time.Time) (Request, error)
	CountPending(ctx context.Context) (int, error)
}
