package tierrequest

import (
	"context"
	"sort"
	"sync"
	"time"

	"tiergate.dev/internal/tier"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store. Every transition runs under one
// lock, which gives the same atomicity the SQL store gets from a transaction.
type MemoryStore struct {
	mu       sync.Mutex
	vendors  map[string]Vendor
	requests map[string]Request
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vendors:  make(map[string]Vendor),
		requests: make(map[string]Request),
	}
}

// PutVendor inserts or replaces a vendor.
func (m *MemoryStore) PutVendor(v Vendor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vendors[v.ID] = v
}

// DeleteVendor removes a vendor; pending requests stay behind.
func (m *MemoryStore) DeleteVendor(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vendors, id)
}

func (m *MemoryStore) Vendor(_ context.Context, id string) (Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[id]
	if !ok {
		return Vendor{}, ErrVendorNotFound
	}
	return v, nil
}

func (m *MemoryStore) Create(_ context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vendors[req.VendorID]; !ok {
		return ErrVendorNotFound
	}
	for _, existing := range m.requests {
		if existing.VendorID == req.VendorID && existing.Type == req.Type && existing.Status == StatusPending {
			return ErrDuplicatePending
		}
	}
	m.requests[req.ID] = *req
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) Latest(_ context.Context, vendorID string, typ Type, status Status) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		best  Request
		found bool
	)
	for _, r := range m.requests {
		if r.VendorID != vendorID || r.Type != typ {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		if !found || newer(r, best) {
			best, found = r, true
		}
	}
	if !found {
		return Request{}, ErrNotFound
	}
	return best, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Request, int, error) {
	f = f.Normalize()
	m.mu.Lock()
	var matched []Request
	for _, r := range m.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.VendorID != "" && r.VendorID != f.VendorID {
			continue
		}
		matched = append(matched, r)
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return newer(matched[i], matched[j]) })
	total := len(matched)
	start := f.Offset()
	if start >= total {
		return []Request{}, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) Approve(_ context.Context, id, reviewerID string, at time.Time) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.pendingLocked(id, "approve")
	if err != nil {
		return Request{}, err
	}
	v, ok := m.vendors[r.VendorID]
	if !ok {
		return Request{}, ErrVendorNotFound
	}
	v.Tier = tier.Normalize(r.RequestedTier)
	m.vendors[v.ID] = v

	r.Status = StatusApproved
	r.ReviewedBy = reviewerID
	r.ReviewedAt = &at
	r.UpdatedAt = at
	m.requests[id] = r
	return r, nil
}

func (m *MemoryStore) Reject(_ context.Context, id, reviewerID, reason string, at time.Time) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.pendingLocked(id, "reject")
	if err != nil {
		return Request{}, err
	}
	r.Status = StatusRejected
	r.RejectionReason = reason
	r.ReviewedBy = reviewerID
	r.ReviewedAt = &at
	r.UpdatedAt = at
	m.requests[id] = r
	return r, nil
}

func (m *MemoryStore) Cancel(_ context.Context, id string, at time.Time) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.pendingLocked(id, "cancel")
	if err != nil {
		return Request{}, err
	}
	r.Status = StatusCancelled
	r.UpdatedAt = at
	m.requests[id] = r
	return r, nil
}

func (m *MemoryStore) CountPending(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) pendingLocked(id, verb string) (Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if r.Status != StatusPending {
		return Request{}, &StateError{Verb: verb, Status: r.Status}
	}
	return r, nil
}

func newer(a, b Request) bool {
	if a.RequestedAt.Equal(b.RequestedAt) {
		return a.ID > b.ID
	}
	return a.RequestedAt.After(b.RequestedAt)
}
