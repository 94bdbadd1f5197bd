package tierrequest

import (
	"time"

	"tiergate.dev/internal/tier"
)

// Status is the lifecycle state of a tier change request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// Type is the direction of the requested change.
type Type string

const (
	TypeUpgrade   Type = "upgrade"
	TypeDowngrade Type = "downgrade"
)

func (t Type) Valid() bool {
	return t == TypeUpgrade || t == TypeDowngrade
}

// Request is a vendor's ask to move between tiers.
type Request struct {
	ID              string     `json:"id" db:"id"`
	VendorID        string     `json:"vendorId" db:"vendor_id"`
	CurrentTier     tier.Tier  `json:"currentTier" db:"current_tier"`
	RequestedTier   tier.Tier  `json:"requestedTier" db:"requested_tier"`
	Type            Type       `json:"requestType" db:"request_type"`
	Status          Status     `json:"status" db:"status"`
	VendorNotes     string     `json:"vendorNotes,omitempty" db:"vendor_notes"`
	RejectionReason string     `json:"rejectionReason,omitempty" db:"rejection_reason"`
	ReviewedBy      string     `json:"reviewedBy,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty" db:"reviewed_at"`
	RequestedAt     time.Time  `json:"requestedAt" db:"requested_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// Vendor is the part of the vendor profile the workflow reads and writes.
type Vendor struct {
	ID     string    `json:"id" db:"id"`
	UserID string    `json:"userId" db:"user_id"`
	Name   string    `json:"companyName" db:"company_name"`
	Tier   tier.Tier `json:"tier" db:"tier"`
}

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Status   Status
	Type     Type
	VendorID string
	Page     int
	Limit    int
}

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// Normalize applies paging defaults.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = defaultPage
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f
}

// Offset is the number of rows skipped for the page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of List results.
type Page struct {
	Items      []Request `json:"requests"`
	Total      int       `json:"totalCount"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"totalPages"`
}
