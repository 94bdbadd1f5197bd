package main

import (
	"context"
	"fmt"

	"tiergate.dev/internal/auth"
	"tiergate.dev/internal/ids"
	"tiergate.dev/internal/tier"
	"tiergate.dev/internal/tierrequest"
)

// demoVendors mirror ops/migrations/seeds/0001_demo_vendors.sql for runs
// without postgres.
var demoVendors = []struct {
	email   string
	company string
	tier    tier.Tier
}{
	{"marina@example.com", "Harbour Marina", tier.Free},
	{"charter@example.com", "Blue Water Charters", tier.Tier2},
}

// seedDemoVendors creates the demo vendor logins with password and registers
// their vendor records in store.
func seedDemoVendors(ctx context.Context, svc *auth.Service, store *tierrequest.MemoryStore, password string) ([]tierrequest.Vendor, error) {
	out := make([]tierrequest.Vendor, 0, len(demoVendors))
	for _, d := range demoVendors {
		user, err := svc.EnsureUser(ctx, d.email, password, auth.RoleVendor)
		if err != nil {
			return nil, fmt.Errorf("demo vendor %s: %w", d.email, err)
		}
		v := tierrequest.Vendor{ID: ids.New(), UserID: user.ID, Name: d.company, Tier: d.tier}
		store.PutVendor(v)
		out = append(out, v)
	}
	return out, nil
}
