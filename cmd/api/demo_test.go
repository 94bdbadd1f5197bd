package main

import (
	"context"
	"testing"

	"tiergate.dev/internal/auth"
	"tiergate.dev/internal/tier"
	"tiergate.dev/internal/tierrequest"
	"tiergate.dev/internal/token"
)

func TestSeedDemoVendorsCanLogIn(t *testing.T) {
	ctx := context.Background()
	codec, err := token.NewCodec(token.WithSecrets("access-secret", "refresh-secret"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := auth.NewService(auth.NewMemoryStore(), codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	store := tierrequest.NewMemoryStore()

	vendors, err := seedDemoVendors(ctx, svc, store, "Demo-Vendor-2025!")
	if err != nil {
		t.Fatalf("seedDemoVendors: %v", err)
	}
	if len(vendors) != len(demoVendors) {
		t.Fatalf("expected %d vendors, got %d", len(demoVendors), len(vendors))
	}

	sess, err := svc.Login(ctx, "charter@example.com", "Demo-Vendor-2025!")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	v, err := store.Vendor(ctx, vendors[1].ID)
	if err != nil {
		t.Fatalf("Vendor: %v", err)
	}
	if v.UserID != sess.User.ID || v.Tier != tier.Tier2 {
		t.Fatalf("unexpected vendor %+v for user %s", v, sess.User.ID)
	}
}

func TestSeedDemoVendorsRejectsWeakPassword(t *testing.T) {
	codec, _ := token.NewCodec(token.WithSecrets("access-secret", "refresh-secret"))
	svc, _ := auth.NewService(auth.NewMemoryStore(), codec)
	if _, err := seedDemoVendors(context.Background(), svc, tierrequest.NewMemoryStore(), "demo"); err == nil {
		t.Fatalf("expected weak password to be refused")
	}
}
