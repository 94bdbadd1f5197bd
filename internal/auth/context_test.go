package auth

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatalf("empty context must not carry a principal")
	}
	ctx = ContextWithPrincipal(ctx, Principal{UserID: "user-7", Role: RoleAdmin})
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID != "user-7" || !p.IsAdmin() {
		t.Fatalf("unexpected principal: %+v ok=%v", p, ok)
	}
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
}
