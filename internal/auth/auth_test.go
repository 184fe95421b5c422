package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	user := &domain.User{ID: "u-1", Role: domain.RoleAgent}

	raw, meta, err := tm.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if meta.ID == "" || meta.ExpiresAt.Sub(meta.IssuedAt) != 30*time.Minute {
		t.Fatalf("unexpected token metadata: %+v", meta)
	}

	parsed, err := tm.ParseToken(raw)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if parsed.ID != meta.ID || parsed.UserID != "u-1" || parsed.Role != domain.RoleAgent {
		t.Errorf("parsed token mismatch: %+v", parsed)
	}
}

func TestParseRejectsForeignSecretAndExpiry(t *testing.T) {
	issuer := NewTokenManager("secret-a", 1)
	raw, _, err := issuer.GenerateToken(&domain.User{ID: "u-1", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := NewTokenManager("secret-b", 1).ParseToken(raw); err == nil {
		t.Errorf("expected signature failure")
	}

	late := NewTokenManager("secret-a", 1)
	late.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := late.ParseToken(raw); err == nil {
		t.Errorf("expected expired token to be rejected")
	}
}

func TestMemoryRevocationStoreExpires(t *testing.T) {
	store := NewMemoryRevocationStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	ctx := context.Background()

	if err := store.Revoke(ctx, "jti", time.Minute); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if revoked, _ := store.IsRevoked(ctx, "jti"); !revoked {
		t.Fatalf("expected revoked")
	}
	store.now = func() time.Time { return base.Add(time.Minute) }
	if revoked, _ := store.IsRevoked(ctx, "jti"); revoked {
		t.Errorf("expected revocation to lapse with the token")
	}
	if revoked, _ := store.IsRevoked(ctx, "other"); revoked {
		t.Errorf("unknown ids are not revoked")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if ComparePassword(hash, "correct horse") != nil {
		t.Errorf("expected match")
	}
	if err := ComparePassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	cases := []struct {
		name string
		hash string
		cost int
		want bool
	}{
		{"same cost", hash, 4, false},
		{"raised cost", hash, 5, true},
		{"out of range uses default", hash, 0, true},
		{"not a bcrypt hash", "plain", 4, false},
	}
	for _, tc := range cases {
		if got := NeedsRehash(tc.hash, tc.cost); got != tc.want {
			t.Errorf("%s: NeedsRehash = %v, want %v", tc.name, got, tc.want)
		}
	}
}
