package repository

import (
	"context"
	"errors"
	"testing"
)

func TestValidID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"7b60c1de-4f7e-4c55-9a52-2f0f4a6d9c11", true},
		{"not-a-uuid", false},
		{"", false},
		{"7b60c1de4f7e4c559a522f0f4a6d9c11", false},
		{"{7b60c1de-4f7e-4c55-9a52-2f0f4a6d9c11}", false},
		{"7b60c1de-4f7e-4c55-9a52-2f0f4a6d9c1z", false},
	}
	for _, tc := range cases {
		if got := validID(tc.id); got != tc.want {
			t.Errorf("validID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

// Malformed ids never reach the pool, so a nil pool is enough here.
func TestGetByIDRejectsMalformedIDs(t *testing.T) {
	ctx := context.Background()
	lookups := map[string]func(string) error{
		"ticket": func(id string) error {
			_, err := NewTicketRepository(nil).GetByID(ctx, id)
			return err
		},
		"comment": func(id string) error {
			_, err := NewCommentRepository(nil).GetByID(ctx, id)
			return err
		},
		"attachment": func(id string) error {
			_, err := NewAttachmentRepository(nil).GetByID(ctx, id)
			return err
		},
		"user": func(id string) error {
			_, err := NewUserRepository(nil).GetByID(ctx, id)
			return err
		},
	}
	for name, lookup := range lookups {
		if err := lookup("abc"); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}
