package presence

import (
	"context"
	"testing"

	"supportchat/internal/models"
)

func TestMemoryStore_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if e, err := s.Get(ctx, 1); err != nil || e != nil {
		t.Fatalf("Get on empty store = (%v, %v), want (nil, nil)", e, err)
	}

	entry := Entry{ConnectionID: "c1", User: models.User{ID: 1, Username: "alice", UserType: models.UserTypeUser}}
	if err := s.Set(ctx, 1, entry); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, 1)
	if err != nil || got == nil || got.ConnectionID != "c1" {
		t.Fatalf("Get = (%+v, %v), want connection c1", got, err)
	}

	if err := s.Remove(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if e, _ := s.Get(ctx, 1); e != nil {
		t.Error("entry should be gone after Remove")
	}
}

func TestMemoryStore_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := models.User{ID: 1, Username: "alice"}

	_ = s.Set(ctx, 1, Entry{ConnectionID: "old", User: u})
	_ = s.Set(ctx, 1, Entry{ConnectionID: "new", User: u})

	got, _ := s.Get(ctx, 1)
	if got.ConnectionID != "new" {
		t.Errorf("ConnectionID = %q, want new (last writer wins)", got.ConnectionID)
	}
	all, _ := s.ListAll(ctx)
	if len(all) != 1 {
		t.Errorf("user should have at most one live entry, got %d", len(all))
	}
}

func TestMemoryStore_ListByRole(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, 1, Entry{ConnectionID: "c1", User: models.User{ID: 1, UserType: models.UserTypeUser}})
	_ = s.Set(ctx, 2, Entry{ConnectionID: "c2", User: models.User{ID: 2, UserType: models.UserTypeAdmin}})
	_ = s.Set(ctx, 3, Entry{ConnectionID: "c3", User: models.User{ID: 3, UserType: models.UserTypeAdmin}})

	admins, err := s.ListByRole(ctx, models.UserTypeAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if len(admins) != 2 {
		t.Fatalf("ListByRole(admin) returned %d entries, want 2", len(admins))
	}
	for _, e := range admins {
		if e.User.UserType != models.UserTypeAdmin {
			t.Errorf("non-admin entry %+v in admin list", e)
		}
	}
}
