package directory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created := &Account{ID: "alice", Name: "Alice", CreatedAt: time.Now()}
	if err := store.Create(ctx, created); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Alice" {
		t.Errorf("Expected name Alice, got %s", got.Name)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a := &Account{ID: "alice", Name: "Alice", CreatedAt: time.Now()}
	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := store.Create(ctx, &Account{ID: "alice", Name: "Imposter", CreatedAt: time.Now()})
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}
}

func TestGetUnknownUser(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nobody")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestAgeDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		created time.Time
		want    int
	}{
		{"brand new", now, 0},
		{"two days", now.Add(-48 * time.Hour), 2},
		{"partial day rounds down", now.Add(-36 * time.Hour), 1},
		{"half a year", now.AddDate(0, 0, -180), 180},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &Account{ID: "u", CreatedAt: tc.created}
			if got := a.AgeDays(now); got != tc.want {
				t.Errorf("AgeDays = %d, want %d", got, tc.want)
			}
		})
	}
}
