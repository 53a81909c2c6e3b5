package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/storage"
)

func TestResultArchive_AppendAndGet(t *testing.T) {
	archive := NewResultArchive()
	ctx := context.Background()

	rec := &domain.ResultRecord{
		RequestID:   "req1",
		Caller:      "alice",
		Status:      domain.StatusCompleted,
		Success:     true,
		CompletedAt: 100,
	}
	if err := archive.Append(ctx, rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := archive.GetByRequestID(ctx, "req1")
	if err != nil {
		t.Fatalf("GetByRequestID failed: %v", err)
	}
	if got.Caller != "alice" || !got.Success {
		t.Errorf("unexpected record: %+v", got)
	}

	if err := archive.Append(ctx, rec); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestResultArchive_RejectsNonTerminal(t *testing.T) {
	archive := NewResultArchive()
	err := archive.Append(context.Background(), &domain.ResultRecord{RequestID: "r", Status: domain.StatusPending})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestResultArchive_ListByCaller(t *testing.T) {
	archive := NewResultArchive()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		_ = archive.Append(ctx, &domain.ResultRecord{
			RequestID:   id,
			Caller:      "alice",
			Status:      domain.StatusCompleted,
			CompletedAt: int64(i * 10),
		})
	}
	_ = archive.Append(ctx, &domain.ResultRecord{RequestID: "z", Caller: "bob", Status: domain.StatusFailed})

	got, err := archive.ListByCaller(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("ListByCaller failed: %v", err)
	}
	if len(got) != 2 || got[0].RequestID != "c" || got[1].RequestID != "b" {
		t.Errorf("unexpected order: %+v", got)
	}

	if _, err := archive.GetByRequestID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
