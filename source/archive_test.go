package source

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/AmiraLearning/amira-amirabot-analysis/analysis"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := NewArchive(filepath.Join(t.TempDir(), "conversations"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	return a
}

func TestArchive_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t)
	rating := 3
	want := analysis.Conversation{
		ID:        "c1",
		CreatedAt: "2026-01-01T00:00:00Z",
		Status:    "closed",
		Rating:    &rating,
		Messages: []analysis.Message{
			{Role: "user", Content: "hi", Timestamp: "1700000000000"},
		},
	}
	if err := a.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok := a.Load("c1")
	if !ok {
		t.Fatalf("Load miss after Save")
	}
	if got.ID != "c1" || got.Status != "closed" || got.Rating == nil || *got.Rating != 3 {
		t.Fatalf("got=%+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Fatalf("messages=%+v", got.Messages)
	}
}

func TestArchive_SaveRejectsEmptyID(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t)
	if err := a.Save(analysis.Conversation{}); err == nil {
		t.Fatalf("Save accepted conversation without an id")
	}
}

func TestArchive_LoadAllSkipsCorrupt(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t)
	a.Save(analysis.Conversation{ID: "b"})
	a.Save(analysis.Conversation{ID: "a"})
	if err := os.WriteFile(filepath.Join(a.Dir(), "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}

	got, err := a.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadAll=%d conversations, want 2", len(got))
	}
	// Sorted by ID for determinism.
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("order=%s,%s want a,b", got[0].ID, got[1].ID)
	}
}

func TestArchive_SaveAllCountsSuccesses(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t)
	n := a.SaveAll([]analysis.Conversation{
		{ID: "c1"},
		{},
		{ID: "c2"},
	})
	if n != 2 {
		t.Fatalf("SaveAll=%d, want 2", n)
	}
}
