package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hoanghai1803/paperfeed/internal/models"
)

func TestUpsertClassification_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertPaper(ctx, testPaper("2503.00100", "Induction Heads", time.Now()))
	if err != nil {
		t.Fatalf("UpsertPaper() error: %v", err)
	}

	want := models.Classification{Relevant: true, Reason: "studies attention circuits"}
	if err := store.UpsertClassification(ctx, id, want, "llama3.2"); err != nil {
		t.Fatalf("UpsertClassification() error: %v", err)
	}

	got, model, err := store.GetClassification(ctx, id)
	if err != nil {
		t.Fatalf("GetClassification() error: %v", err)
	}
	if *got != want {
		t.Errorf("classification = %+v, want %+v", *got, want)
	}
	if model != "llama3.2" {
		t.Errorf("model = %q, want %q", model, "llama3.2")
	}

	stored, err := store.GetPaperByLink(ctx, "https://arxiv.org/pdf/2503.00100")
	if err != nil {
		t.Fatalf("GetPaperByLink() error: %v", err)
	}
	if stored.Classification == nil || !stored.Classification.Relevant {
		t.Errorf("joined classification = %+v, want relevant", stored.Classification)
	}
	if stored.ModelUsed != "llama3.2" {
		t.Errorf("ModelUsed = %q, want %q", stored.ModelUsed, "llama3.2")
	}
}

func TestUpsertClassification_Replaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertPaper(ctx, testPaper("2503.00101", "Steering Vectors", time.Now()))
	if err != nil {
		t.Fatalf("UpsertPaper() error: %v", err)
	}

	if err := store.UpsertClassification(ctx, id, models.Classification{Relevant: true}, "llama3.2"); err != nil {
		t.Fatalf("first UpsertClassification() error: %v", err)
	}
	if err := store.UpsertClassification(ctx, id, models.Classification{Relevant: false, Reason: "off topic"}, "qwen3"); err != nil {
		t.Fatalf("second UpsertClassification() error: %v", err)
	}

	got, model, err := store.GetClassification(ctx, id)
	if err != nil {
		t.Fatalf("GetClassification() error: %v", err)
	}
	if got.Relevant || got.Reason != "off topic" || model != "qwen3" {
		t.Errorf("got %+v from %q, want latest verdict from qwen3", *got, model)
	}
}

func TestGetClassification_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.GetClassification(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetClassification() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertClassification_UnknownPaper(t *testing.T) {
	store := newTestStore(t)

	err := store.UpsertClassification(context.Background(), 12345, models.Classification{}, "llama3.2")
	if err == nil {
		t.Error("UpsertClassification() for a missing paper should violate the foreign key")
	}
}
