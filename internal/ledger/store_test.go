package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/scholfa/MLOpsEmotion/internal/ledger"
)

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "submissions.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newSubmission(id string) ledger.Submission {
	return ledger.Submission{
		ID:         id,
		SourceName: "clip.wav",
		RawPath:    "data/raw/" + id,
		SizeBytes:  4410,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, newSubmission("20260831-101500_clip.wav"), false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Status != ledger.StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.SourceName != "clip.wav" || fetched.SizeBytes != 4410 {
		t.Fatalf("unexpected row: %+v", fetched)
	}
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	store := openStore(t)
	if _, err := store.GetByID(context.Background(), "missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRejectsSecondInFlightSubmission(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, newSubmission("a.wav"), true); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	// B arrives while A is still pending: the gate must hold.
	if _, err := store.Create(ctx, newSubmission("b.wav"), true); !errors.Is(err, ledger.ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}

	// Still held while A is processing.
	if err := store.SetStatus(ctx, "a.wav", ledger.StatusProcessing); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(ctx, newSubmission("b.wav"), true); !errors.Is(err, ledger.ErrInFlight) {
		t.Fatalf("expected ErrInFlight while processing, got %v", err)
	}

	// Released once A completes.
	if err := store.SetStatus(ctx, "a.wav", ledger.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(ctx, newSubmission("b.wav"), true); err != nil {
		t.Fatalf("Create after completion failed: %v", err)
	}
}

func TestCreateGateHoldsUnderConcurrency(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	// Two uploads racing for the single slot: exactly one wins each round,
	// the other gets ErrInFlight. Nothing may surface as SQLITE_BUSY.
	for round := 0; round < 3; round++ {
		ids := []string{
			fmt.Sprintf("r%d-a.wav", round),
			fmt.Sprintf("r%d-b.wav", round),
		}
		errs := make([]error, len(ids))
		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				_, errs[i] = store.Create(ctx, newSubmission(id), true)
			}(i, id)
		}
		wg.Wait()

		var wins, rejections int
		for i, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ledger.ErrInFlight):
				rejections++
			default:
				t.Fatalf("round %d: Create(%s) = %v", round, ids[i], err)
			}
		}
		if wins != 1 || rejections != 1 {
			t.Fatalf("round %d: %d wins, %d rejections, want 1 and 1", round, wins, rejections)
		}

		// Release the slot for the next round.
		winner, err := store.InFlight(ctx)
		if err != nil || winner == nil {
			t.Fatalf("round %d: no winner in flight: %v", round, err)
		}
		if err := store.MarkFailed(ctx, winner.ID, "released"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, newSubmission("a.wav"), true); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if err := store.MarkFailed(ctx, "a.wav", "trigger failed"); err != nil {
		t.Fatal(err)
	}

	// The gate is open again, but the ID is taken.
	if _, err := store.Create(ctx, newSubmission("a.wav"), true); !errors.Is(err, ledger.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestSetArtifactRecordsSize(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, ledger.Submission{ID: "a.wav", SourceName: "a.wav"}, false); err != nil {
		t.Fatal(err)
	}
	if err := store.SetArtifact(ctx, "a.wav", "data/raw/a.wav", 2048); err != nil {
		t.Fatalf("SetArtifact failed: %v", err)
	}

	sub, err := store.GetByID(ctx, "a.wav")
	if err != nil {
		t.Fatal(err)
	}
	if sub.RawPath != "data/raw/a.wav" || sub.SizeBytes != 2048 {
		t.Fatalf("unexpected row: %+v", sub)
	}

	if err := store.SetArtifact(ctx, "missing", "x", 1); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, newSubmission("a.wav"), false); err != nil {
		t.Fatal(err)
	}

	// pending -> completed skips processing and must be rejected.
	if err := store.SetStatus(ctx, "a.wav", ledger.StatusCompleted); err == nil {
		t.Fatal("expected invalid transition error")
	}

	if err := store.SetStatus(ctx, "a.wav", ledger.StatusProcessing); err != nil {
		t.Fatalf("pending -> processing failed: %v", err)
	}
	if err := store.SetStatus(ctx, "a.wav", ledger.StatusCompleted); err != nil {
		t.Fatalf("processing -> completed failed: %v", err)
	}

	// Terminal states stay terminal.
	if err := store.SetStatus(ctx, "a.wav", ledger.StatusProcessing); err == nil {
		t.Fatal("expected terminal state to reject transition")
	}
}

func TestMarkFailedRecordsReason(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, newSubmission("a.wav"), false); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(ctx, "a.wav", "backend unavailable"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	sub, err := store.GetByID(ctx, "a.wav")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != ledger.StatusFailed || sub.ErrorMessage != "backend unavailable" {
		t.Fatalf("unexpected row after failure: %+v", sub)
	}

	// A failed submission no longer blocks the gate.
	if _, err := store.Create(ctx, newSubmission("b.wav"), true); err != nil {
		t.Fatalf("Create after failure rejected: %v", err)
	}
}

func TestInFlightAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	got, err := store.InFlight(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected no in-flight submission, got %+v", got)
	}

	if _, err := store.Create(ctx, newSubmission("a.wav"), false); err != nil {
		t.Fatal(err)
	}
	got, err = store.InFlight(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "a.wav" {
		t.Fatalf("expected a.wav in flight, got %+v", got)
	}

	if err := store.SetRunID(ctx, "a.wav", "run-123"); err != nil {
		t.Fatal(err)
	}
	subs, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].RunID != "run-123" {
		t.Fatalf("unexpected listing: %+v", subs)
	}
}
