package results_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/scholfa/MLOpsEmotion/internal/results"
	"github.com/scholfa/MLOpsEmotion/internal/types"
)

func entry(id, label string) types.ResultEntry {
	return types.ResultEntry{
		File: id,
		Result: types.Prediction{
			Label:  label,
			Scores: []types.EmotionScore{{Emotion: label, Score: 0.9}},
		},
	}
}

func TestMissingLogReadsEmpty(t *testing.T) {
	log := results.NewLog(filepath.Join(t.TempDir(), "inference_stats.json"))

	entries, err := log.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty log, got %d entries", len(entries))
	}
}

func TestAppendAndFind(t *testing.T) {
	log := results.NewLog(filepath.Join(t.TempDir(), "inference_stats.json"))

	if err := log.Append(entry("a.wav", "happy")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := log.Append(entry("b.wav", "sad")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := log.Find("b.wav")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Result.Label != "sad" {
		t.Fatalf("wrong entry matched: %+v", got)
	}

	if _, err := log.Find("c.wav"); !errors.Is(err, results.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestAppendReplacesSameKey(t *testing.T) {
	log := results.NewLog(filepath.Join(t.TempDir(), "inference_stats.json"))

	if err := log.Append(entry("a.wav", "happy")); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(entry("a.wav", "neutral")); err != nil {
		t.Fatal(err)
	}

	entries, err := log.Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Result.Label != "neutral" {
		t.Fatalf("expected single replaced entry, got %+v", entries)
	}
}

func TestGarbageLogIsTransient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inference_stats.json")
	if err := os.WriteFile(path, []byte(`[{"file": "a.wav", "resu`), 0o644); err != nil {
		t.Fatal(err)
	}

	log := results.NewLog(path)
	if _, err := log.Read(); !errors.Is(err, results.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if _, err := log.Find("a.wav"); !errors.Is(err, results.ErrTransient) {
		t.Fatalf("expected ErrTransient from Find, got %v", err)
	}
}

func TestAppendRecoversFromGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inference_stats.json")
	if err := os.WriteFile(path, []byte("not json at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := results.NewLog(path)
	if err := log.Append(entry("a.wav", "happy")); err != nil {
		t.Fatalf("Append over garbage failed: %v", err)
	}

	entries, err := log.Read()
	if err != nil {
		t.Fatalf("Read after recovery failed: %v", err)
	}
	if len(entries) != 1 || entries[0].File != "a.wav" {
		t.Fatalf("unexpected recovered log: %+v", entries)
	}
}
