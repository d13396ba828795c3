package stages_test

import (
	"context"
	"math"
	"testing"

	"github.com/scholfa/MLOpsEmotion/internal/metadata"
	"github.com/scholfa/MLOpsEmotion/internal/stages"
	"github.com/scholfa/MLOpsEmotion/internal/testsupport"
	"github.com/scholfa/MLOpsEmotion/internal/types"
)

func TestExtractExtendsUploadRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	meta := metadata.NewStore(cfg.MetadataDir())

	id := "20260831-101500_clip.wav"
	testsupport.WriteRawWAV(t, cfg, id, testsupport.Sine(440, 16000, 16000), 16000)

	// Upload already wrote the identity fields.
	if err := meta.Write(types.MetadataRecord{File: id, Source: "clip.wav", Size: 99}); err != nil {
		t.Fatal(err)
	}

	stage := stages.NewExtract(cfg, meta)
	if err := stage.Run(context.Background(), id); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec, err := meta.Read(id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Source != "clip.wav" || rec.Size != 99 {
		t.Fatalf("upload fields clobbered: %+v", rec)
	}
	if rec.SampleRate != 16000 || rec.Channels != 1 {
		t.Fatalf("audio properties missing: %+v", rec)
	}
	if math.Abs(rec.DurationSec-1.0) > 0.01 {
		t.Fatalf("expected ~1s duration, got %f", rec.DurationSec)
	}
	if rec.Format != "wav/pcm16" {
		t.Fatalf("format missing: %+v", rec)
	}
}

func TestExtractWritesRecordWhenNoneExists(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	meta := metadata.NewStore(cfg.MetadataDir())

	id := "standalone.wav"
	testsupport.WriteRawWAV(t, cfg, id, testsupport.Sine(220, 8000, 4000), 8000)

	stage := stages.NewExtract(cfg, meta)
	if err := stage.Run(context.Background(), id); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec, err := meta.Read(id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.SampleRate != 8000 || math.Abs(rec.DurationSec-0.5) > 0.01 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestExtractFailsOnMissingRaw(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	meta := metadata.NewStore(cfg.MetadataDir())

	stage := stages.NewExtract(cfg, meta)
	if err := stage.Run(context.Background(), "ghost.wav"); err == nil {
		t.Fatal("expected error for missing raw artifact")
	}
}

func TestExtractFailsOnNonWAV(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	meta := metadata.NewStore(cfg.MetadataDir())

	id := "not-audio.wav"
	testsupport.WriteRawBytes(t, cfg, id, []byte("this is a text file"))

	stage := stages.NewExtract(cfg, meta)
	if err := stage.Run(context.Background(), id); err == nil {
		t.Fatal("expected parse error for non-WAV content")
	}
}
