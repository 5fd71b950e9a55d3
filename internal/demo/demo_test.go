package demo

import (
	"context"
	"testing"
	"time"

	"github.com/gwlsn/transcast/internal/ffmpeg"
)

func TestSuiteFabricatesFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Count = 3
	s := NewSuite(cfg, "/demo/in")

	files, err := s.Files(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	if files[0].Path != "/demo/in/clip_001.mp4" || files[0].Size != cfg.SizeBytes {
		t.Fatalf("unexpected first file %+v", files[0])
	}
}

func TestSuiteTranscodeCompletesWithConfiguredRatio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JobDurationMS = 10
	cfg.OutputRatio = 0.5
	s := NewSuite(cfg, "/demo/in")

	res := s.Transcode(context.Background(), ffmpeg.TranscodeRequest{InputPath: "/demo/in/clip_001.mp4"})
	if res.Class != ffmpeg.ClassCompleted {
		t.Fatalf("class = %s", res.Class)
	}
	if res.OutputSize != cfg.SizeBytes/2 {
		t.Fatalf("output size %d, want half of %d", res.OutputSize, cfg.SizeBytes)
	}
}

func TestSuiteTranscodeHonorsCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JobDurationMS = 60_000
	s := NewSuite(cfg, "/demo/in")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := s.Transcode(ctx, ffmpeg.TranscodeRequest{InputPath: "/demo/in/clip_001.mp4"})
	if res.Class != ffmpeg.ClassInterrupted {
		t.Fatalf("cancelled transcode must classify interrupted, got %s", res.Class)
	}
}

func TestSuiteHwCapInjectionOnlyFirstAttempt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JobDurationMS = 1
	cfg.HwCapEvery = 1
	s := NewSuite(cfg, "/demo/in")

	req := ffmpeg.TranscodeRequest{InputPath: "/demo/in/clip_001.mp4"}
	if res := s.Transcode(context.Background(), req); res.Class != ffmpeg.ClassHwCapExceeded {
		t.Fatalf("first attempt must fail hw-cap, got %s", res.Class)
	}
	if res := s.Transcode(context.Background(), req); res.Class != ffmpeg.ClassCompleted {
		t.Fatalf("second attempt must complete, got %s", res.Class)
	}
}
