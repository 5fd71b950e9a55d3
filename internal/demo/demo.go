// Package demo provides the synthetic adapters behind --demo:
// fabricated discovery, probe, metadata and transcode results with
// configurable timing and failure injection, so the scheduler, event flow
// and dashboard can run end-to-end with no real file IO or child
// processes.
package demo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gwlsn/transcast/internal/ffmpeg"
	"github.com/gwlsn/transcast/internal/media"
)

// Config shapes the synthetic workload. Loaded from --demo-config, with
// usable defaults when absent.
type Config struct {
	Count         int     `yaml:"count"`           // synthetic jobs to fabricate
	JobDurationMS int     `yaml:"job_duration_ms"` // per-job transcode time
	SizeBytes     int64   `yaml:"size_bytes"`      // fabricated source size
	OutputRatio   float64 `yaml:"output_ratio"`    // fabricated output/input ratio
	HwCapEvery    int     `yaml:"hw_cap_every"`    // every Nth first attempt fails hw-cap (0 = never)
	FailEvery     int     `yaml:"fail_every"`      // every Nth job fails outright (0 = never)
}

// DefaultConfig is the workload used when no --demo-config is given.
func DefaultConfig() Config {
	return Config{
		Count:         20,
		JobDurationMS: 250,
		SizeBytes:     64 * 1024 * 1024,
		OutputRatio:   0.55,
	}
}

// Load reads a demo workload document.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing demo config %s: %w", path, err)
	}
	return cfg, nil
}

// Suite implements the pipeline's Prober, Transcoder and MetadataSource
// boundaries synthetically.
type Suite struct {
	cfg  Config
	root string // fabricated input root the paths live under

	mu       sync.Mutex
	attempts map[string]int
	seq      int
}

// NewSuite builds the synthetic adapter set; root is the input root the
// fabricated paths are placed under (it must match the run's configured
// input root so path derivation works unchanged).
func NewSuite(cfg Config, root string) *Suite {
	return &Suite{cfg: cfg, root: root, attempts: make(map[string]int)}
}

// Files fabricates the discovery result.
func (s *Suite) Files(context.Context) ([]media.VideoFile, error) {
	files := make([]media.VideoFile, 0, s.cfg.Count)
	for i := 1; i <= s.cfg.Count; i++ {
		files = append(files, media.VideoFile{
			Path: filepath.Join(s.root, fmt.Sprintf("clip_%03d.mp4", i)),
			Size: s.cfg.SizeBytes,
		})
	}
	return files, nil
}

// Probe fabricates stream info.
func (s *Suite) Probe(_ context.Context, path string) (*ffmpeg.ProbeResult, error) {
	return &ffmpeg.ProbeResult{
		Path:       path,
		Size:       s.cfg.SizeBytes,
		Duration:   time.Minute,
		Format:     "mov,mp4,m4a,3gp,3g2,mj2",
		VideoCodec: "h264",
		AudioCodec: "aac",
		Width:      1920,
		Height:     1080,
		Bitrate:    8_000_000,
		FrameRate:  30,
		ColorSpace: "bt709",
		BitDepth:   8,
	}, nil
}

func (s *Suite) ProbeSubtitles(context.Context, string) ([]ffmpeg.SubtitleStream, error) {
	return nil, nil
}

// Transcode simulates one job: it sleeps for the configured duration
// (cancellable), injects hw-cap/failure results per the Every counters,
// and fabricates output sizes.
func (s *Suite) Transcode(ctx context.Context, req ffmpeg.TranscodeRequest) *ffmpeg.TranscodeResult {
	s.mu.Lock()
	s.seq++
	n := s.seq
	s.attempts[req.InputPath]++
	attempt := s.attempts[req.InputPath]
	s.mu.Unlock()

	duration := time.Duration(s.cfg.JobDurationMS) * time.Millisecond
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return &ffmpeg.TranscodeResult{Class: ffmpeg.ClassInterrupted, Message: "interrupted", Elapsed: time.Since(start)}
		case <-ticker.C:
			if req.OnProgress != nil {
				elapsed := time.Since(start)
				req.OnProgress(ffmpeg.Progress{
					Percent: float64(elapsed) / float64(duration) * 100,
					Speed:   1.0,
				})
			}
		case <-deadline.C:
			if s.cfg.FailEvery > 0 && n%s.cfg.FailEvery == 0 {
				return &ffmpeg.TranscodeResult{Class: ffmpeg.ClassFailed, Message: "injected failure", Elapsed: time.Since(start)}
			}
			if s.cfg.HwCapEvery > 0 && n%s.cfg.HwCapEvery == 0 && attempt == 1 {
				return &ffmpeg.TranscodeResult{Class: ffmpeg.ClassHwCapExceeded, Message: "no capable devices found", Elapsed: time.Since(start)}
			}
			return &ffmpeg.TranscodeResult{
				Class:      ffmpeg.ClassCompleted,
				InputSize:  s.cfg.SizeBytes,
				OutputSize: int64(float64(s.cfg.SizeBytes) * s.cfg.OutputRatio),
				Elapsed:    time.Since(start),
			}
		}
	}
}

func (s *Suite) RemuxColorMetadata(_ context.Context, inputPath, _ string) (string, func(), error) {
	return inputPath, func() {}, nil
}

// Fetch fabricates metadata on top of the probed fields.
func (s *Suite) Fetch(_ context.Context, _ string, probed *media.Metadata) (*media.Metadata, error) {
	if probed == nil {
		return &media.Metadata{}, nil
	}
	cp := *probed
	return &cp, nil
}

func (s *Suite) CopyPreserved(context.Context, string, string, map[string]string) error {
	return nil
}

func (s *Suite) VerifyPreserved(context.Context, string) error {
	return nil
}
