package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/decide"
	"github.com/gwlsn/transcast/internal/eventbus"
	"github.com/gwlsn/transcast/internal/events"
	"github.com/gwlsn/transcast/internal/ffmpeg"
	"github.com/gwlsn/transcast/internal/logger"
	"github.com/gwlsn/transcast/internal/media"
)

// Prober is the Probe Adapter boundary.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
	ProbeSubtitles(ctx context.Context, path string) ([]ffmpeg.SubtitleStream, error)
}

// Transcoder is the Transcoder Adapter boundary, including
// the color-space remux pre-step it also hosts.
type Transcoder interface {
	Transcode(ctx context.Context, req ffmpeg.TranscodeRequest) *ffmpeg.TranscodeResult
	RemuxColorMetadata(ctx context.Context, inputPath, codec string) (string, func(), error)
}

// MetadataSource is the Metadata Adapter boundary fronted
// by the cache.
type MetadataSource interface {
	Fetch(ctx context.Context, path string, probed *media.Metadata) (*media.Metadata, error)
	CopyPreserved(ctx context.Context, source, target string, extraTags map[string]string) error
	VerifyPreserved(ctx context.Context, path string) error
}

// Outcome is what a finished pipeline run reports back to the driver: the
// terminal status, whether the job should be requeued on the CPU path, and
// any scheduler escalation the verify step requested.
type Outcome struct {
	Status         Status
	RequeueCPU     bool
	PauseRequested bool
	FatalRequested bool
}

// Pipeline drives one job through its state machine. It holds only
// immutable collaborators and is safe for concurrent Run calls from the
// worker pool.
type Pipeline struct {
	cfg        *config.EffectiveConfig
	bus        *eventbus.Bus
	prober     Prober
	transcoder Transcoder
	meta       MetadataSource
}

// NewPipeline wires the per-job state machine to its adapters.
func NewPipeline(cfg *config.EffectiveConfig, bus *eventbus.Bus, prober Prober, transcoder Transcoder, meta MetadataSource) *Pipeline {
	return &Pipeline{cfg: cfg, bus: bus, prober: prober, transcoder: transcoder, meta: meta}
}

// Run executes the full decision/execution state machine for one claimed
// file. Exactly one terminal-classification event publishes per call,
// except for the CPU-fallback requeue which publishes none (the job is
// not terminal yet).
func (p *Pipeline) Run(ctx context.Context, item PendingItem) Outcome {
	file := item.File
	cfg := p.cfg.ForPath(file.Path)

	mode := cfg.Mode
	if item.ForceCPU {
		mode = config.ModeCPU
	}
	job := NewJob(file, mode)

	mapping, rel, err := MappingFor(cfg.Roots, file.Path)
	if err != nil {
		return p.fail(job, err.Error(), false)
	}

	baseline := cfg.EncoderArgsGPU
	if mode == config.ModeCPU {
		baseline = cfg.EncoderArgsCPU
	}
	container := ffmpeg.ContainerFromArgs(baseline)
	job.OutputPath = OutputPath(mapping, rel, ffmpeg.OutputExtension(container))
	job.MarkerPath = MarkerPath(mapping, rel)

	// Step 2: a stale marker from a previous run, with clean-errors off,
	// fails the job without touching the source again.
	if MarkerExists(job.MarkerPath) && !cfg.CleanErrors {
		return p.fail(job, "existing-error-marker", false)
	}

	// Step 3: probe.
	probeRes, err := p.prober.Probe(ctx, file.Path)
	if err != nil {
		return p.fail(job, fmt.Sprintf("corrupted: %v", err), true)
	}
	probed := probeRes.ToMetadata()

	// Step 4: color-space remux pre-step. The intermediate replaces the
	// transcode input; it is removed on every exit path.
	input := file.Path
	if ffmpeg.NeedsColorRemux(probed) {
		intermediate, cleanup, remuxErr := p.transcoder.RemuxColorMetadata(ctx, file.Path, probed.Codec)
		if remuxErr != nil {
			return p.fail(job, fmt.Sprintf("color remux: %v", remuxErr), true)
		}
		defer cleanup()
		input = intermediate
	}

	// Step 5: metadata through the cache. An extraction failure degrades
	// to probe-only metadata with a warning; it is not a terminal failure.
	meta, err := p.meta.Fetch(ctx, file.Path, probed)
	if err != nil {
		logger.Warn("metadata extraction failed", "path", file.Path, "error", err)
		meta = probed
	}
	job.File.Metadata = meta

	// Step 6: a source this system already produced is relocated to the
	// output tree without re-encoding.
	if meta.PreviouslyEncoded {
		dest := OutputPath(mapping, rel, filepath.Ext(file.Path))
		if err := moveFile(file.Path, dest); err != nil {
			return p.fail(job, fmt.Sprintf("relocate already-encoded source: %v", err), true)
		}
		job.Status = StatusCompleted
		p.publishTerminal(job, events.Event{
			Kind:    events.KindJobCompleted,
			Outcome: events.OutcomeAlreadyEncoded,
			Reason:  "already-encoded",
		})
		return Outcome{Status: StatusCompleted}
	}

	// Step 7: filter checks, in order.
	if cfg.SkipAlreadyTargetCodec && probeRes.AlreadyTargetCodec(ffmpeg.Codec(cfg.TargetCodec)) {
		return p.skip(job, "already-target-codec")
	}
	if len(cfg.CameraInclude) > 0 && !cameraIncluded(cfg.CameraInclude, meta.CameraModel) {
		return p.skip(job, "camera-filter")
	}

	// Step 8: decide quality and rotation.
	job.Quality, err = decide.Quality(&cfg, meta)
	if err != nil {
		return p.fail(job, fmt.Sprintf("quality decision: %v", err), true)
	}
	job.Rotation = decide.Rotation(&cfg, filepath.Base(file.Path))

	// Step 9: announce and transcode.
	spec := ffmpeg.TranscodeSpec{
		Codec:            ffmpeg.Codec(cfg.TargetCodec),
		Encoder:          encoderFor(mode, ffmpeg.Codec(cfg.TargetCodec), probeRes),
		Quality:          job.Quality,
		Rotation:         job.Rotation,
		SourceAudioCodec: probed.AudioCodec,
		Container:        container,
	}
	if container == "mkv" {
		if subs, subErr := p.prober.ProbeSubtitles(ctx, input); subErr == nil && len(subs) > 0 {
			compatible, dropped := ffmpeg.FilterMKVCompatible(subs)
			spec.Subtitles = compatible
			if len(dropped) > 0 {
				logger.Warn("dropping MKV-incompatible subtitle streams",
					"path", file.Path, "codecs", strings.Join(dropped, ","))
				p.bus.Publish(events.Event{
					Kind:       events.KindActionMessage,
					JobID:      job.ID,
					SourcePath: file.Path,
					Message:    fmt.Sprintf("dropping subtitles not muxable to MKV: %s", strings.Join(dropped, ", ")),
				})
			}
		}
	}
	inputArgs, outputArgs, err := ffmpeg.BuildArgs(spec)
	if err != nil {
		return p.fail(job, fmt.Sprintf("argument build: %v", err), true)
	}
	outputArgs = append(outputArgs, stripFormatFlag(baseline)...)

	p.bus.Publish(events.Event{
		Kind:       events.KindJobStarted,
		JobID:      job.ID,
		SourcePath: file.Path,
		Message:    string(mode),
	})

	result := p.transcoder.Transcode(ctx, ffmpeg.TranscodeRequest{
		InputPath:  input,
		OutputPath: job.OutputPath,
		InputArgs:  inputArgs,
		OutputArgs: outputArgs,
		Duration:   probed.Duration,
		OnProgress: func(pr ffmpeg.Progress) {
			p.bus.Publish(events.Event{
				Kind:       events.KindJobProgress,
				JobID:      job.ID,
				SourcePath: file.Path,
				Progress: events.Progress{
					Percent: pr.Percent,
					Speed:   pr.Speed,
					ETA:     pr.ETA.Truncate(time.Second).String(),
				},
			})
		},
	})

	// Steps 10-13: classify.
	switch result.Class {
	case ffmpeg.ClassHwCapExceeded:
		if cfg.CPUFallback && mode == config.ModeGPU {
			RemoveMarker(job.MarkerPath)
			logger.Info("hardware capability exceeded, requeueing on CPU", "path", file.Path)
			return Outcome{Status: StatusPending, RequeueCPU: true}
		}
		if err := WriteMarker(job.MarkerPath, "hardware lacks capability: "+result.Message); err != nil {
			logger.Error("marker write failed", "path", job.MarkerPath, "error", err)
		}
		job.Status = StatusHwCapExceeded
		p.publishTerminal(job, events.Event{
			Kind:   events.KindHwCapExceeded,
			Reason: result.Message,
		})
		return Outcome{Status: StatusHwCapExceeded}

	case ffmpeg.ClassInterrupted:
		job.Status = StatusInterrupted
		p.publishTerminal(job, events.Event{
			Kind:   events.KindJobFailed,
			Reason: "interrupted",
		})
		return Outcome{Status: StatusInterrupted}

	case ffmpeg.ClassFailed:
		return p.fail(job, result.Message, true)
	}

	return p.finishCompleted(ctx, job, cfg, result)
}

// finishCompleted runs the post-steps of a successful transcode: preserved-
// metadata copy, the minimum-ratio check, verify-on-complete, and the
// single terminal event.
func (p *Pipeline) finishCompleted(ctx context.Context, job *Job, cfg config.EffectiveConfig, result *ffmpeg.TranscodeResult) Outcome {
	// Step 13: metadata copy first; its failure is a warning, never fatal.
	if err := p.meta.CopyPreserved(ctx, job.File.Path, job.OutputPath, nil); err != nil {
		logger.Warn("preserved-metadata copy failed", "target", job.OutputPath, "error", err)
		p.bus.Publish(events.Event{
			Kind:       events.KindActionMessage,
			JobID:      job.ID,
			SourcePath: job.File.Path,
			Message:    fmt.Sprintf("metadata copy failed: %v", err),
		})
	}

	// Ratio check: the saved fraction (in - out) / in strictly below the
	// threshold keeps the original; exactly at the threshold keeps the
	// compressed output.
	saved := float64(result.InputSize-result.OutputSize) / float64(result.InputSize)
	if saved < cfg.MinCompressionRatio {
		os.Remove(job.OutputPath)
		mapping, rel, err := MappingFor(cfg.Roots, job.File.Path)
		if err != nil {
			return p.fail(job, err.Error(), true)
		}
		keptPath := OutputPath(mapping, rel, filepath.Ext(job.File.Path))
		if err := ffmpeg.CopyPreservingTimes(job.File.Path, keptPath); err != nil {
			return p.fail(job, fmt.Sprintf("keep original: %v", err), true)
		}
		job.OutputPath = keptPath
		job.Status = StatusKeptOriginal
		p.publishTerminal(job, events.Event{
			Kind:    events.KindJobCompleted,
			Outcome: events.OutcomeKeptOriginal,
			Reason:  fmt.Sprintf("compression ratio %.3f below minimum %.3f", saved, cfg.MinCompressionRatio),
		})
		return Outcome{Status: StatusKeptOriginal}
	}

	// Step 14: verify-on-complete.
	if cfg.VerifyFailAction != config.VerifyOff {
		if err := p.verifyOutput(ctx, job.OutputPath); err != nil {
			return p.verifyFailed(job, cfg.VerifyFailAction, err)
		}
	}

	if cfg.OriginalHandling == config.HandlingReplace {
		if err := os.Remove(job.File.Path); err != nil {
			logger.Warn("could not remove original after transcode", "path", job.File.Path, "error", err)
		}
	}

	job.Status = StatusCompleted
	p.publishTerminal(job, events.Event{
		Kind:    events.KindJobCompleted,
		Outcome: events.OutcomeAccepted,
		Message: fmt.Sprintf("%d -> %d bytes", result.InputSize, result.OutputSize),
	})
	return Outcome{Status: StatusCompleted}
}

// verifyOutput probes the finished output and asserts the preserved custom
// tag survived the metadata copy.
func (p *Pipeline) verifyOutput(ctx context.Context, outputPath string) error {
	if _, err := p.prober.Probe(ctx, outputPath); err != nil {
		return fmt.Errorf("output probe: %w", err)
	}
	return p.meta.VerifyPreserved(ctx, outputPath)
}

// verifyFailed maps a verify failure onto the configured action: log marks
// the job failed and continues, pause freezes the scheduler until a
// refresh or shutdown, exit tears the run down.
func (p *Pipeline) verifyFailed(job *Job, action config.VerifyFailAction, verifyErr error) Outcome {
	reason := fmt.Sprintf("verify failed: %v", verifyErr)
	if err := WriteMarker(job.MarkerPath, reason); err != nil {
		logger.Error("marker write failed", "path", job.MarkerPath, "error", err)
	}
	job.Status = StatusFailed
	p.publishTerminal(job, events.Event{
		Kind:   events.KindJobFailed,
		Reason: reason,
	})

	out := Outcome{Status: StatusFailed}
	switch action {
	case config.VerifyPause:
		p.bus.Publish(events.Event{Kind: events.KindPauseRequested, Reason: reason})
		out.PauseRequested = true
	case config.VerifyExit:
		p.bus.Publish(events.Event{Kind: events.KindFatalRequested, Reason: reason})
		out.FatalRequested = true
	}
	return out
}

// fail marks the job failed, optionally persisting the reason as an error
// marker, and publishes the terminal event.
func (p *Pipeline) fail(job *Job, reason string, writeMarker bool) Outcome {
	if writeMarker && job.MarkerPath != "" {
		if err := WriteMarker(job.MarkerPath, reason); err != nil {
			logger.Error("marker write failed", "path", job.MarkerPath, "error", err)
		}
	}
	job.Status = StatusFailed
	p.publishTerminal(job, events.Event{
		Kind:   events.KindJobFailed,
		Reason: reason,
	})
	return Outcome{Status: StatusFailed}
}

// skip ends the job without work: no marker, one JobCompleted event with
// the skip subcategory.
func (p *Pipeline) skip(job *Job, reason string) Outcome {
	job.Status = StatusSkipped
	p.publishTerminal(job, events.Event{
		Kind:    events.KindJobCompleted,
		Outcome: events.OutcomeSkipped,
		Reason:  reason,
	})
	return Outcome{Status: StatusSkipped}
}

func (p *Pipeline) publishTerminal(job *Job, e events.Event) {
	e.JobID = job.ID
	e.SourcePath = job.File.Path
	p.bus.Publish(e)
}

// cameraIncluded implements the camera include-filter: the job passes when
// any configured pattern occurs case-insensitively in the camera model.
func cameraIncluded(patterns []string, cameraModel string) bool {
	model := strings.ToLower(cameraModel)
	for _, pat := range patterns {
		if pat != "" && strings.Contains(model, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}

// encoderFor selects the hardware path for GPU mode or software for CPU
// mode. In GPU mode the best detected encoder is tried first; when the
// probed source cannot be hardware-decoded on that path, the fallback
// chain is walked before the attempt instead of wasting a doomed run.
// Runtime hardware-capability failures still go through the CPU requeue.
func encoderFor(mode config.TranscodeMode, codec ffmpeg.Codec, probe *ffmpeg.ProbeResult) ffmpeg.HWAccel {
	if mode == config.ModeCPU {
		return ffmpeg.HWAccelNone
	}
	enc := ffmpeg.GetBestEncoderForCodec(codec)
	for enc != nil && enc.Accel != ffmpeg.HWAccelNone &&
		ffmpeg.RequiresSoftwareDecode(probe.VideoCodec, probe.Profile, probe.BitDepth, enc.Accel) {
		enc = ffmpeg.GetFallbackEncoder(enc.Accel, codec)
	}
	if enc == nil {
		return ffmpeg.HWAccelNone
	}
	return enc.Accel
}

// stripFormatFlag drops a "-f <name>" pair from baseline encoder args; the
// container is resolved separately and BuildArgs emits its own -f.
func stripFormatFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "-f" && i+1 < len(args) {
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out
}

// moveFile renames src to dst, falling back to copy-then-delete across
// filesystems, creating dst's parents.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := ffmpeg.CopyPreservingTimes(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
