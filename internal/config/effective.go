package config

import (
	"fmt"
	"path/filepath"

	"github.com/gwlsn/transcast/internal/media"
)

// CLIFlags mirrors the command-line flag surface. A nil pointer/empty
// slice means "not set on the command line" so the merge can tell that
// apart from an explicit zero value.
type CLIFlags struct {
	InputRoots []string // positional arg, comma-split; wholesale replace, no merge

	ConfigPath *string
	Threads    *int
	Quality    *int
	QualityMode *string
	BPS, MinRate, MaxRate *string
	GPU, CPU   *bool
	QueueSort  *string
	QueueSeed  *int64
	SkipAV1    *bool
	Camera     []string
	MinSize    *int64
	MinRatio   *float64
	Rotate180  *bool
	CleanErrors *bool
	LogPath    *string
	Debug      *bool
	Demo       *bool
	DemoConfig *string
	VerifyFailAction *string
	Wait, Bell *bool
}

// RootMapping is the resolved output/error root pair for one input root.
type RootMapping struct {
	Input  string
	Output string
	Error  string
}

// EffectiveConfig is the immutable, once-per-run configuration snapshot.
// It is built by Merge (demo mode in main then fills in Roots when none
// are configured) and not mutated once the run starts; a job's per-root
// behavior is resolved via ForPath.
type EffectiveConfig struct {
	Roots []RootMapping

	AcceptedExtensions  []string
	MinSizeBytes        int64
	MinCompressionRatio float64

	QualityMode media.QualityMode
	Quality     int
	RateBPS, RateMinRate, RateMaxRate float64
	RateClass                        media.RateClass
	RateCap                          float64
	HasRateCap                       bool

	CameraOverrides []CameraOverrideEntry
	CameraInclude   []string

	SkipAlreadyTargetCodec bool

	RotationRules  []RotationRule
	ManualRotation *media.Rotation

	Mode        TranscodeMode
	TargetCodec string
	CPUFallback bool

	EncoderArgsGPU, EncoderArgsCPU []string

	MaxThreads     int
	RuntimeMax     int
	PrefetchFactor float64

	QueueSort QueueSortMode
	QueueSeed int64

	CleanErrors       bool
	VerifyFailAction  VerifyFailAction
	ErrorMarkerThresh int

	OriginalHandling OriginalHandling
	TempPath         string
	FFmpegPath       string
	FFprobePath      string

	LogPath  string
	LogLevel string

	Demo       bool
	DemoConfig string

	Wait, Bell bool

	perRoot []*PerRootOverride
}

// Merge combines the global document, the loaded per-root override
// documents, and CLI flags with precedence CLI > per-root > global >
// defaults, and compiles/validates the derived tables.
func Merge(global *GlobalConfig, perRoot []*PerRootOverride, cli CLIFlags) (*EffectiveConfig, error) {
	ec := &EffectiveConfig{
		AcceptedExtensions:     global.AcceptedExtensions,
		MinSizeBytes:           global.MinSizeBytes,
		MinCompressionRatio:    global.MinCompressionRatio,
		Quality:                global.Quality,
		CameraInclude:          global.CameraInclude,
		SkipAlreadyTargetCodec: global.SkipAlreadyTargetCodec,
		TargetCodec:            global.TargetCodec,
		CPUFallback:            global.CPUFallback,
		EncoderArgsGPU:         global.EncoderArgsGPU,
		EncoderArgsCPU:         global.EncoderArgsCPU,
		MaxThreads:             global.MaxThreads,
		RuntimeMax:             global.RuntimeMax,
		PrefetchFactor:         global.PrefetchFactor,
		QueueSeed:              global.QueueSeed,
		CleanErrors:            global.CleanErrors,
		ErrorMarkerThresh:      global.ErrorMarkerThresh,
		OriginalHandling:       OriginalHandling(global.OriginalHandling),
		TempPath:               global.TempPath,
		FFmpegPath:             global.FFmpegPath,
		FFprobePath:            global.FFprobePath,
		LogPath:                global.LogPath,
		LogLevel:               global.LogLevel,
		Demo:                   global.Demo,
		DemoConfig:             global.DemoConfig,
		Wait:                   global.Wait,
		Bell:                   global.Bell,
		perRoot:                perRoot,
	}

	ec.QualityMode = media.QualityMode(global.QualityMode)
	ec.Mode = TranscodeMode(global.Mode)
	ec.QueueSort = QueueSortMode(global.QueueSort).Normalize()
	ec.VerifyFailAction = VerifyFailAction(global.VerifyFailAction)

	if global.ManualRotation != nil {
		r := media.Rotation(*global.ManualRotation)
		ec.ManualRotation = &r
	}

	// Rate-mode baseline values (global level); per-camera overrides are
	// resolved later against a specific job's metadata.
	if err := resolveRates(ec, global.RateBPS, global.RateMinRate, global.RateMaxRate, global.RateCap); err != nil {
		return nil, err
	}

	rules, err := CompileRotationRules(global.RotationRulesRaw)
	if err != nil {
		return nil, err
	}
	ec.RotationRules = rules

	overrides, err := ParseCameraOverrides(&global.CameraOverridesRaw)
	if err != nil {
		return nil, err
	}
	ec.CameraOverrides = overrides

	// --- input roots + output/error mapping ---
	inputs := global.InputRoots
	if len(cli.InputRoots) > 0 {
		inputs = cli.InputRoots
	}
	roots := make([]RootMapping, 0, len(inputs))
	for _, in := range inputs {
		resolved, err := filepath.EvalSymlinks(in)
		if err != nil {
			resolved = in // best effort; scanner will surface the real error
		}
		out := global.OutputRoots[in]
		if out == "" {
			out = filepath.Join(resolved, global.SuffixOutput)
		}
		errRoot := global.ErrorRoots[in]
		if errRoot == "" {
			errRoot = filepath.Join(resolved, global.SuffixError)
		}
		roots = append(roots, RootMapping{Input: resolved, Output: out, Error: errRoot})
	}
	ec.Roots = roots

	// --- CLI overrides, highest precedence ---
	if cli.Threads != nil {
		ec.MaxThreads = *cli.Threads
	}
	if cli.Quality != nil {
		ec.Quality = *cli.Quality
	}
	if cli.QualityMode != nil {
		ec.QualityMode = media.QualityMode(*cli.QualityMode)
	}
	if cli.BPS != nil || cli.MinRate != nil || cli.MaxRate != nil {
		bps, minr, maxr := global.RateBPS, global.RateMinRate, global.RateMaxRate
		if cli.BPS != nil {
			bps = *cli.BPS
		}
		if cli.MinRate != nil {
			minr = *cli.MinRate
		}
		if cli.MaxRate != nil {
			maxr = *cli.MaxRate
		}
		if err := resolveRates(ec, bps, minr, maxr, global.RateCap); err != nil {
			return nil, err
		}
	}
	if cli.GPU != nil && *cli.GPU {
		ec.Mode = ModeGPU
	}
	if cli.CPU != nil && *cli.CPU {
		ec.Mode = ModeCPU
	}
	if cli.QueueSort != nil {
		ec.QueueSort = QueueSortMode(*cli.QueueSort).Normalize()
	}
	if cli.QueueSeed != nil {
		ec.QueueSeed = *cli.QueueSeed
	}
	if cli.SkipAV1 != nil {
		ec.SkipAlreadyTargetCodec = *cli.SkipAV1
	}
	if len(cli.Camera) > 0 {
		ec.CameraInclude = cli.Camera
	}
	if cli.MinSize != nil {
		ec.MinSizeBytes = *cli.MinSize
	}
	if cli.MinRatio != nil {
		ec.MinCompressionRatio = *cli.MinRatio
	}
	if cli.Rotate180 != nil && *cli.Rotate180 {
		r := media.Rotation180
		ec.ManualRotation = &r
	}
	if cli.CleanErrors != nil {
		ec.CleanErrors = *cli.CleanErrors
	}
	if cli.LogPath != nil {
		ec.LogPath = *cli.LogPath
	}
	if cli.Debug != nil {
		if *cli.Debug {
			ec.LogLevel = "debug"
		} else if ec.LogLevel == "debug" {
			ec.LogLevel = "info"
		}
	}
	if cli.Demo != nil {
		ec.Demo = *cli.Demo
	}
	if cli.DemoConfig != nil {
		ec.DemoConfig = *cli.DemoConfig
	}
	if cli.VerifyFailAction != nil {
		ec.VerifyFailAction = VerifyFailAction(*cli.VerifyFailAction)
	}
	if cli.Wait != nil {
		ec.Wait = *cli.Wait
	}
	if cli.Bell != nil {
		ec.Bell = *cli.Bell
	}

	if err := ec.validate(); err != nil {
		return nil, err
	}
	return ec, nil
}

func resolveRates(ec *EffectiveConfig, bps, minrate, maxrate, cap string) error {
	var classes []media.RateClass
	if bps != "" {
		v, c, err := ParseRateValue(bps)
		if err != nil {
			return fmt.Errorf("bps: %w", err)
		}
		ec.RateBPS, ec.RateClass = v, c
		classes = append(classes, c)
	}
	if minrate != "" {
		v, c, err := ParseRateValue(minrate)
		if err != nil {
			return fmt.Errorf("minrate: %w", err)
		}
		ec.RateMinRate = v
		classes = append(classes, c)
	}
	if maxrate != "" {
		v, c, err := ParseRateValue(maxrate)
		if err != nil {
			return fmt.Errorf("maxrate: %w", err)
		}
		ec.RateMaxRate = v
		classes = append(classes, c)
	}
	if !SameClass(classes...) {
		return fmt.Errorf("rate-mode bps/minrate/maxrate must all be absolute or all relative")
	}
	if cap != "" {
		v, c, err := ParseRateValue(cap)
		if err != nil {
			return fmt.Errorf("cap: %w", err)
		}
		if c != media.RateClassAbsolute {
			return fmt.Errorf("cap must be an absolute value")
		}
		ec.RateCap, ec.HasRateCap = v, true
	}
	return nil
}

func (ec *EffectiveConfig) validate() error {
	if err := ValidateThreads(ec.MaxThreads); err != nil {
		return err
	}
	if ec.QualityMode == media.QualityModeCQ {
		if err := ValidateCQ(ec.Quality); err != nil {
			return err
		}
	}
	if err := ValidateMinRatio(ec.MinCompressionRatio); err != nil {
		return err
	}
	if !ec.QueueSort.Valid() {
		return fmt.Errorf("invalid queue_sort %q", ec.QueueSort)
	}
	if !ec.VerifyFailAction.Valid() {
		return fmt.Errorf("invalid verify_fail_action %q", ec.VerifyFailAction)
	}
	if ec.OriginalHandling != "" && !ec.OriginalHandling.Valid() {
		return fmt.Errorf("invalid original_handling %q", ec.OriginalHandling)
	}
	if ec.TargetCodec != "av1" && ec.TargetCodec != "hevc" {
		return fmt.Errorf("invalid target_codec %q", ec.TargetCodec)
	}
	return nil
}

// ForPath resolves the nearest-ancestor per-root override (if any) for a
// job's source path, applying its allow-listed fields on top of the
// effective CleanErrors/SkipAlreadyTargetCodec/MinSize/MinRatio/
// EncoderArgs/rotation settings. The returned copy is used for decisions
// about this one job only; ec itself never changes.
func (ec *EffectiveConfig) ForPath(path string) EffectiveConfig {
	ov := NearestAncestor(ec.perRoot, path)
	if ov == nil {
		return *ec
	}
	job := *ec
	if ov.CleanErrors != nil {
		job.CleanErrors = *ov.CleanErrors
	}
	if ov.SkipAlreadyTargetCodec != nil {
		job.SkipAlreadyTargetCodec = *ov.SkipAlreadyTargetCodec
	}
	if ov.MinSizeBytes != nil {
		job.MinSizeBytes = *ov.MinSizeBytes
	}
	if ov.MinCompressionRatio != nil {
		job.MinCompressionRatio = *ov.MinCompressionRatio
	}
	if len(ov.EncoderArgsGPU) > 0 {
		job.EncoderArgsGPU = ov.EncoderArgsGPU
	}
	if len(ov.EncoderArgsCPU) > 0 {
		job.EncoderArgsCPU = ov.EncoderArgsCPU
	}
	if ov.ManualRotation != nil {
		r := media.Rotation(*ov.ManualRotation)
		job.ManualRotation = &r
	} else if ov.AutoRotate != nil && !*ov.AutoRotate {
		job.ManualRotation = nil
		job.RotationRules = nil
	}
	if ov.CQ != nil {
		job.Quality = *ov.CQ
	}
	return job
}
