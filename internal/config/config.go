// Package config loads and merges the run's effective configuration from
// a global YAML document, optional per-input-root override documents
// (nearest-ancestor wins), and CLI flags, combined with precedence
// CLI > per-root > global > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gwlsn/transcast/internal/media"
)

// GlobalConfig is the root YAML document, unmarshaled once per run.
type GlobalConfig struct {
	InputRoots   []string          `yaml:"input_roots"`
	OutputRoots  map[string]string `yaml:"output_roots"`
	ErrorRoots   map[string]string `yaml:"error_roots"`
	SuffixOutput string            `yaml:"suffix_output_dir"`
	SuffixError  string            `yaml:"suffix_error_dir"`

	AcceptedExtensions  []string `yaml:"accepted_extensions"`
	MinSizeBytes        int64    `yaml:"min_size_bytes"`
	MinCompressionRatio float64  `yaml:"min_compression_ratio"`

	QualityMode string `yaml:"quality_mode"` // "cq" or "rate"
	Quality     int    `yaml:"quality"`      // baseline CQ/CRF index
	RateBPS     string `yaml:"bps"`
	RateMinRate string `yaml:"minrate"`
	RateMaxRate string `yaml:"maxrate"`
	RateCap     string `yaml:"cap"`

	CameraOverridesRaw yaml.Node `yaml:"camera_overrides"`
	CameraInclude      []string  `yaml:"camera"`

	SkipAlreadyTargetCodec bool `yaml:"skip_av1"`

	RotationRulesRaw []RotationRuleYAML `yaml:"rotation_rules"`
	ManualRotation   *int               `yaml:"manual_rotation"`

	Mode        string `yaml:"mode"`         // "gpu" or "cpu"
	TargetCodec string `yaml:"target_codec"` // "av1" or "hevc"
	CPUFallback bool   `yaml:"cpu_fallback"`

	EncoderArgsGPU []string `yaml:"encoder_args_gpu"`
	EncoderArgsCPU []string `yaml:"encoder_args_cpu"`

	MaxThreads     int     `yaml:"threads"`
	RuntimeMax     int     `yaml:"runtime_max_threads"`
	PrefetchFactor float64 `yaml:"prefetch_factor"`

	QueueSort string `yaml:"queue_sort"`
	QueueSeed int64  `yaml:"queue_seed"`

	CleanErrors       bool   `yaml:"clean_errors"`
	VerifyFailAction  string `yaml:"verify_fail_action"`
	ErrorMarkerThresh int    `yaml:"error_marker_threshold"`

	OriginalHandling string `yaml:"original_handling"`
	TempPath         string `yaml:"temp_path"`
	FFmpegPath       string `yaml:"ffmpeg_path"`
	FFprobePath      string `yaml:"ffprobe_path"`

	LogPath  string `yaml:"log_path"`
	LogLevel string `yaml:"log_level"`

	Demo       bool   `yaml:"demo"`
	DemoConfig string `yaml:"demo_config"`

	Wait bool `yaml:"wait"`
	Bell bool `yaml:"bell"`
}

// DefaultGlobalConfig returns the built-in defaults, applied before any
// YAML document is merged in.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		SuffixOutput:           "_out",
		SuffixError:            "_err",
		AcceptedExtensions:     []string{".mp4", ".mkv", ".mov", ".avi", ".m4v", ".webm", ".ts"},
		MinSizeBytes:           1024 * 1024,
		MinCompressionRatio:    0.10,
		QualityMode:            string(media.QualityModeCQ),
		Quality:                26,
		SkipAlreadyTargetCodec: false,
		Mode:                   string(ModeGPU),
		TargetCodec:            "av1",
		CPUFallback:            true,
		MaxThreads:             4,
		RuntimeMax:             8,
		PrefetchFactor:         1.0,
		QueueSort:              string(SortName),
		CleanErrors:            false,
		VerifyFailAction:       string(VerifyOff),
		ErrorMarkerThresh:      100,
		OriginalHandling:       string(HandlingKeep),
		FFmpegPath:             "ffmpeg",
		FFprobePath:            "ffprobe",
		LogLevel:               "info",
		Wait:                   false,
		Bell:                   false,
	}
}

// LoadGlobal reads the global YAML config, creating it with defaults if
// absent.
func LoadGlobal(path string) (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if saveErr := cfg.Save(path); saveErr != nil {
				fmt.Printf("warning: could not create config file: %v\n", saveErr)
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *GlobalConfig) applyDefaults() {
	d := DefaultGlobalConfig()
	if c.SuffixOutput == "" {
		c.SuffixOutput = d.SuffixOutput
	}
	if c.SuffixError == "" {
		c.SuffixError = d.SuffixError
	}
	if len(c.AcceptedExtensions) == 0 {
		c.AcceptedExtensions = d.AcceptedExtensions
	}
	if c.QualityMode == "" {
		c.QualityMode = d.QualityMode
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.TargetCodec == "" {
		c.TargetCodec = d.TargetCodec
	}
	if c.MaxThreads == 0 {
		c.MaxThreads = d.MaxThreads
	}
	if c.RuntimeMax == 0 {
		c.RuntimeMax = d.RuntimeMax
	}
	if c.PrefetchFactor == 0 {
		c.PrefetchFactor = d.PrefetchFactor
	}
	if c.QueueSort == "" {
		c.QueueSort = d.QueueSort
	}
	if c.VerifyFailAction == "" {
		c.VerifyFailAction = d.VerifyFailAction
	}
	if c.ErrorMarkerThresh == 0 {
		c.ErrorMarkerThresh = d.ErrorMarkerThresh
	}
	if c.OriginalHandling == "" {
		c.OriginalHandling = d.OriginalHandling
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = d.FFmpegPath
	}
	if c.FFprobePath == "" {
		c.FFprobePath = d.FFprobePath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Save writes the config back to path as YAML, creating the parent
// directory if needed.
func (c *GlobalConfig) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
