package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PerRootOverride is the allow-listed subset of config keys an
// input-root-scoped document may set: general flags, encoder
// args, autorotate, and a single-key `cq` override. Anything outside this
// allow-list in the YAML is ignored rather than erroring, since the
// document may be hand-edited per root.
type PerRootOverride struct {
	Root string `yaml:"-"`

	CleanErrors            *bool    `yaml:"clean_errors"`
	SkipAlreadyTargetCodec *bool    `yaml:"skip_av1"`
	MinSizeBytes           *int64   `yaml:"min_size_bytes"`
	MinCompressionRatio    *float64 `yaml:"min_compression_ratio"`

	EncoderArgsGPU []string `yaml:"encoder_args_gpu"`
	EncoderArgsCPU []string `yaml:"encoder_args_cpu"`

	AutoRotate     *bool `yaml:"autorotate"`
	ManualRotation *int  `yaml:"manual_rotation"`

	CQ *int `yaml:"cq"`
}

// LoadRootOverride loads one per-root override document. A missing file is
// not an error; not every root needs one.
func LoadRootOverride(root, path string) (*PerRootOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ov PerRootOverride
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("parsing per-root override %s: %w", path, err)
	}
	ov.Root = root
	return &ov, nil
}

// NearestAncestor returns the override whose Root is the longest prefix of
// path among overrides, or nil if none matches. This implements the
// "nearest-ancestor wins" rule.
func NearestAncestor(overrides []*PerRootOverride, path string) *PerRootOverride {
	var best *PerRootOverride
	bestLen := -1
	clean := filepath.Clean(path)
	for _, ov := range overrides {
		root := filepath.Clean(ov.Root)
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			if len(root) > bestLen {
				best = ov
				bestLen = len(root)
			}
		}
	}
	return best
}
