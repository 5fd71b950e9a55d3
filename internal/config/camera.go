package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gwlsn/transcast/internal/media"
)

// CameraOverrideEntry is one row of the ordered camera-pattern override
// table: Pattern is matched
// case-insensitively as a substring against any EXIF/XMP string field by
// the Metadata Adapter; first match in table order wins.
type CameraOverrideEntry struct {
	Pattern  string
	Override media.QualityOverride
}

// cameraOverrideYAML is the YAML shape accepted for one table row. A
// legacy form once allowed a bare scalar (just a CQ number) in place of
// the {cq, rate} mapping; that form is rejected rather than silently
// reinterpreted.
type cameraOverrideYAML struct {
	Pattern string     `yaml:"pattern"`
	CQ      *int       `yaml:"cq"`
	Rate    *rateYAML  `yaml:"rate"`
	Cap     *string    `yaml:"cap"`
}

type rateYAML struct {
	BPS     string `yaml:"bps"`
	MinRate string `yaml:"minrate"`
	MaxRate string `yaml:"maxrate"`
}

// ParseCameraOverrides decodes the ordered camera-override table from a
// YAML node, rejecting the legacy bare-scalar form for any entry.
func ParseCameraOverrides(node *yaml.Node) ([]CameraOverrideEntry, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("camera_overrides must be a list")
	}

	entries := make([]CameraOverrideEntry, 0, len(node.Content))
	for i, item := range node.Content {
		if item.Kind == yaml.ScalarNode {
			return nil, fmt.Errorf("camera_overrides[%d]: legacy scalar override form is rejected; use {pattern, cq} or {pattern, rate}", i)
		}
		var raw cameraOverrideYAML
		if err := item.Decode(&raw); err != nil {
			return nil, fmt.Errorf("camera_overrides[%d]: %w", i, err)
		}
		if raw.Pattern == "" {
			return nil, fmt.Errorf("camera_overrides[%d]: pattern is required", i)
		}

		override := media.QualityOverride{CQ: raw.CQ}
		if raw.Rate != nil {
			ro, err := parseRateOverride(raw.Rate)
			if err != nil {
				return nil, fmt.Errorf("camera_overrides[%d]: %w", i, err)
			}
			override.Rate = ro
		}
		if raw.Cap != nil {
			capVal, class, err := ParseRateValue(*raw.Cap)
			if err != nil {
				return nil, fmt.Errorf("camera_overrides[%d]: cap: %w", i, err)
			}
			if class != media.RateClassAbsolute {
				return nil, fmt.Errorf("camera_overrides[%d]: cap must be an absolute value", i)
			}
			override.HardCap = capVal
			override.HasCap = true
		}

		entries = append(entries, CameraOverrideEntry{Pattern: raw.Pattern, Override: override})
	}
	return entries, nil
}

func parseRateOverride(r *rateYAML) (*media.RateOverride, error) {
	out := &media.RateOverride{}
	var sawClass media.RateClass

	assign := func(s string, dst *float64, has *bool) error {
		if s == "" {
			return nil
		}
		v, class, err := ParseRateValue(s)
		if err != nil {
			return err
		}
		if sawClass == media.RateClassUnset {
			sawClass = class
		} else if sawClass != class {
			return fmt.Errorf("rate values must all be the same class (absolute or relative)")
		}
		*dst = v
		if has != nil {
			*has = true
		}
		return nil
	}

	if err := assign(r.BPS, &out.BPS, nil); err != nil {
		return nil, err
	}
	if err := assign(r.MinRate, &out.MinRate, &out.HasMin); err != nil {
		return nil, err
	}
	if err := assign(r.MaxRate, &out.MaxRate, &out.HasMax); err != nil {
		return nil, err
	}
	out.Class = sawClass
	return out, nil
}

// MatchCameraOverride returns the override for the first pattern (in
// table order) that occurs case-insensitively as a substring of any
// field in fields, and whether a match was found.
func MatchCameraOverride(entries []CameraOverrideEntry, fields []string) (media.QualityOverride, bool) {
	for _, e := range entries {
		pat := strings.ToLower(e.Pattern)
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), pat) {
				return e.Override, true
			}
		}
	}
	return media.QualityOverride{}, false
}
