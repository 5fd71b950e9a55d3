package config

import (
	"fmt"
	"regexp"

	"github.com/gwlsn/transcast/internal/media"
)

// RotationRule is one row of the ordered filename-rotation-regex table
//: patterns are tested against the source
// file name in table order, first match wins.
type RotationRule struct {
	Pattern  string
	Rotation media.Rotation
	compiled *regexp.Regexp
}

// CompileRotationRules validates and compiles an ordered rule list.
func CompileRotationRules(raw []RotationRuleYAML) ([]RotationRule, error) {
	out := make([]RotationRule, 0, len(raw))
	for i, r := range raw {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rotation_rules[%d]: %w", i, err)
		}
		rot := media.Rotation(r.Rotation)
		if !rot.Valid() {
			return nil, fmt.Errorf("rotation_rules[%d]: invalid rotation %d", i, r.Rotation)
		}
		out = append(out, RotationRule{Pattern: r.Pattern, Rotation: rot, compiled: re})
	}
	return out, nil
}

// RotationRuleYAML is the raw YAML shape of one rotation_rules entry.
type RotationRuleYAML struct {
	Pattern  string `yaml:"pattern"`
	Rotation int    `yaml:"rotation"`
}

// ResolveRotation resolves a job's rotation: manual_rotation
// wins outright; otherwise the first matching pattern in table order;
// otherwise RotationNone.
func ResolveRotation(manual *media.Rotation, rules []RotationRule, filename string) media.Rotation {
	if manual != nil {
		return *manual
	}
	for _, r := range rules {
		if r.compiled.MatchString(filename) {
			return r.Rotation
		}
	}
	return media.RotationNone
}
