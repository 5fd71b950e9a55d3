package config

import (
	"testing"

	"github.com/gwlsn/transcast/internal/media"
)

func TestResolveRotationFirstMatchWins(t *testing.T) {
	rules, err := CompileRotationRules([]RotationRuleYAML{
		{Pattern: `(?i)gopro`, Rotation: 180},
		{Pattern: `(?i)gopro_ceiling`, Rotation: 90},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Both patterns match; the first configured rule must win.
	if got := ResolveRotation(nil, rules, "GOPRO_ceiling_001.mp4"); got != media.Rotation180 {
		t.Fatalf("expected 180, got %d", got)
	}
}

func TestResolveRotationManualWins(t *testing.T) {
	rules, err := CompileRotationRules([]RotationRuleYAML{
		{Pattern: `.*`, Rotation: 90},
	})
	if err != nil {
		t.Fatal(err)
	}
	manual := media.Rotation180
	if got := ResolveRotation(&manual, rules, "clip.mp4"); got != media.Rotation180 {
		t.Fatalf("manual rotation must win, got %d", got)
	}
}

func TestResolveRotationDefaultsToNone(t *testing.T) {
	if got := ResolveRotation(nil, nil, "clip.mp4"); got != media.RotationNone {
		t.Fatalf("expected none, got %d", got)
	}
}

func TestCompileRotationRulesRejectsBadInput(t *testing.T) {
	if _, err := CompileRotationRules([]RotationRuleYAML{{Pattern: `(`, Rotation: 90}}); err == nil {
		t.Fatal("invalid regexp must be rejected")
	}
	if _, err := CompileRotationRules([]RotationRuleYAML{{Pattern: `.*`, Rotation: 45}}); err == nil {
		t.Fatal("invalid rotation angle must be rejected")
	}
}
