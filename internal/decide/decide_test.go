package decide

import (
	"testing"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/media"
)

func cqConfig(baseline int) *config.EffectiveConfig {
	return &config.EffectiveConfig{
		QualityMode: media.QualityModeCQ,
		Quality:     baseline,
	}
}

func TestQualityCQBaseline(t *testing.T) {
	d, err := Quality(cqConfig(26), &media.Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if d.Mode != media.QualityModeCQ || d.CQ != 26 {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestQualityCQCameraOverride(t *testing.T) {
	cq := 32
	meta := &media.Metadata{QualityOverride: &media.QualityOverride{CQ: &cq}}
	d, err := Quality(cqConfig(26), meta)
	if err != nil {
		t.Fatal(err)
	}
	if d.CQ != 32 {
		t.Fatalf("camera override must replace the baseline, got %d", d.CQ)
	}
}

func TestQualityCQOverrideValidated(t *testing.T) {
	cq := 99
	meta := &media.Metadata{QualityOverride: &media.QualityOverride{CQ: &cq}}
	if _, err := Quality(cqConfig(26), meta); err == nil {
		t.Fatal("out-of-range override must be rejected")
	}
}

func TestQualityRateAbsolute(t *testing.T) {
	cfg := &config.EffectiveConfig{
		QualityMode: media.QualityModeRate,
		RateClass:   media.RateClassAbsolute,
		RateBPS:     2_000_000,
		RateMaxRate: 3_000_000,
	}
	d, err := Quality(cfg, &media.Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if d.BPS != 2_000_000 || d.MaxRate != 3_000_000 || d.MinRate != 0 {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestQualityRateRelativeMultipliesSourceBitrate(t *testing.T) {
	cfg := &config.EffectiveConfig{
		QualityMode: media.QualityModeRate,
		RateClass:   media.RateClassRelative,
		RateBPS:     0.5,
	}
	// 8000 kbit/s source = 1,000,000 bytes/s; half of that is the target.
	meta := &media.Metadata{SourceBitrateKbps: 8000}
	d, err := Quality(cfg, meta)
	if err != nil {
		t.Fatal(err)
	}
	if d.BPS != 500_000 {
		t.Fatalf("expected 500000 bytes/s, got %d", d.BPS)
	}
}

func TestQualityRateRelativeWithoutSourceBitrateFails(t *testing.T) {
	cfg := &config.EffectiveConfig{
		QualityMode: media.QualityModeRate,
		RateClass:   media.RateClassRelative,
		RateBPS:     0.5,
	}
	if _, err := Quality(cfg, &media.Metadata{}); err == nil {
		t.Fatal("relative target without a probed bitrate must fail")
	}
}

func TestQualityRateHardCapCeiling(t *testing.T) {
	cfg := &config.EffectiveConfig{
		QualityMode: media.QualityModeRate,
		RateClass:   media.RateClassAbsolute,
		RateBPS:     5_000_000,
		RateMaxRate: 6_000_000,
		RateCap:     2_000_000,
		HasRateCap:  true,
	}
	d, err := Quality(cfg, &media.Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if d.BPS != 2_000_000 || d.MaxRate != 2_000_000 {
		t.Fatalf("cap must ceiling bps and maxrate: %+v", d)
	}
}

func TestQualityRateCameraOverrideReplacesTargets(t *testing.T) {
	cfg := &config.EffectiveConfig{
		QualityMode: media.QualityModeRate,
		RateClass:   media.RateClassAbsolute,
		RateBPS:     5_000_000,
	}
	meta := &media.Metadata{QualityOverride: &media.QualityOverride{
		Rate: &media.RateOverride{Class: media.RateClassAbsolute, BPS: 1_000_000},
	}}
	d, err := Quality(cfg, meta)
	if err != nil {
		t.Fatal(err)
	}
	if d.BPS != 1_000_000 {
		t.Fatalf("override must replace the run-level target: %+v", d)
	}
}

func TestQualityRatePerCameraCapWinsOverGlobal(t *testing.T) {
	cfg := &config.EffectiveConfig{
		QualityMode: media.QualityModeRate,
		RateClass:   media.RateClassAbsolute,
		RateBPS:     5_000_000,
		RateCap:     4_000_000,
		HasRateCap:  true,
	}
	meta := &media.Metadata{QualityOverride: &media.QualityOverride{
		HardCap: 3_000_000,
		HasCap:  true,
	}}
	d, err := Quality(cfg, meta)
	if err != nil {
		t.Fatal(err)
	}
	if d.BPS != 3_000_000 {
		t.Fatalf("per-camera cap must win: %+v", d)
	}
}
