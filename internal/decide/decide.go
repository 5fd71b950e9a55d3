// Package decide implements per-job decision logic: resolving
// each job's effective quality target and rotation from the merged
// configuration, the file's metadata, and its name.
package decide

import (
	"fmt"
	"math"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/media"
)

// Quality resolves the tagged quality decision for one job. In cq mode the per-camera override's cq value, when
// present, replaces the baseline index. In rate mode the bps/minrate/
// maxrate targets resolve to absolute bytes-per-second (relative values
// multiply the source bitrate), then the hard cap (per-camera over global)
// is applied as an absolute-only ceiling.
func Quality(cfg *config.EffectiveConfig, meta *media.Metadata) (media.QualityDecision, error) {
	var override *media.QualityOverride
	if meta != nil {
		override = meta.QualityOverride
	}

	switch cfg.QualityMode {
	case media.QualityModeCQ:
		q := cfg.Quality
		if override != nil && override.CQ != nil {
			q = *override.CQ
		}
		if err := config.ValidateCQ(q); err != nil {
			return media.QualityDecision{}, err
		}
		return media.QualityDecision{Mode: media.QualityModeCQ, CQ: q}, nil

	case media.QualityModeRate:
		return rateDecision(cfg, meta, override)

	default:
		return media.QualityDecision{}, fmt.Errorf("unknown quality mode %q", cfg.QualityMode)
	}
}

func rateDecision(cfg *config.EffectiveConfig, meta *media.Metadata, override *media.QualityOverride) (media.QualityDecision, error) {
	class := cfg.RateClass
	bps, minr, maxr := cfg.RateBPS, cfg.RateMinRate, cfg.RateMaxRate

	if override != nil && override.Rate != nil {
		r := override.Rate
		class = r.Class
		bps = r.BPS
		minr, maxr = 0, 0
		if r.HasMin {
			minr = r.MinRate
		}
		if r.HasMax {
			maxr = r.MaxRate
		}
	}

	if bps == 0 {
		return media.QualityDecision{}, fmt.Errorf("rate mode requires a bps target")
	}

	// Relative values multiply the source bitrate; without a probed source
	// bitrate there is nothing to multiply.
	scale := 1.0
	if class == media.RateClassRelative {
		if meta == nil || meta.SourceBitrateKbps <= 0 {
			return media.QualityDecision{}, fmt.Errorf("relative rate target but source bitrate unknown")
		}
		scale = float64(meta.SourceBitrateKbps) * 1000 / 8 // kbit/s -> bytes/s
	}

	d := media.QualityDecision{
		Mode:    media.QualityModeRate,
		BPS:     int64(math.Round(bps * scale)),
		MinRate: int64(math.Round(minr * scale)),
		MaxRate: int64(math.Round(maxr * scale)),
	}

	hardCap, hasCap := cfg.RateCap, cfg.HasRateCap
	if override != nil && override.HasCap {
		hardCap, hasCap = override.HardCap, true
	}
	if hasCap {
		ceiling := int64(hardCap)
		if d.BPS > ceiling {
			d.BPS = ceiling
		}
		if d.MaxRate > ceiling {
			d.MaxRate = ceiling
		}
	}
	return d, nil
}

// Rotation resolves the rotation for one job: manual rotation wins, then the first matching filename
// pattern in table order, then none.
func Rotation(cfg *config.EffectiveConfig, filename string) media.Rotation {
	return config.ResolveRotation(cfg.ManualRotation, cfg.RotationRules, filename)
}
