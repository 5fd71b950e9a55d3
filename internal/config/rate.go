package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gwlsn/transcast/internal/media"
)

// ParseRateValue interprets a rate-mode value: either an
// absolute form ("N", "Nk", "NM", "NMbps") read as integer bytes-per-second,
// or a bare decimal in [0,10] read as a multiplier of the source bitrate.
// The two forms are mutually exclusive classes; callers combining several
// values (bps/minrate/maxrate, plus a per-camera override) must check they
// all resolve to the same RateClass.
func ParseRateValue(s string) (float64, media.RateClass, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, media.RateClassUnset, fmt.Errorf("empty rate value")
	}

	lower := strings.ToLower(s)
	trimmed := strings.TrimSuffix(lower, "bps")
	switch {
	case strings.HasSuffix(trimmed, "k"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(trimmed, "k"), 64)
		if err != nil {
			return 0, media.RateClassUnset, fmt.Errorf("invalid rate %q: %w", s, err)
		}
		return n * 1000, media.RateClassAbsolute, nil
	case strings.HasSuffix(trimmed, "m"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(trimmed, "m"), 64)
		if err != nil {
			return 0, media.RateClassUnset, fmt.Errorf("invalid rate %q: %w", s, err)
		}
		return n * 1_000_000, media.RateClassAbsolute, nil
	}

	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, media.RateClassUnset, fmt.Errorf("invalid rate %q: %w", s, err)
	}

	// A bare "bps"-suffixed or otherwise unit-qualified value is always
	// absolute; only a unitless decimal in [0,10] is a relative multiplier.
	if strings.HasSuffix(lower, "bps") {
		return n, media.RateClassAbsolute, nil
	}
	if n >= 0 && n <= 10 {
		return n, media.RateClassRelative, nil
	}
	return n, media.RateClassAbsolute, nil
}

// SameClass reports whether bps/minrate/maxrate all resolved to the same
// RateClass.
func SameClass(classes ...media.RateClass) bool {
	var first media.RateClass
	seen := false
	for _, c := range classes {
		if c == media.RateClassUnset {
			continue
		}
		if !seen {
			first = c
			seen = true
			continue
		}
		if c != first {
			return false
		}
	}
	return true
}
