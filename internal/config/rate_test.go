package config

import (
	"testing"

	"github.com/gwlsn/transcast/internal/media"
)

func TestParseRateValue(t *testing.T) {
	tests := []struct {
		in    string
		value float64
		class media.RateClass
		err   bool
	}{
		{"500000", 500000, media.RateClassAbsolute, false},
		{"800k", 800_000, media.RateClassAbsolute, false},
		{"2M", 2_000_000, media.RateClassAbsolute, false},
		{"2Mbps", 2_000_000, media.RateClassAbsolute, false},
		{"5bps", 5, media.RateClassAbsolute, false},
		{"0.5", 0.5, media.RateClassRelative, false},
		{"1.5", 1.5, media.RateClassRelative, false},
		{"10", 10, media.RateClassRelative, false},
		{"", 0, media.RateClassUnset, true},
		{"abc", 0, media.RateClassUnset, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, c, err := ParseRateValue(tt.in)
			if tt.err {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRateValue(%q): %v", tt.in, err)
			}
			if v != tt.value || c != tt.class {
				t.Fatalf("ParseRateValue(%q) = %v, %v; want %v, %v", tt.in, v, c, tt.value, tt.class)
			}
		})
	}
}

func TestSameClass(t *testing.T) {
	if !SameClass(media.RateClassAbsolute, media.RateClassAbsolute) {
		t.Fatal("two absolutes should match")
	}
	if !SameClass(media.RateClassAbsolute, media.RateClassUnset) {
		t.Fatal("unset values do not participate")
	}
	if SameClass(media.RateClassAbsolute, media.RateClassRelative) {
		t.Fatal("mixed classes must be rejected")
	}
}
