package ffmpeg

import (
	"testing"
	"time"

	"github.com/gwlsn/transcast/internal/media"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"25", 25},
		{"0/0", 0},
		{"", 0},
		{"24/0", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.in); got != tt.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInferBitDepth(t *testing.T) {
	tests := []struct {
		pixFmt string
		want   int
	}{
		{"yuv420p", 8},
		{"yuv420p10le", 10},
		{"p010le", 10},
		{"yuv420p12le", 12},
		{"", 8},
	}
	for _, tt := range tests {
		if got := inferBitDepth(tt.pixFmt); got != tt.want {
			t.Errorf("inferBitDepth(%q) = %d, want %d", tt.pixFmt, got, tt.want)
		}
	}
}

func TestDetectHDR(t *testing.T) {
	if !detectHDR("smpte2084", "bt2020", 10) {
		t.Error("PQ transfer must detect HDR")
	}
	if !detectHDR("arib-std-b67", "", 10) {
		t.Error("HLG transfer must detect HDR")
	}
	if !detectHDR("", "bt2020", 10) {
		t.Error("untagged 10-bit bt2020 must fall back to HDR")
	}
	if detectHDR("bt709", "bt709", 8) {
		t.Error("SDR must not detect HDR")
	}
}

func TestCodecClassification(t *testing.T) {
	if !isHEVCCodec("HEVC") || !isHEVCCodec("h265") || isHEVCCodec("h264") {
		t.Error("HEVC classification wrong")
	}
	if !isAV1Codec("av1") || !isAV1Codec("libsvtav1") || isAV1Codec("vp9") {
		t.Error("AV1 classification wrong")
	}
}

func TestToMetadata(t *testing.T) {
	r := &ProbeResult{
		Width:      3840,
		Height:     2160,
		FrameRate:  29.97,
		VideoCodec: "hevc",
		AudioCodec: "aac",
		ColorSpace: media.ColorSpaceReserved,
		Duration:   90 * time.Second,
		Bitrate:    12_000_000,
	}
	m := r.ToMetadata()
	if m.Width != 3840 || m.Codec != "hevc" || m.AudioCodec != "aac" {
		t.Fatalf("fields lost: %+v", m)
	}
	if m.SourceBitrateKbps != 12_000 {
		t.Fatalf("bitrate must convert to kbps: %d", m.SourceBitrateKbps)
	}
	if !m.HasColorSpaceSentinel() {
		t.Fatal("reserved color space must carry through as the sentinel")
	}
	if m.PreviouslyEncoded || m.QualityOverride != nil {
		t.Fatal("probe-level metadata must leave adapter fields zero")
	}
}

func TestAlreadyTargetCodec(t *testing.T) {
	r := &ProbeResult{IsAV1: true}
	if !r.AlreadyTargetCodec(CodecAV1) || r.AlreadyTargetCodec(CodecHEVC) {
		t.Fatal("target-codec check wrong")
	}
}

func TestNeedsColorRemux(t *testing.T) {
	if !NeedsColorRemux(&media.Metadata{Codec: "hevc", ColorSpace: media.ColorSpaceReserved}) {
		t.Error("reserved HEVC must trigger the remux pre-step")
	}
	if !NeedsColorRemux(&media.Metadata{Codec: "h264", ColorSpace: media.ColorSpaceReserved}) {
		t.Error("reserved H.264 must trigger the remux pre-step")
	}
	if NeedsColorRemux(&media.Metadata{Codec: "vp9", ColorSpace: media.ColorSpaceReserved}) {
		t.Error("unknown codecs must not trigger the remux")
	}
	if NeedsColorRemux(&media.Metadata{Codec: "hevc", ColorSpace: "bt709"}) {
		t.Error("a tagged color space must not trigger the remux")
	}
}
