package ffmpeg

import "testing"

// TestRequiresSoftwareDecode verifies the proactive codec detection
// correctly identifies known hardware decode limitations.
func TestRequiresSoftwareDecode(t *testing.T) {
	tests := []struct {
		name     string
		codec    string
		profile  string
		bitDepth int
		encoder  HWAccel
		expected bool
	}{
		// H.264 10-bit High10: no GPU decodes it except newer NVENC parts,
		// which are left to runtime fallback.
		{"H264_10bit_QSV", "h264", "High 10", 10, HWAccelQSV, true},
		{"H264_10bit_VAAPI", "h264", "High 10", 10, HWAccelVAAPI, true},
		{"H264_10bit_NVENC", "h264", "High 10", 10, HWAccelNVENC, false},
		{"H264_10bit_VideoToolbox", "h264", "High 10", 10, HWAccelVideoToolbox, true},

		// H.264 8-bit decodes everywhere.
		{"H264_8bit_QSV", "h264", "High", 8, HWAccelQSV, false},
		{"H264_8bit_NVENC", "h264", "High", 8, HWAccelNVENC, false},

		// HEVC all bit depths decode in hardware.
		{"HEVC_10bit_QSV", "hevc", "Main 10", 10, HWAccelQSV, false},
		{"HEVC_10bit_NVENC", "hevc", "Main 10", 10, HWAccelNVENC, false},

		// VC-1 is spotty everywhere.
		{"VC1_QSV", "vc1", "Advanced", 8, HWAccelQSV, true},
		{"VC1_VAAPI", "vc1", "Advanced", 8, HWAccelVAAPI, true},
		{"VC1_NVENC", "vc1", "Advanced", 8, HWAccelNVENC, true},

		// MPEG-4 ASP on QSV.
		{"MPEG4_ASP_QSV", "mpeg4", "Advanced Simple", 8, HWAccelQSV, true},
		{"MPEG4_Simple_QSV", "mpeg4", "Simple", 8, HWAccelQSV, false},

		// Software encode never needs a decode fallback.
		{"Software", "h264", "High 10", 10, HWAccelNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RequiresSoftwareDecode(tt.codec, tt.profile, tt.bitDepth, tt.encoder)
			if got != tt.expected {
				t.Errorf("RequiresSoftwareDecode(%s, %s, %d, %s) = %v, want %v",
					tt.codec, tt.profile, tt.bitDepth, tt.encoder, got, tt.expected)
			}
		})
	}
}

// TestGetFallbackEncoder verifies the chain always ends at software.
func TestGetFallbackEncoder(t *testing.T) {
	enc := GetFallbackEncoder(HWAccelNVENC, CodecHEVC)
	if enc == nil {
		t.Fatal("fallback from NVENC must not be nil")
	}
	if enc.Accel != HWAccelNone && !enc.Available {
		t.Fatalf("fallback must be available: %+v", enc)
	}

	if GetFallbackEncoder(HWAccelNone, CodecHEVC) != nil {
		t.Fatal("software has no further fallback")
	}

	av1 := GetFallbackEncoder(HWAccelVAAPI, CodecAV1)
	if av1 == nil || av1.Codec != CodecAV1 {
		t.Fatalf("AV1 fallback must stay on AV1: %+v", av1)
	}
}
