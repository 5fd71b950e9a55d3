package ffmpeg

import (
	"strings"
	"testing"

	"github.com/gwlsn/transcast/internal/media"
)

func TestAudioPolicyArgs(t *testing.T) {
	tests := []struct {
		codec string
		want  []string
	}{
		{"flac", []string{"-c:a", "aac", "-b:a", "256k"}},
		{"pcm_s16le", []string{"-c:a", "aac", "-b:a", "256k"}},
		{"truehd", []string{"-c:a", "aac", "-b:a", "256k"}},
		{"aac", []string{"-c:a", "copy"}},
		{"mp3", []string{"-c:a", "copy"}},
		{"opus", []string{"-c:a", "aac", "-b:a", "192k"}},
		{"vorbis", []string{"-c:a", "aac", "-b:a", "192k"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.codec, func(t *testing.T) {
			got := AudioPolicyArgs(tt.codec)
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Fatalf("AudioPolicyArgs(%q) = %v, want %v", tt.codec, got, tt.want)
			}
		})
	}
}

func TestContainerFromArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, "mp4"},
		{[]string{"-preset", "p4"}, "mp4"},
		{[]string{"-f", "matroska"}, "mkv"},
		{[]string{"-f", "mkv"}, "mkv"},
		{[]string{"-f", "mov"}, "mov"},
		{[]string{"-f", "mp4"}, "mp4"},
	}
	for _, tt := range tests {
		if got := ContainerFromArgs(tt.args); got != tt.want {
			t.Fatalf("ContainerFromArgs(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestOutputExtension(t *testing.T) {
	if OutputExtension("") != ".mp4" || OutputExtension("mkv") != ".mkv" || OutputExtension("mov") != ".mov" {
		t.Fatal("container extension mapping wrong")
	}
}

func TestBuildArgsCQMode(t *testing.T) {
	_, out, err := BuildArgs(TranscodeSpec{
		Codec:   CodecHEVC,
		Encoder: HWAccelNone,
		Quality: media.QualityDecision{Mode: media.QualityModeCQ, CQ: 28},
	})
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(out, " ")
	if !strings.Contains(joined, "-c:v libx265") || !strings.Contains(joined, "-crf 28") {
		t.Fatalf("cq args missing: %s", joined)
	}
	if !strings.Contains(joined, "-f mp4") {
		t.Fatalf("explicit container flag missing: %s", joined)
	}
}

func TestBuildArgsRateMode(t *testing.T) {
	_, out, err := BuildArgs(TranscodeSpec{
		Codec:   CodecAV1,
		Encoder: HWAccelNone,
		Quality: media.QualityDecision{
			Mode:    media.QualityModeRate,
			BPS:     2_000_000,
			MaxRate: 3_000_000,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(out, " ")
	for _, want := range []string{"-b:v 2000k", "-maxrate 3000k", "-bufsize 6000k"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %s", want, joined)
		}
	}
}

func TestBuildArgsRotationFilter(t *testing.T) {
	_, out, err := BuildArgs(TranscodeSpec{
		Codec:    CodecHEVC,
		Encoder:  HWAccelNone,
		Quality:  media.QualityDecision{Mode: media.QualityModeCQ, CQ: 26},
		Rotation: media.Rotation180,
	})
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(out, " ")
	if !strings.Contains(joined, "-vf hflip,vflip") {
		t.Fatalf("180 rotation filter missing: %s", joined)
	}
}

func TestBuildArgsUnresolvedQualityRejected(t *testing.T) {
	_, _, err := BuildArgs(TranscodeSpec{Codec: CodecHEVC, Encoder: HWAccelNone})
	if err == nil {
		t.Fatal("zero-valued quality decision must be rejected")
	}
}

func TestFilterMKVCompatible(t *testing.T) {
	streams := []SubtitleStream{
		{Index: 2, CodecName: "subrip"},
		{Index: 3, CodecName: "mov_text"},
		{Index: 4, CodecName: "hdmv_pgs_subtitle"},
	}
	compatible, dropped := FilterMKVCompatible(streams)
	if len(compatible) != 2 || compatible[0].Index != 2 || compatible[1].Index != 4 {
		t.Fatalf("expected subrip and pgs to survive, got %v", compatible)
	}
	if len(dropped) != 1 || dropped[0] != "mov_text" {
		t.Fatalf("expected mov_text dropped, got %v", dropped)
	}
}

func TestBuildArgsMapsFilteredSubtitles(t *testing.T) {
	_, out, err := BuildArgs(TranscodeSpec{
		Codec:            CodecHEVC,
		Encoder:          HWAccelNone,
		Quality:          media.QualityDecision{Mode: media.QualityModeCQ, CQ: 26},
		SourceAudioCodec: "aac",
		Container:        "mkv",
		Subtitles: []SubtitleStream{
			{Index: 2, CodecName: "subrip"},
			{Index: 4, CodecName: "hdmv_pgs_subtitle"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(out, " ")
	for _, want := range []string{"-map 0:2", "-map 0:4", "-c:s copy", "-f matroska"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %s", want, joined)
		}
	}
}
