package ffmpeg

import (
	"testing"
	"time"
)

func TestKeyValueProgressParser(t *testing.T) {
	var p Progress
	parser := KeyValueProgressParser{}

	lines := []string{
		"frame=120",
		"fps=29.97",
		"total_size=1048576",
		"out_time_us=4000000",
		"bitrate=1234.5kbits/s",
		"speed=1.5x",
	}
	for _, line := range lines {
		if parser.ParseLine(line, &p) {
			t.Fatalf("line %q must not complete a snapshot", line)
		}
	}
	if !parser.ParseLine("progress=continue", &p) {
		t.Fatal("progress=continue must complete the snapshot")
	}

	if p.Frame != 120 || p.FPS != 29.97 || p.Size != 1048576 {
		t.Fatalf("numeric fields wrong: %+v", p)
	}
	if p.Time != 4*time.Second {
		t.Fatalf("out_time_us wrong: %v", p.Time)
	}
	if p.Bitrate != 1234.5 || p.Speed != 1.5 {
		t.Fatalf("suffixed fields wrong: %+v", p)
	}
}

func TestKeyValueProgressParserIgnoresNoise(t *testing.T) {
	var p Progress
	parser := KeyValueProgressParser{}
	for _, line := range []string{"", "noise", "speed=N/A", "bitrate=N/A", "out_time_us=N/A"} {
		if parser.ParseLine(line, &p) {
			t.Fatalf("line %q must not complete a snapshot", line)
		}
	}
	if p.Speed != 0 || p.Bitrate != 0 || p.Time != 0 {
		t.Fatalf("N/A values must leave fields untouched: %+v", p)
	}
	if !parser.ParseLine("progress=end", &p) {
		t.Fatal("progress=end must complete the snapshot")
	}
}

func TestTempPath(t *testing.T) {
	if got := TempPath("/out/clip.mp4"); got != "/out/clip.mp4.tmp" {
		t.Fatalf("TempPath = %q", got)
	}
}

func TestStderrTailKeepsLastLines(t *testing.T) {
	in := "a\nb\nc\nd\ne\nf\ng"
	got := stderrTail(in)
	if got != "c | d | e | f | g" {
		t.Fatalf("stderrTail = %q", got)
	}
}

func TestClassString(t *testing.T) {
	if ClassCompleted.String() != "completed" || ClassHwCapExceeded.String() != "hw_cap_exceeded" ||
		ClassInterrupted.String() != "interrupted" || ClassFailed.String() != "failed" {
		t.Fatal("class names wrong")
	}
}

func TestDetectHwCapFailure(t *testing.T) {
	if !DetectHwCapFailure("OpenEncodeSessionEx failed: out of memory (2)") {
		t.Fatal("NVENC session-limit signature must classify as hw-cap")
	}
	if !DetectHwCapFailure("No capable devices found") {
		t.Fatal("case-insensitive signature match expected")
	}
	if DetectHwCapFailure("Invalid data found when processing input") {
		t.Fatal("generic decode error must not classify as hw-cap")
	}
}
