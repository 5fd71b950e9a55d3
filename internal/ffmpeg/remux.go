// Color-space remux pre-step. When a probe reports the
// "reserved" color-space sentinel on an HEVC/H.264 source, a zero-re-encode
// copy-remux rewrites the bitstream color metadata to standard bt709
// primaries/transfer/matrix before the main transcode reads the file.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gwlsn/transcast/internal/logger"
	"github.com/gwlsn/transcast/internal/media"
)

// colorRemuxFilters maps a problematic codec to the bitstream filter that
// overwrites its colour metadata in place (value 1 = bt709 for primaries,
// transfer and matrix in both the HEVC and H.264 metadata filters).
var colorRemuxFilters = map[string]string{
	"hevc": "hevc_metadata=colour_primaries=1:transfer_characteristics=1:matrix_coefficients=1",
	"h264": "h264_metadata=colour_primaries=1:transfer_characteristics=1:matrix_coefficients=1",
}

// NeedsColorRemux reports whether the probed source triggers the remux
// pre-step: the color-space sentinel is present AND the codec is in the
// known-problematic set.
func NeedsColorRemux(meta *media.Metadata) bool {
	if meta == nil || !meta.HasColorSpaceSentinel() {
		return false
	}
	_, known := colorRemuxFilters[strings.ToLower(meta.Codec)]
	return known
}

// RemuxColorMetadata produces a sibling intermediate next to inputPath with
// corrected color metadata and returns its path plus a cleanup func that
// removes it. The cleanup must be called on every exit path (the
// intermediate is a scoped resource).
func (t *Transcoder) RemuxColorMetadata(ctx context.Context, inputPath, codec string) (string, func(), error) {
	bsf, ok := colorRemuxFilters[strings.ToLower(codec)]
	if !ok {
		return "", nil, fmt.Errorf("no color-metadata filter for codec %q", codec)
	}

	ext := filepath.Ext(inputPath)
	intermediate := strings.TrimSuffix(inputPath, ext) + ".colorfix" + ext
	cleanup := func() { os.Remove(intermediate) }

	args := []string{
		"-i", inputPath,
		"-y",
		"-map", "0",
		"-c", "copy",
		"-bsf:v", bsf,
		intermediate,
	}
	logger.Debug("color remux", "input", inputPath, "bsf", bsf)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("color remux failed: %v: %s", err, stderrTail(stderr.String()))
	}
	return intermediate, cleanup, nil
}
