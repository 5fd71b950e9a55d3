// Subtitle-codec compatibility used when building the stream map for an
// MKV-container job (args.go streamMapArgs); MP4 output drops subtitles
// entirely.
package ffmpeg

import "strings"

// mkvCompatibleCodecs lists subtitle codecs that can be muxed to MKV.
// Based on FFmpeg's matroska.c ff_mkv_codec_tags mapping.
// See: https://github.com/FFmpeg/FFmpeg/blob/master/libavformat/matroska.c
var mkvCompatibleCodecs = map[string]bool{
	"subrip":             true, // S_TEXT/UTF8
	"srt":                true, // Alias for subrip
	"ass":                true, // S_TEXT/ASS
	"ssa":                true, // S_TEXT/SSA
	"text":               true, // S_TEXT/UTF8
	"dvd_subtitle":       true, // S_VOBSUB
	"dvb_subtitle":       true, // S_DVBSUB
	"hdmv_pgs_subtitle":  true, // S_HDMV/PGS (Blu-ray)
	"hdmv_text_subtitle": true, // S_HDMV/TEXTST
	"arib_caption":       true, // S_ARIBSUB (Japanese)
	"webvtt":             true, // D_WEBVTT/*
}

// IsMKVCompatible returns true if the subtitle codec can be muxed to MKV.
// Normalizes to lowercase and trims whitespace for safety.
// Unknown codecs return false for safety (better to drop than fail transcode).
func IsMKVCompatible(codecName string) bool {
	return mkvCompatibleCodecs[strings.ToLower(strings.TrimSpace(codecName))]
}

// FilterMKVCompatible partitions subtitle streams into compatible and incompatible.
// Returns the compatible streams (for -map 0:N arguments) and unique codec names
// of dropped streams (for warning the user, de-duplicated to avoid log spam).
//
// Return value semantics:
//   - nil input → nil output (no subtitle streams exist)
//   - non-nil input → non-nil output (possibly empty slice if all incompatible)
func FilterMKVCompatible(streams []SubtitleStream) (compatible []SubtitleStream, droppedCodecs []string) {
	if streams == nil {
		return nil, nil
	}

	// Pre-allocate to ensure we return empty slice, not nil, when all are incompatible
	compatible = make([]SubtitleStream, 0, len(streams))
	seenCodecs := make(map[string]bool)

	for _, s := range streams {
		if IsMKVCompatible(s.CodecName) {
			compatible = append(compatible, s)
			continue
		}
		// De-duplicate dropped codecs for cleaner log output
		if !seenCodecs[s.CodecName] {
			seenCodecs[s.CodecName] = true
			droppedCodecs = append(droppedCodecs, s.CodecName)
		}
	}
	return compatible, droppedCodecs
}
