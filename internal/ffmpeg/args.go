// Package ffmpeg wraps ffprobe/ffmpeg subprocess invocation: the Probe
// Adapter (probe.go), hardware-encoder detection/fallback (hwaccel.go),
// the Transcoder Adapter (transcode.go), subtitle-codec filtering
// (subtitles.go), and argument construction (this file).
//
// args.go builds each job's argument list directly from its resolved
// decisions: quality arrives as a tagged QualityDecision (CQ index or
// resolved bitrate triple) rather than a named preset, and is combined
// with rotation, the fixed audio policy and the output container.
package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gwlsn/transcast/internal/media"
)

// encoderProfile carries the fixed per-encoder flags that don't vary with
// the resolved quality decision: which FFmpeg encoder name to invoke, the
// flag used for a CQ/CRF-style index, and any extra tuning args.
// The tuning defaults are the widely used ones for each encoder; the
// quality value itself always comes from the per-job decision.
type encoderProfile struct {
	encoder   string
	cqFlag    string
	extraArgs []string
}

var encoderProfiles = map[EncoderKey]encoderProfile{
	{HWAccelNone, CodecHEVC}:         {"libx265", "-crf", []string{"-preset", "medium"}},
	{HWAccelVideoToolbox, CodecHEVC}: {"hevc_videotoolbox", "-q:v", []string{"-allow_sw", "1"}},
	{HWAccelNVENC, CodecHEVC}:        {"hevc_nvenc", "-cq", []string{"-preset", "p4", "-tune", "hq", "-rc", "vbr"}},
	{HWAccelQSV, CodecHEVC}:          {"hevc_qsv", "-global_quality", []string{"-preset", "medium"}},
	{HWAccelVAAPI, CodecHEVC}:        {"hevc_vaapi", "-qp", nil},

	{HWAccelNone, CodecAV1}:         {"libsvtav1", "-crf", []string{"-preset", "6"}},
	{HWAccelVideoToolbox, CodecAV1}: {"av1_videotoolbox", "-q:v", []string{"-allow_sw", "1"}},
	{HWAccelNVENC, CodecAV1}:        {"av1_nvenc", "-cq", []string{"-preset", "p4", "-tune", "hq", "-rc", "vbr"}},
	{HWAccelQSV, CodecAV1}:          {"av1_qsv", "-global_quality", []string{"-preset", "medium"}},
	{HWAccelVAAPI, CodecAV1}:        {"av1_vaapi", "-qp", nil},
}

// TranscodeSpec is everything the Transcoder Adapter needs to build one
// job's ffmpeg invocation: the resolved quality decision and rotation from
// Decision Logic, the chosen encoder, the source audio codec (for
// the fixed audio policy), and the subtitle streams to carry.
type TranscodeSpec struct {
	Codec    Codec
	Encoder  HWAccel
	Quality  media.QualityDecision
	Rotation media.Rotation

	SourceAudioCodec string

	// Subtitles are the streams to map into an MKV output, already
	// filtered for container compatibility (FilterMKVCompatible); the
	// caller owns warning about anything it dropped.
	Subtitles []SubtitleStream

	// Container is "mkv", "mp4", or "mov"; empty defaults to "mp4" per
	// the default output layout.
	Container string
}

// OutputExtension returns the container's file extension, defaulting to
// mp4 when unset.
func OutputExtension(container string) string {
	switch container {
	case "mkv":
		return ".mkv"
	case "mov":
		return ".mov"
	default:
		return ".mp4"
	}
}

// BuildArgs builds the input-side args (placed before -i, e.g. hardware
// device init) and output-side args (placed after -i, before the output
// path) for one job, from the resolved media.QualityDecision, rotation,
// audio policy and container.
func BuildArgs(spec TranscodeSpec) (inputArgs, outputArgs []string, err error) {
	profile, ok := encoderProfiles[EncoderKey{spec.Encoder, spec.Codec}]
	if !ok {
		profile, ok = encoderProfiles[EncoderKey{HWAccelNone, spec.Codec}]
		if !ok {
			return nil, nil, fmt.Errorf("no encoder profile for codec %s", spec.Codec)
		}
	}

	if vf := rotationFilter(spec.Rotation, spec.Encoder); vf != "" {
		outputArgs = append(outputArgs, "-vf", vf)
	}

	outputArgs = append(outputArgs, "-c:v", profile.encoder)

	switch spec.Quality.Mode {
	case media.QualityModeCQ:
		outputArgs = append(outputArgs, profile.cqFlag, strconv.FormatInt(int64(spec.Quality.CQ), 10))
	case media.QualityModeRate:
		outputArgs = append(outputArgs, "-b:v", bpsToKbpsFlag(spec.Quality.BPS))
		if spec.Quality.MinRate > 0 {
			outputArgs = append(outputArgs, "-minrate", bpsToKbpsFlag(spec.Quality.MinRate))
		}
		if spec.Quality.MaxRate > 0 {
			outputArgs = append(outputArgs, "-maxrate", bpsToKbpsFlag(spec.Quality.MaxRate), "-bufsize", bpsToKbpsFlag(spec.Quality.MaxRate*2))
		}
	default:
		return nil, nil, fmt.Errorf("unresolved quality mode")
	}

	outputArgs = append(outputArgs, profile.extraArgs...)
	outputArgs = append(outputArgs, AudioPolicyArgs(spec.SourceAudioCodec)...)
	outputArgs = append(outputArgs, streamMapArgs(spec)...)

	// The adapter writes to a ".tmp" sibling, so ffmpeg cannot infer the
	// container from the output extension; always pass -f explicitly.
	container := spec.Container
	if container == "" {
		container = "mp4"
	}
	outputArgs = append(outputArgs, "-f", matroskaOrMov(container))

	if spec.Encoder == HWAccelVAAPI {
		inputArgs = append(inputArgs, "-vaapi_device", GetVAAPIDevice())
	}

	return inputArgs, outputArgs, nil
}

func matroskaOrMov(container string) string {
	if container == "mkv" {
		return "matroska"
	}
	return container
}

// ContainerFromArgs resolves the output container from a `-f` flag in the
// baseline encoder args, defaulting to mp4 when absent.
func ContainerFromArgs(args []string) string {
	for i, a := range args {
		if a == "-f" && i+1 < len(args) {
			switch args[i+1] {
			case "matroska", "mkv":
				return "mkv"
			case "mov":
				return "mov"
			default:
				return "mp4"
			}
		}
	}
	return "mp4"
}

func bpsToKbpsFlag(bps int64) string {
	return fmt.Sprintf("%dk", bps/1000)
}

// rotationFilter returns the -vf filter chain for a fixed rotation angle,
// using the VAAPI-specific transpose variant when encoding on that path.
func rotationFilter(r media.Rotation, encoder HWAccel) string {
	if r == media.RotationNone {
		return ""
	}
	if encoder == HWAccelVAAPI {
		dir := map[media.Rotation]int{media.Rotation90: 1, media.Rotation270: 2}[r]
		if r == media.Rotation180 {
			return "format=nv12,hwupload,transpose_vaapi=dir=1,transpose_vaapi=dir=1"
		}
		return fmt.Sprintf("format=nv12,hwupload,transpose_vaapi=dir=%d", dir)
	}
	switch r {
	case media.Rotation90:
		return "transpose=1"
	case media.Rotation180:
		return "hflip,vflip"
	case media.Rotation270:
		return "transpose=2"
	default:
		return ""
	}
}

// losslessAudioCodecs lists source audio codecs that are re-encoded rather than
// stream-copied, per the fixed audio policy.
var losslessAudioCodecs = map[string]bool{
	"pcm_s16le": true, "pcm_s24le": true, "pcm_s32le": true, "pcm_f32le": true,
	"flac": true, "alac": true, "truehd": true, "mlp": true, "wavpack": true, "ape": true, "tta": true,
}

var passthroughAudioCodecs = map[string]bool{"aac": true, "mp3": true}

// AudioPolicyArgs implements the fixed audio policy:
// lossless sources re-encode to AAC 256k, AAC/MP3 stream-copy, anything
// else re-encodes to AAC 192k, and an absent audio stream yields no flags.
func AudioPolicyArgs(sourceCodec string) []string {
	if sourceCodec == "" {
		return nil
	}
	codec := strings.ToLower(sourceCodec)
	switch {
	case losslessAudioCodecs[codec]:
		return []string{"-c:a", "aac", "-b:a", "256k"}
	case passthroughAudioCodecs[codec]:
		return []string{"-c:a", "copy"}
	default:
		return []string{"-c:a", "aac", "-b:a", "192k"}
	}
}

func streamMapArgs(spec TranscodeSpec) []string {
	args := []string{"-map", "0:v:0"}
	if spec.SourceAudioCodec != "" {
		args = append(args, "-map", "0:a?")
	}
	if spec.Container == "mkv" && len(spec.Subtitles) > 0 {
		for _, s := range spec.Subtitles {
			args = append(args, "-map", fmt.Sprintf("0:%d", s.Index))
		}
		args = append(args, "-c:s", "copy")
	}
	return args
}
