// Package media defines the value types shared across the discovery,
// decision and execution pipeline: the file the scheduler queues, the
// probed/extracted metadata attached to it, and the tagged variants used
// for quality and rotation decisions.
package media

import "time"

// ColorSpaceReserved is the sentinel value a prober reports when the
// container carries no real color-space tag. Its presence on an HEVC/H.264
// source triggers the color-space remux pre-step.
const ColorSpaceReserved = "reserved"

// VideoFile is a discovery-time snapshot of one input file. Metadata is
// attached later, once, by the pipeline; VideoFile is otherwise immutable.
type VideoFile struct {
	Path     string
	Size     int64
	Metadata *Metadata
}

// Metadata is everything the Probe and Metadata adapters learn about a
// source file. Once attached to a VideoFile it is never mutated.
type Metadata struct {
	Width             int
	Height            int
	FrameRate         float64
	Codec             string
	AudioCodec        string
	ColorSpace        string // normal value, ColorSpaceReserved, or "" (absent)
	Duration          time.Duration
	SourceBitrateKbps int64 // 0 if unknown
	CameraModel       string
	PreviouslyEncoded bool // carries the custom tag written by a prior run
	QualityOverride   *QualityOverride
}

// HasColorSpaceSentinel reports whether the probed color space is the
// "reserved" sentinel that triggers the remux pre-step.
func (m *Metadata) HasColorSpaceSentinel() bool {
	return m != nil && m.ColorSpace == ColorSpaceReserved
}

// Rotation is one of the four fixed rotation angles a job may apply.
type Rotation int

const (
	RotationNone Rotation = 0
	Rotation90   Rotation = 90
	Rotation180  Rotation = 180
	Rotation270  Rotation = 270
)

func (r Rotation) Valid() bool {
	switch r {
	case RotationNone, Rotation90, Rotation180, Rotation270:
		return true
	default:
		return false
	}
}

// QualityMode selects how QualityDecision values are interpreted.
type QualityMode string

const (
	QualityModeCQ   QualityMode = "cq"
	QualityModeRate QualityMode = "rate"
)

// RateClass distinguishes absolute byte-rate targets from a multiplier of
// the source bitrate; a run's rate values must all be the same class.
type RateClass int

const (
	RateClassUnset RateClass = iota
	RateClassAbsolute
	RateClassRelative
)

// RateOverride carries the `rate` block of a quality override or of the
// run-level rate-mode configuration: bps/minrate/maxrate, all in the same
// RateClass, plus an optional absolute-only hard cap.
type RateOverride struct {
	Class   RateClass
	BPS     float64 // bytes/sec (absolute) or multiplier in [0,10] (relative)
	MinRate float64
	MaxRate float64
	HasMin  bool
	HasMax  bool
}

// QualityOverride is the per-camera-pattern override: a `cq` value, a
// `rate` block, or both (only the active mode's half is consulted).
type QualityOverride struct {
	CQ      *int
	Rate    *RateOverride
	HardCap float64 // absolute bytes/sec ceiling; 0 = no cap
	HasCap  bool
}

// QualityDecision is the resolved, tagged outcome of decide_quality: either
// a single CQ/CRF index or a resolved absolute bitrate triple.
type QualityDecision struct {
	Mode    QualityMode
	CQ      int
	BPS     int64 // bytes/sec, resolved to an absolute value
	MinRate int64 // bytes/sec, 0 if unset
	MaxRate int64 // bytes/sec, 0 if unset
}
