package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// FrameCount returns the number of whole 20ms frames in a sample buffer.
func FrameCount(samples []int16) int {
	return len(samples) / FrameSamples
}

// Duration returns the playback duration of a sample buffer.
func Duration(samples []int16) time.Duration {
	return time.Duration(FrameCount(samples)) * FrameDuration
}
