package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3. Used for crossfade volume ramps: the outgoing clip
// runs 1-Smoothstep(t) while the incoming clip runs Smoothstep(t), so the
// two gains always sum to exactly 1.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// ApplyGain scales a frame by gain (0..1) into a new buffer.
func ApplyGain(frame []int16, gain float64) []int16 {
	out := make([]int16, len(frame))
	for i, s := range frame {
		out[i] = clip(float64(s) * gain)
	}
	return out
}

// MixFrames sums two frames sample-wise with int16 clipping. Both frames
// must have the same length. Callers pre-scale each frame with ApplyGain;
// mixing never handles more than two sources.
func MixFrames(a, b []int16) []int16 {
	out := make([]int16, len(a))
	for i := range a {
		out[i] = clip(float64(a[i]) + float64(b[i]))
	}
	return out
}

func clip(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
