// Package envelope provides the fixed-point fade-out envelope.
package envelope

import "math"

// Unset marks a fade or silence position that has not been set.
const Unset uint32 = math.MaxUint32

// Unity is a volume of 1.0 in 16.16 fixed point.
const Unity int32 = 0x10000

// VolumeAt returns the 16.16 volume multiplier for the given playback sample.
// Before fadeStart the master volume is returned unchanged. Inside the fade
// window the master volume is scaled by (1-t)^2, where t runs linearly from 0
// to 1 over fadeLen samples. At and after fadeStart+fadeLen the result is 0.
func VolumeAt(cur, fadeStart, fadeLen uint32, master int32) int32 {
	if fadeStart == Unset || cur < fadeStart {
		return master
	}

	elapsed := cur - fadeStart
	if elapsed >= fadeLen {
		return 0
	}

	// 0x10000 .. 1 in 16.16, squared into 0.32
	fade := uint64(elapsed) * 0x10000 / uint64(fadeLen)
	fade = 0x10000 - fade
	fade *= fade
	return int32((int64(fade) * int64(master)) >> 32)
}

// Fading reports whether cur lies inside or past the fade window.
func Fading(cur, fadeStart uint32) bool {
	return fadeStart != Unset && cur >= fadeStart
}

// MSecToSamples converts milliseconds to a sample count at rate, rounded.
func MSecToSamples(ms, rate uint32) uint32 {
	return uint32((uint64(ms)*uint64(rate) + 500) / 1000)
}

// VolumeToFixed converts a linear gain to 16.16 fixed point, rounded.
func VolumeToFixed(v float64) int32 {
	if v < 0 {
		return -int32(float64(Unity)*-v + 0.5)
	}
	return int32(float64(Unity)*v + 0.5)
}

// FixedToVolume converts a 16.16 fixed point volume to a linear gain.
func FixedToVolume(v int32) float64 {
	return float64(v) / float64(Unity)
}
