// Package pcm provides conversion helpers for the 16-bit little-endian PCM
// samples that flow through the denoising pipeline.
//
// All audio in this module is mono int16 PCM. The helpers here convert
// between the wire representation ([]byte, little-endian), the processing
// representation ([]int16), and the float representation some engines
// operate on. Conversions that narrow a value clamp to the int16 range
// instead of overflowing.
package pcm

import "time"

// BytesPerSample is the wire size of a single 16-bit sample.
const BytesPerSample = 2

// BytesToInt16 decodes little-endian int16 PCM bytes into samples.
// A trailing odd byte is ignored.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// Int16ToBytes encodes samples as little-endian int16 PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Int16ToFloat32 copies src into dst keeping the int16 value range
// (no normalization). dst must be at least as long as src.
func Int16ToFloat32(src []int16, dst []float32) {
	for i, s := range src {
		dst[i] = float32(s)
	}
}

// Float32ToInt16 rounds src into dst, clamping each value to the int16
// range. dst must be at least as long as src.
func Float32ToInt16(src []float32, dst []int16) {
	for i, f := range src {
		if f >= 0 {
			f += 0.5
		} else {
			f -= 0.5
		}
		dst[i] = Clamp16(int32(f))
	}
}

// Clamp16 clamps v to the int16 range.
func Clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Duration returns the play time of sampleCount mono samples at rate Hz.
// It returns 0 for non-positive rates.
func Duration(sampleCount, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(sampleCount) * time.Second / time.Duration(rate)
}
