// Package audio owns microphone capture, speaker output, and the PCM
// conversions between them. All live audio is little-endian signed 16-bit
// mono: 16 kHz on the way up, 24 kHz on the way down.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// CaptureSampleRate is the outbound microphone rate.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the inbound assistant audio rate.
	PlaybackSampleRate = 24000

	bytesPerSample = 2
)

// Float32ToInt16LE converts floating-point samples in [-1, 1] to packed
// little-endian int16 PCM. Out-of-range samples are clamped. Negative values
// scale by 0x8000 and positive by 0x7FFF so both extremes map onto the full
// int16 range.
func Float32ToInt16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		var s int16
		if f < 0 {
			s = int16(f * 0x8000)
		} else {
			s = int16(f * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(s))
	}
	return out
}

// DecodeFloat32LE reinterprets raw capture bytes as float32 samples.
// A trailing partial sample is ignored.
func DecodeFloat32LE(raw []byte) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// RMS16 computes the root-mean-square level of int16 PCM, normalized to
// [0, 1]. Used for volume metering only.
func RMS16(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:])))
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768.0
}

// Duration returns the playback duration of int16 mono PCM at the given rate.
func Duration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
