package audio

import (
	"encoding/binary"
	"math"
)

// Energy returns the RMS of a linear16 little-endian frame scaled to [0,1].
func Energy(frame []byte) float64 {
	samples := len(frame) / 2
	if samples == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(frame[i*2:]))) / 32768
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(samples))
}

// DownmixStereo16 averages interleaved stereo linear16 samples into mono.
func DownmixStereo16(stereo []byte) []byte {
	frames := len(stereo) / 4
	mono := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		left := int32(int16(binary.LittleEndian.Uint16(stereo[i*4:])))
		right := int32(int16(binary.LittleEndian.Uint16(stereo[i*4+2:])))
		binary.LittleEndian.PutUint16(mono[i*2:], uint16(int16((left+right)/2)))
	}
	return mono
}

// Resample16 converts mono linear16 audio between sample rates using linear
// interpolation. Good enough for speech playback, not for music.
func Resample16(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}

	in := len(pcm) / 2
	if in == 0 {
		return nil
	}
	out := int(int64(in) * int64(toRate) / int64(fromRate))
	resampled := make([]byte, out*2)
	step := float64(fromRate) / float64(toRate)
	for i := 0; i < out; i++ {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		a := float64(int16(binary.LittleEndian.Uint16(pcm[idx*2:])))
		b := a
		if idx+1 < in {
			b = float64(int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:])))
		}
		v := a + (b-a)*frac
		binary.LittleEndian.PutUint16(resampled[i*2:], uint16(int16(math.Round(v))))
	}
	return resampled
}
