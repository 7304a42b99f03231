// Package dsp implements the stateful PCM conversions the capture and
// playback paths need: channel downmix, rate conversion, and width
// normalization, all threading filter state across successive chunks so
// that no clicks appear at chunk boundaries.
package dsp

import (
	"encoding/binary"
	"math"
)

// decodeSample reads one little-endian signed PCM sample of width bytes
// (1, 2, or 4) and sign-extends it into an int32.
func decodeSample(b []byte, width int) int32 {
	switch width {
	case 1:
		return int32(int8(b[0]))
	case 4:
		return int32(binary.LittleEndian.Uint32(b))
	default:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	}
}

// encodeSample writes v as a little-endian signed PCM sample of width bytes,
// truncating to the target width.
func encodeSample(buf []byte, width int, v int32) {
	switch width {
	case 1:
		buf[0] = byte(int8(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	default:
		binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
	}
}

// Downmix averages interleaved channels at equal gain down to mono,
// preserving the input sample width. sampleWidth must be one of the
// recorder's valid widths (1, 2, or 4 bytes), per the config invariant.
// Frames with a remainder byte (not a whole sample set) are dropped,
// matching audio device behaviour of only ever delivering whole frames.
func Downmix(pcm []byte, channels, sampleWidth int) []byte {
	if channels <= 1 {
		return pcm
	}

	frameBytes := channels * sampleWidth
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*sampleWidth)

	for i := 0; i < frames; i++ {
		frame := pcm[i*frameBytes : (i+1)*frameBytes]
		var sum int64
		for c := 0; c < channels; c++ {
			sum += int64(decodeSample(frame[c*sampleWidth:(c+1)*sampleWidth], sampleWidth))
		}
		avg := int32(sum / int64(channels))
		encodeSample(out[i*sampleWidth:(i+1)*sampleWidth], sampleWidth, avg)
	}
	return out
}

// NormalizeTo16 rescales native-width PCM samples into 16-bit little-endian
// signed PCM. The VAD classifier only ever understands 16-bit samples (it
// mirrors webrtcvad's own fixed contract); this lets the VAD feed accept any
// of the recorder's valid sample widths upstream of the classifier.
func NormalizeTo16(pcm []byte, sampleWidth int) []byte {
	if sampleWidth == 2 {
		return pcm
	}
	samples := len(pcm) / sampleWidth
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := decodeSample(pcm[i*sampleWidth:(i+1)*sampleWidth], sampleWidth)
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(scaleTo16(v, sampleWidth))))
	}
	return out
}

// scaleTo16 rescales a decoded sample from sampleWidth's native range into
// the 16-bit signed range.
func scaleTo16(v int32, sampleWidth int) int32 {
	switch sampleWidth {
	case 1:
		return v << 8
	case 4:
		return v >> 16
	default:
		return v
	}
}

// ConverterState carries the fractional sample-position memory of a rate
// converter across calls. The zero value is ready to use. A fresh
// ConverterState must be allocated whenever a logical stream restarts (a
// capture stream reopening, or a new playBytes request) so the converter
// does not interpolate across unrelated audio. last is sized to the
// channel count on first use.
type ConverterState struct {
	// pos is the fractional read position into the next call's input,
	// carried over from the end of the previous call.
	pos float64
	// last holds the final input sample of the previous call for each
	// channel, used as the left-hand side of the first interpolation in the
	// next call.
	last    []int32
	hasLast bool
}

// Convert resamples interleaved little-endian PCM from srcRate to dstRate
// using linear interpolation, threading s across calls. Passing the same
// *ConverterState across consecutive chunks of one stream avoids the
// boundary click a stateless per-chunk conversion would introduce. channels
// and sampleWidth describe pcm's layout; every channel is interpolated
// independently at the same fractional position.
func Convert(s *ConverterState, pcm []byte, srcRate, dstRate uint32, channels, sampleWidth int) []byte {
	frameBytes := channels * sampleWidth
	if srcRate == dstRate || channels <= 0 || sampleWidth <= 0 || len(pcm) < frameBytes {
		return pcm
	}

	frames := len(pcm) / frameBytes
	ratio := float64(srcRate) / float64(dstRate)

	if len(s.last) != channels {
		s.last = make([]int32, channels)
	}

	at := func(frameIdx, ch int) int32 {
		if frameIdx < 0 {
			if s.hasLast {
				return s.last[ch]
			}
			return decodeSample(pcm[ch*sampleWidth:(ch+1)*sampleWidth], sampleWidth)
		}
		off := frameIdx*frameBytes + ch*sampleWidth
		return decodeSample(pcm[off:off+sampleWidth], sampleWidth)
	}

	var out []byte
	pos := s.pos
	for {
		idx := int(math.Floor(pos))
		if idx >= frames {
			break
		}
		frac := pos - math.Floor(pos)
		frameOut := make([]byte, frameBytes)
		for c := 0; c < channels; c++ {
			a := at(idx-1, c)
			b := at(idx, c)
			interp := float64(a) + (float64(b)-float64(a))*frac
			encodeSample(frameOut[c*sampleWidth:(c+1)*sampleWidth], sampleWidth, int32(interp))
		}
		out = append(out, frameOut...)
		pos += ratio
	}

	s.pos = pos - float64(frames)
	if frames > 0 {
		for c := 0; c < channels; c++ {
			s.last[c] = at(frames-1, c)
		}
		s.hasLast = true
	}
	return out
}

// SupportedVADRates are the sample rates the VAD segmenter accepts.
var SupportedVADRates = map[uint32]bool{8000: true, 16000: true, 32000: true, 48000: true}

// NearestVADRate returns rate unchanged if it is already VAD-supported,
// otherwise 16000, the default VAD-feed rate per the capture worker's
// conversion policy.
func NearestVADRate(rate uint32) uint32 {
	if SupportedVADRates[rate] {
		return rate
	}
	return 16000
}
