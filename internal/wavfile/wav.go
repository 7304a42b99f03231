// Package wavfile encodes and decodes RIFF/WAVE containers for PCM audio.
package wavfile

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/rhasspy-community/desktop-satellite/internal/apperr"
)

// Format describes the PCM layout carried by a WAV file.
type Format struct {
	SampleRate uint32
	Channels   uint16
	SampleBits uint16 // bits per sample, e.g. 16
}

// BytesPerFrame returns the byte size of one interleaved sample frame.
func (f Format) BytesPerFrame() int {
	return int(f.Channels) * int(f.SampleBits) / 8
}

// Encode wraps raw PCM bytes in a 44-byte canonical RIFF/WAVE header.
func Encode(pcm []byte, f Format) []byte {
	blockAlign := uint16(f.BytesPerFrame())
	byteRate := f.SampleRate * uint32(blockAlign)

	buf := new(bytes.Buffer)
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, f.Channels)
	binary.Write(buf, binary.LittleEndian, f.SampleRate)
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, f.SampleBits)

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// Decode parses a RIFF/WAVE container, returning its format and raw PCM
// payload. It tolerates extra chunks before the data chunk (e.g. LIST, fact)
// by skipping anything that isn't "fmt " or "data".
func Decode(raw []byte) ([]byte, Format, error) {
	r := bytes.NewReader(raw)

	var riffHeader [12]byte
	if _, err := io.ReadFull(r, riffHeader[:]); err != nil {
		return nil, Format{}, apperr.Wrap(apperr.WavDecode, "short read on RIFF header", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, Format{}, apperr.New(apperr.WavDecode, "not a RIFF/WAVE file")
	}

	var format Format
	var haveFormat bool
	for {
		var chunkID [4]byte
		var chunkSize uint32
		if _, err := io.ReadFull(r, chunkID[:]); err != nil {
			if err == io.EOF {
				return nil, Format{}, apperr.New(apperr.WavDecode, "missing data chunk")
			}
			return nil, Format{}, apperr.Wrap(apperr.UnexpectedEOF, "truncated WAV chunk header", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, Format{}, apperr.Wrap(apperr.UnexpectedEOF, "truncated WAV chunk size", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			var audioFormat uint16
			if err := binary.Read(r, binary.LittleEndian, &audioFormat); err != nil {
				return nil, Format{}, apperr.Wrap(apperr.WavDecode, "truncated fmt chunk", err)
			}
			if err := binary.Read(r, binary.LittleEndian, &format.Channels); err != nil {
				return nil, Format{}, apperr.Wrap(apperr.WavDecode, "truncated fmt chunk", err)
			}
			if err := binary.Read(r, binary.LittleEndian, &format.SampleRate); err != nil {
				return nil, Format{}, apperr.Wrap(apperr.WavDecode, "truncated fmt chunk", err)
			}
			// byteRate, blockAlign: not needed, derivable from the fields above.
			if _, err := r.Seek(6, 1); err != nil {
				return nil, Format{}, apperr.Wrap(apperr.WavDecode, "truncated fmt chunk", err)
			}
			if err := binary.Read(r, binary.LittleEndian, &format.SampleBits); err != nil {
				return nil, Format{}, apperr.Wrap(apperr.WavDecode, "truncated fmt chunk", err)
			}
			if remaining := int64(chunkSize) - 16; remaining > 0 {
				if _, err := r.Seek(remaining, 1); err != nil {
					return nil, Format{}, apperr.Wrap(apperr.WavDecode, "truncated fmt chunk extension", err)
				}
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, Format{}, apperr.New(apperr.WavDecode, "data chunk before fmt chunk")
			}
			pcm := make([]byte, chunkSize)
			n, err := io.ReadFull(r, pcm)
			if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
				return nil, Format{}, apperr.Wrap(apperr.UnexpectedEOF, "truncated data chunk", err)
			}
			return pcm[:n], format, nil
		default:
			if _, err := r.Seek(int64(chunkSize), 1); err != nil {
				return nil, Format{}, apperr.Wrap(apperr.UnexpectedEOF, "truncated chunk "+string(chunkID[:]), err)
			}
		}
	}
}
