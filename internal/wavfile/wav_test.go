package wavfile

import (
	"bytes"
	"testing"

	"github.com/rhasspy-community/desktop-satellite/internal/apperr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	f := Format{SampleRate: 16000, Channels: 1, SampleBits: 16}

	encoded := Encode(pcm, f)

	gotPCM, gotFormat, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(gotPCM, pcm) {
		t.Errorf("Decode() pcm = %v, want %v", gotPCM, pcm)
	}
	if gotFormat != f {
		t.Errorf("Decode() format = %+v, want %+v", gotFormat, f)
	}
}

func TestEncodeHeaderFields(t *testing.T) {
	pcm := make([]byte, 100)
	f := Format{SampleRate: 44100, Channels: 2, SampleBits: 16}
	encoded := Encode(pcm, f)

	if len(encoded) != 44+100 {
		t.Fatalf("len(encoded) = %d, want %d", len(encoded), 144)
	}
	if string(encoded[0:4]) != "RIFF" || string(encoded[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if string(encoded[12:16]) != "fmt " {
		t.Error("missing fmt chunk")
	}
	if string(encoded[36:40]) != "data" {
		t.Error("missing data chunk")
	}
}

func TestDecodeRejectsNonRIFF(t *testing.T) {
	_, _, err := Decode([]byte("not a wav file at all............."))
	if !apperr.Is(err, apperr.WavDecode) {
		t.Errorf("Decode() err = %v, want WavDecode", err)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	encoded := Encode([]byte{1, 2, 3, 4}, Format{SampleRate: 16000, Channels: 1, SampleBits: 16})
	_, _, err := Decode(encoded[:20])
	if err == nil {
		t.Fatal("Decode() on truncated input should error")
	}
}

func TestDecodeSkipsUnknownChunks(t *testing.T) {
	pcm := []byte{9, 9, 9, 9}
	f := Format{SampleRate: 8000, Channels: 1, SampleBits: 16}
	encoded := Encode(pcm, f)

	// Splice a LIST chunk ("INFO") between fmt and data.
	fmtEnd := 12 + 8 + 16 // "RIFF"+size+"WAVE", "fmt "+size, then the 16-byte fmt payload
	extra := []byte("LIST")
	extra = append(extra, 4, 0, 0, 0)
	extra = append(extra, []byte("INFO")...)

	spliced := append(append(append([]byte{}, encoded[:fmtEnd]...), extra...), encoded[fmtEnd:]...)
	// Fix the RIFF size field for the new total length.
	riffSize := uint32(len(spliced) - 8)
	spliced[4] = byte(riffSize)
	spliced[5] = byte(riffSize >> 8)
	spliced[6] = byte(riffSize >> 16)
	spliced[7] = byte(riffSize >> 24)

	gotPCM, gotFormat, err := Decode(spliced)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(gotPCM, pcm) {
		t.Errorf("Decode() pcm = %v, want %v", gotPCM, pcm)
	}
	if gotFormat != f {
		t.Errorf("Decode() format = %+v, want %+v", gotFormat, f)
	}
}
