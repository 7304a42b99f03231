package vad

import (
	"encoding/binary"
	"math"
	"testing"
)

func tone(rate uint32, ms int, amplitude int16) []byte {
	n := int(rate) * ms / 1000
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(float64(amplitude) * math.Sin(float64(i)*0.3))
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
	}
	return out
}

func silence(rate uint32, ms int) []byte {
	return make([]byte, int(rate)*ms/1000*2)
}

func TestIsSilenceDetectsLoudTone(t *testing.T) {
	c := NewClassifier(0)
	buf := tone(16000, 30, 20000)
	if c.IsSilence(buf, 16000) {
		t.Error("loud tone should not be classified as silence")
	}
}

func TestIsSilenceDetectsQuiet(t *testing.T) {
	c := NewClassifier(2)
	buf := silence(16000, 30)
	if !c.IsSilence(buf, 16000) {
		t.Error("zeroed buffer should be classified as silence")
	}
}

func TestIsSilenceIgnoresTrailingRemainder(t *testing.T) {
	c := NewClassifier(0)
	// One full 30ms silent chunk plus a partial chunk of loud tone that's
	// too short to count.
	buf := append(silence(16000, 30), tone(16000, 5, 20000)...)
	if !c.IsSilence(buf, 16000) {
		t.Error("short trailing remainder should be ignored")
	}
}

func TestHigherModeRequiresLouderSpeech(t *testing.T) {
	quiet := tone(16000, 30, 600)
	low := NewClassifier(0)
	high := NewClassifier(3)
	if low.IsSilence(quiet, 16000) {
		t.Error("mode 0 should classify quiet tone as speech")
	}
	if !high.IsSilence(quiet, 16000) {
		t.Error("mode 3 should classify quiet tone as silence")
	}
}

func TestSilenceFrames(t *testing.T) {
	chunkFrames := int(16000 * 120 / 1000) // 120ms capture period
	got := SilenceFrames(16000, chunkFrames, 1.0)
	want := int(math.Round(16000.0 * 1.0 / float64(chunkFrames)))
	if got != want {
		t.Errorf("SilenceFrames() = %d, want %d", got, want)
	}
}

func TestSegmenterSpeechThenHangoverThenSilence(t *testing.T) {
	c := NewClassifier(0)
	seg := NewSegmenter(c, 2) // 2 chunks of hangover

	speech := tone(16000, 30, 20000)
	quiet := silence(16000, 30)

	d := seg.Feed(speech, 16000)
	if !d.Enqueue || !d.SpeechStarted {
		t.Fatalf("first speech chunk: got %+v, want enqueue+started", d)
	}

	d = seg.Feed(speech, 16000)
	if !d.Enqueue || d.SpeechStarted {
		t.Fatalf("second speech chunk: got %+v", d)
	}

	// Silence begins: hangover should enqueue for 2 more chunks.
	d = seg.Feed(quiet, 16000)
	if !d.Enqueue {
		t.Fatalf("first hangover chunk should enqueue: got %+v", d)
	}
	d = seg.Feed(quiet, 16000)
	if !d.Enqueue {
		t.Fatalf("second hangover chunk should enqueue: got %+v", d)
	}

	// Hangover exhausted: should transition to silence and drop.
	d = seg.Feed(quiet, 16000)
	if d.Enqueue || !d.SpeechStopped {
		t.Fatalf("hangover exhaustion: got %+v, want drop+stopped", d)
	}

	// Further silence is dropped with no further transition logged.
	d = seg.Feed(quiet, 16000)
	if d.Enqueue || d.SpeechStopped {
		t.Fatalf("steady silence: got %+v, want drop, no transition", d)
	}
}

func TestSegmenterStartsInSilence(t *testing.T) {
	c := NewClassifier(0)
	seg := NewSegmenter(c, 1)
	d := seg.Feed(silence(16000, 30), 16000)
	if d.Enqueue {
		t.Error("segmenter should start in_silence and drop silent chunks")
	}
}

func TestSegmenterReset(t *testing.T) {
	c := NewClassifier(0)
	seg := NewSegmenter(c, 1)
	seg.Feed(tone(16000, 30, 20000), 16000)
	if seg.inSilence {
		t.Fatal("precondition: segmenter should be in speech")
	}
	seg.Reset()
	if !seg.inSilence {
		t.Error("Reset() should return segmenter to in_silence")
	}
}
