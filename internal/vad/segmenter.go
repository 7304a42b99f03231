// Package vad classifies mono PCM audio as speech or silence and applies a
// silence-hangover policy matching the capture worker's segmenter loop.
package vad

import "math"

// frameMillis is the fixed chunk width the classifier operates on.
const frameMillis = 30

// modeThresholds maps aggressiveness mode (0=least aggressive, 3=most) to an
// RMS energy threshold on a normalized [-1, 1] sample scale. Higher modes
// require louder audio before classifying a frame as speech, trading missed
// quiet speech for fewer false triggers on background noise.
var modeThresholds = [4]float64{
	0: 0.010,
	1: 0.020,
	2: 0.035,
	3: 0.060,
}

// Classifier buffers 16-bit little-endian mono PCM into fixed 30 ms frames
// and classifies each as speech or silence by RMS energy against a
// mode-selected threshold.
type Classifier struct {
	threshold float64
}

// NewClassifier builds a Classifier for the given aggressiveness mode
// (clamped to 0..3).
func NewClassifier(mode int) *Classifier {
	if mode < 0 {
		mode = 0
	}
	if mode > 3 {
		mode = 3
	}
	return &Classifier{threshold: modeThresholds[mode]}
}

// FrameBytes returns the byte length of one 30 ms mono frame at rate,
// assuming 16-bit samples.
func FrameBytes(rate uint32) int {
	return int(rate) * frameMillis / 1000 * 2
}

// IsSilence reports whether buf, mono PCM at the given rate, contains no
// speech. It is split into fixed 30 ms chunks; any chunk classified as
// speech makes the whole buffer non-silent. A trailing remainder shorter
// than one chunk is ignored.
func (c *Classifier) IsSilence(buf []byte, rate uint32) bool {
	frameBytes := FrameBytes(rate)
	if frameBytes <= 0 {
		return true
	}
	for off := 0; off+frameBytes <= len(buf); off += frameBytes {
		if c.isSpeechFrame(buf[off : off+frameBytes]) {
			return false
		}
	}
	return true
}

func (c *Classifier) isSpeechFrame(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	var sumSq float64
	n := 0
	for i := 0; i+1 < len(frame); i += 2 {
		sample := int16(uint16(frame[i]) | uint16(frame[i+1])<<8)
		f := float64(sample) / 32768.0
		sumSq += f * f
		n++
	}
	if n == 0 {
		return false
	}
	rms := math.Sqrt(sumSq / float64(n))
	return rms > c.threshold
}

// SilenceFrames computes the number of additional chunks to keep emitting
// after speech ends before the segmenter reverts to silence, per
// silence_frames = round(rate * silence_seconds / chunk_frames).
func SilenceFrames(rate uint32, chunkFrames int, silenceSeconds float64) int {
	if chunkFrames <= 0 {
		return 0
	}
	return int(math.Round(float64(rate) * silenceSeconds / float64(chunkFrames)))
}

// Decision is the outcome of feeding one capture chunk through the
// segmenter: whether to enqueue it, and whether a state transition occurred
// worth logging.
type Decision struct {
	Enqueue       bool
	SpeechStarted bool
	SpeechStopped bool
}

// Segmenter implements the capture worker's §4.C loop: it tracks
// in_silence/silence_countdown across successive chunks and decides whether
// each chunk should be enqueued for publication.
type Segmenter struct {
	classifier    *Classifier
	silenceFrames int

	inSilence        bool
	silenceCountdown int
}

// NewSegmenter builds a Segmenter starting in silence, with silenceFrames
// chunks of hangover after speech ends.
func NewSegmenter(classifier *Classifier, silenceFrames int) *Segmenter {
	return &Segmenter{
		classifier:    classifier,
		silenceFrames: silenceFrames,
		inSilence:     true,
	}
}

// Feed classifies buf (mono PCM at rate) and returns the enqueue decision.
func (s *Segmenter) Feed(buf []byte, rate uint32) Decision {
	silent := s.classifier.IsSilence(buf, rate)

	if !silent {
		if s.inSilence {
			s.inSilence = false
			s.silenceCountdown = s.silenceFrames
			return Decision{Enqueue: true, SpeechStarted: true}
		}
		return Decision{Enqueue: true}
	}

	// Silent buffer.
	if s.inSilence {
		return Decision{Enqueue: false}
	}
	if s.silenceCountdown > 0 {
		s.silenceCountdown--
		return Decision{Enqueue: true}
	}
	s.inSilence = true
	return Decision{Enqueue: false, SpeechStopped: true}
}

// Reset returns the segmenter to its initial in_silence state, for use when
// the capture stream reopens.
func (s *Segmenter) Reset() {
	s.inSilence = true
	s.silenceCountdown = 0
}
