// Package capture implements the capture worker: the goroutine that owns the
// input audio stream, gates captured audio through the VAD segmenter when
// armed, and enqueues publishable chunks for the publisher worker.
package capture

import (
	"log/slog"
	"math"
	"time"

	"github.com/rhasspy-community/desktop-satellite/internal/audio"
	"github.com/rhasspy-community/desktop-satellite/internal/config"
	"github.com/rhasspy-community/desktop-satellite/internal/dsp"
	"github.com/rhasspy-community/desktop-satellite/internal/mode"
	"github.com/rhasspy-community/desktop-satellite/internal/vad"
)

// capturePeriod is the target duration of one device read, per spec ~120ms.
const capturePeriod = 120 * time.Millisecond

// availabilityPollDelay is how long the worker sleeps when the device
// reports no frames ready yet, to avoid busy-waiting on Available().
const availabilityPollDelay = 10 * time.Millisecond

// Chunk is one capture period's worth of raw interleaved PCM, flowing from
// the capture worker to the publisher worker's queue. It is discarded after
// publication.
type Chunk struct {
	Data []byte
}

// inputStream is the subset of *audio.Stream the capture worker needs;
// narrowed to an interface so tests can substitute a fake device.
type inputStream interface {
	Read() ([]byte, error)
	Available() (int, error)
	Close() error
}

// Worker drives §4.E's outer/inner loop: blocks on the mode register while
// recording is not wanted, otherwise owns the input stream for as long as
// RecordAudio holds.
type Worker struct {
	reg    *mode.Register
	cfg    config.RecorderConfig
	out    chan<- Chunk
	openIn func(audio.StreamConfig) (inputStream, error)
}

// New builds a Worker that enqueues chunks onto out.
func New(reg *mode.Register, cfg config.RecorderConfig, out chan<- Chunk) *Worker {
	return &Worker{reg: reg, cfg: cfg, out: out, openIn: openDeviceInput}
}

func openDeviceInput(cfg audio.StreamConfig) (inputStream, error) {
	return audio.OpenInput(cfg)
}

// FramesPerBuffer returns the device read size for one capture period at the
// worker's configured sample rate.
func (w *Worker) FramesPerBuffer() int {
	return framesPerBuffer(w.cfg.SampleRate)
}

func framesPerBuffer(sampleRate int) int {
	return int(math.Round(float64(sampleRate) * capturePeriod.Seconds()))
}

// Run executes the outer loop until the mode register latches server_stop.
func (w *Worker) Run() {
	for {
		snap := w.reg.Snapshot()
		if snap.ServerStop {
			return
		}
		if !snap.RecordAudio {
			w.reg.WaitForChange()
			continue
		}
		w.captureSession()
	}
}

// captureSession opens the input stream and runs the inner loop until
// RecordAudio drops or an unrecoverable read error occurs, then closes the
// stream. VAD and resampler state are fresh for every session.
func (w *Worker) captureSession() {
	frames := w.FramesPerBuffer()
	stream, err := w.openIn(audio.StreamConfig{
		DeviceName:      w.cfg.Device,
		SampleWidth:     w.cfg.SampleWidth,
		Channels:        w.cfg.Channels,
		SampleRate:      float64(w.cfg.SampleRate),
		FramesPerBuffer: frames,
	})
	if err != nil {
		slog.Error("capture: failed to open input stream", "error", err)
		return
	}
	defer stream.Close()

	vadState := &dsp.ConverterState{}
	classifier := vad.NewClassifier(w.cfg.VAD.Mode)
	silenceFrames := vad.SilenceFrames(uint32(w.cfg.SampleRate), frames, w.cfg.VAD.Silence)
	segmenter := vad.NewSegmenter(classifier, silenceFrames)

	for {
		snap := w.reg.Snapshot()
		if !snap.RecordAudio {
			return
		}

		if n, err := stream.Available(); err == nil && n == 0 {
			time.Sleep(availabilityPollDelay)
			continue
		}

		pcm, err := stream.Read()
		if err != nil {
			slog.Error("capture: read failed, reopening stream", "error", err)
			return
		}

		if w.cfg.VAD.Enabled && snap.WakewordListen {
			w.gateAndEnqueue(pcm, vadState, segmenter)
		} else {
			w.enqueue(pcm)
		}
	}
}

// gateAndEnqueue runs the VAD feed (downmix + normalize to 16-bit + rate-
// convert to a VAD-supported rate) and applies the segmenter's enqueue
// decision to the original, un-downmixed capture chunk. Downmix and the
// normalization step are width-aware so any of the recorder's valid sample
// widths (1/2/4 bytes) feed the classifier correctly; the classifier itself
// only ever sees normalized 16-bit mono, per its fixed contract.
func (w *Worker) gateAndEnqueue(pcm []byte, vadState *dsp.ConverterState, segmenter *vad.Segmenter) {
	mono := dsp.Downmix(pcm, w.cfg.Channels, w.cfg.SampleWidth)
	mono16 := dsp.NormalizeTo16(mono, w.cfg.SampleWidth)
	vadRate := dsp.NearestVADRate(uint32(w.cfg.SampleRate))
	feed := dsp.Convert(vadState, mono16, uint32(w.cfg.SampleRate), vadRate, 1, 2)

	decision := segmenter.Feed(feed, vadRate)
	if decision.SpeechStarted {
		slog.Info("voice activity started")
	}
	if decision.SpeechStopped {
		slog.Info("voice activity stopped")
	}
	if decision.Enqueue {
		w.enqueue(pcm)
	}
}

// enqueue hands pcm to the publisher's queue. Sending blocks if the queue is
// full rather than dropping, since every surviving chunk must reach
// audioFrame exactly once and in order.
func (w *Worker) enqueue(pcm []byte) {
	data := make([]byte, len(pcm))
	copy(data, pcm)
	w.out <- Chunk{Data: data}
}
