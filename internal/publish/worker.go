// Package publish implements the publisher worker: it drains the capture
// queue, wraps each chunk as a self-describing WAV container, and publishes
// it to the bus.
package publish

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rhasspy-community/desktop-satellite/internal/capture"
	"github.com/rhasspy-community/desktop-satellite/internal/config"
	"github.com/rhasspy-community/desktop-satellite/internal/wavfile"
)

// dequeueTimeout bounds how long Worker waits for a chunk before rechecking
// ServerStop, per the concurrency model's "100ms timeout" suspension point.
const dequeueTimeout = 100 * time.Millisecond

// Publisher is the subset of bus.Client the publisher worker needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// stopper reports whether the pipeline is shutting down. mode.Register
// satisfies this directly through its ServerStop method.
type stopper interface {
	ServerStop() bool
}

// Worker drains in and publishes each chunk to hermes/audioServer/<site>/audioFrame.
type Worker struct {
	in     <-chan capture.Chunk
	bus    Publisher
	site   string
	format wavfile.Format
	stop   stopper
}

// New builds a Worker. format describes the recorder's configured PCM
// layout, used to wrap every chunk in a matching WAV header.
func New(in <-chan capture.Chunk, bus Publisher, site string, cfg config.RecorderConfig, stop stopper) *Worker {
	return &Worker{
		in:   in,
		bus:  bus,
		site: site,
		format: wavfile.Format{
			SampleRate: uint32(cfg.SampleRate),
			Channels:   uint16(cfg.Channels),
			SampleBits: uint16(cfg.SampleWidth * 8),
		},
		stop: stop,
	}
}

// Topic returns the audioFrame topic this worker publishes to.
func (w *Worker) Topic() string {
	return fmt.Sprintf("hermes/audioServer/%s/audioFrame", w.site)
}

// Run drains the queue until the mode register latches server_stop. FIFO
// order is preserved because in is a single buffered channel with one
// producer (the capture worker) and this one consumer.
func (w *Worker) Run() {
	topic := w.Topic()
	for {
		if w.stop.ServerStop() {
			return
		}
		select {
		case chunk, ok := <-w.in:
			if !ok {
				return
			}
			w.publish(topic, chunk)
		case <-time.After(dequeueTimeout):
		}
	}
}

func (w *Worker) publish(topic string, chunk capture.Chunk) {
	wav := wavfile.Encode(chunk.Data, w.format)
	if err := w.bus.Publish(topic, wav); err != nil {
		slog.Error("publish: audioFrame publish failed", "error", err)
	}
}
