package publish

import (
	"sync"
	"testing"
	"time"

	"github.com/rhasspy-community/desktop-satellite/internal/capture"
	"github.com/rhasspy-community/desktop-satellite/internal/config"
	"github.com/rhasspy-community/desktop-satellite/internal/wavfile"
)

type fakeBus struct {
	mu        sync.Mutex
	published [][]byte
	topics    []string
}

func (f *fakeBus) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeBus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeStopper struct {
	mu      sync.Mutex
	stopped bool
}

func (f *fakeStopper) ServerStop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeStopper) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func TestWorkerPublishesWAVWrappedChunks(t *testing.T) {
	in := make(chan capture.Chunk, 4)
	bus := &fakeBus{}
	stop := &fakeStopper{}
	cfg := config.RecorderConfig{SampleRate: 16000, SampleWidth: 2, Channels: 1}
	w := New(in, bus, "kitchen", cfg, stop)

	go w.Run()

	pcm := []byte{1, 2, 3, 4}
	in <- capture.Chunk{Data: pcm}

	deadline := time.After(2 * time.Second)
	for bus.count() < 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for publish")
		case <-time.After(5 * time.Millisecond):
		}
	}
	stop.stop()

	if bus.topics[0] != "hermes/audioServer/kitchen/audioFrame" {
		t.Errorf("topic = %q", bus.topics[0])
	}
	decoded, format, err := wavfile.Decode(bus.published[0])
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(decoded) != string(pcm) {
		t.Errorf("decoded PCM = %v, want %v", decoded, pcm)
	}
	if format.SampleRate != 16000 || format.Channels != 1 || format.SampleBits != 16 {
		t.Errorf("format = %+v", format)
	}
}

func TestWorkerStopsOnServerStop(t *testing.T) {
	in := make(chan capture.Chunk, 1)
	bus := &fakeBus{}
	stop := &fakeStopper{stopped: true}
	cfg := config.RecorderConfig{SampleRate: 16000, SampleWidth: 2, Channels: 1}
	w := New(in, bus, "default", cfg, stop)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return when ServerStop was already true")
	}
}
