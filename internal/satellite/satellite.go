// Package satellite is the lifecycle orchestrator: it constructs every
// other component from a loaded configuration, starts the capture and
// publisher workers, and owns the bus connection and audio host API for the
// life of the process.
package satellite

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rhasspy-community/desktop-satellite/internal/audio"
	"github.com/rhasspy-community/desktop-satellite/internal/bus"
	"github.com/rhasspy-community/desktop-satellite/internal/capture"
	"github.com/rhasspy-community/desktop-satellite/internal/config"
	"github.com/rhasspy-community/desktop-satellite/internal/control"
	"github.com/rhasspy-community/desktop-satellite/internal/mode"
	"github.com/rhasspy-community/desktop-satellite/internal/playback"
	"github.com/rhasspy-community/desktop-satellite/internal/publish"
)

// chunkQueueSize bounds the capture-to-publisher channel. The publisher
// drains it far faster than one ~120ms capture period fills it; Send still
// blocks rather than drops if it ever backs up, preserving FIFO delivery.
const chunkQueueSize = 32

// Satellite wires the mode register, bus connection, control router, and
// (when the recorder is enabled) the capture and publisher workers.
type Satellite struct {
	cfg *config.Config
	reg *mode.Register
	bus *bus.Client
}

// New builds and wires a Satellite: it initializes the audio host API,
// dials the bus, starts the control router, and is ready for Run.
func New(cfg *config.Config) (*Satellite, error) {
	if err := audio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize audio host API: %w", err)
	}

	reg := mode.New()

	clientID := fmt.Sprintf("rhasspy-desktop-satellite-%s", cfg.Site)
	busClient, err := bus.Dial(clientID, cfg.MQTT)
	if err != nil {
		_ = audio.Terminate()
		return nil, err
	}

	s := &Satellite{cfg: cfg, reg: reg, bus: busClient}

	playbackHandler := playback.New(reg, busClient, cfg.Site, cfg.Player)
	router := control.New(busClient, reg, playbackHandler, *cfg)
	if err := router.Start(); err != nil {
		busClient.Disconnect(0)
		_ = audio.Terminate()
		return nil, err
	}

	return s, nil
}

// Run starts the capture and publisher workers (if the recorder is enabled)
// and returns immediately; it does not block. Callers wait for their own
// shutdown signal and then call Close.
func (s *Satellite) Run() {
	if !s.cfg.Recorder.Enabled {
		slog.Info("satellite started", "site", s.cfg.Site, "recorder", false, "player", s.cfg.Player.Enabled)
		return
	}

	queue := make(chan capture.Chunk, chunkQueueSize)
	captureWorker := capture.New(s.reg, s.cfg.Recorder, queue)
	publishWorker := publish.New(queue, s.bus, s.cfg.Site, s.cfg.Recorder, s.reg)

	go captureWorker.Run()
	go publishWorker.Run()
	slog.Info("satellite started", "site", s.cfg.Site, "recorder", true, "player", s.cfg.Player.Enabled)
}

// RequestStop latches server_stop, unblocking the capture worker and
// stopping the publisher worker at its next loop boundary.
func (s *Satellite) RequestStop() {
	s.reg.RequestStop()
}

// Close tears down the bus connection and the audio host API. It is safe to
// call after RequestStop once the workers have had a chance to observe it.
func (s *Satellite) Close() {
	s.bus.Disconnect(500 * time.Millisecond)
	if err := audio.Terminate(); err != nil {
		slog.Warn("audio: terminate failed", "error", err)
	}
}
