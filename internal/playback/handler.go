// Package playback implements the playback handler: on an inbound playBytes
// message it decodes the WAV payload, opens the output device, resamples on
// the fly if needed, and publishes playFinished when done.
package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rhasspy-community/desktop-satellite/internal/audio"
	"github.com/rhasspy-community/desktop-satellite/internal/config"
	"github.com/rhasspy-community/desktop-satellite/internal/dsp"
	"github.com/rhasspy-community/desktop-satellite/internal/mode"
	"github.com/rhasspy-community/desktop-satellite/internal/trace"
	"github.com/rhasspy-community/desktop-satellite/internal/wavfile"
)

// blockFrames is the playback block size, per spec §4.G step 5.
const blockFrames = 2048

// outputStream is the subset of *audio.Stream the handler needs; narrowed to
// an interface so tests can substitute a fake device.
type outputStream interface {
	Write(pcm []byte) error
	Close() error
}

// Publisher is the subset of bus.Client the handler needs to announce
// completion.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Handler implements the playBytes → playFinished round trip.
type Handler struct {
	reg        *mode.Register
	bus        Publisher
	site       string
	playerCfg  config.PlayerConfig
	openOutput func(audio.StreamConfig) (outputStream, error)
	deviceRate func(name string) (float64, error)
}

// New builds a Handler for the given site and player configuration.
func New(reg *mode.Register, bus Publisher, site string, playerCfg config.PlayerConfig) *Handler {
	return &Handler{
		reg:        reg,
		bus:        bus,
		site:       site,
		playerCfg:  playerCfg,
		openOutput: openDeviceOutput,
		deviceRate: audio.DeviceRate,
	}
}

func openDeviceOutput(cfg audio.StreamConfig) (outputStream, error) {
	return audio.OpenOutput(cfg)
}

// RequestID extracts the request id from a playBytes topic, which has the
// site as its third segment and the request id as its fifth:
// hermes/audioServer/<site>/playBytes/<id>.
func RequestID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 5 {
		return ""
	}
	return parts[4]
}

// Handle runs the full playback round trip for one playBytes message. It is
// meant to be called inline on the bus-dispatch goroutine: playback
// deliberately blocks dispatch so concurrent playBytes requests serialise
// and never overlap a capture session.
func (h *Handler) Handle(topic string, payload []byte) {
	requestID := RequestID(topic)
	ctx, span := trace.StartSpan(context.Background(), "playback")
	span.SetAttr("request_id", requestID)
	defer span.End()
	h.handle(ctx, requestID, payload)
}

func (h *Handler) handle(ctx context.Context, requestID string, payload []byte) {
	logger := trace.Logger(ctx).With("request_id", requestID, "site", h.site)

	h.reg.SetPlaying(true)
	defer func() {
		h.reg.SetPlaying(false)
		h.publishFinished(requestID, logger)
	}()

	if !h.playerCfg.Enabled {
		logger.Debug("playback: player disabled, skipping device I/O")
		return
	}

	pcm, format, err := wavfile.Decode(payload)
	if err != nil {
		logger.Warn("playback: malformed WAV payload", "error", err)
		return
	}

	outRate, err := h.resolveOutputRate(format.SampleRate)
	if err != nil {
		logger.Warn("playback: failed to resolve output device rate", "error", err)
		return
	}

	stream, err := h.openOutput(audio.StreamConfig{
		DeviceName:      h.playerCfg.Device,
		SampleWidth:     int(format.SampleBits) / 8,
		Channels:        int(format.Channels),
		SampleRate:      outRate,
		FramesPerBuffer: blockFrames,
	})
	if err != nil {
		logger.Error("playback: failed to open output stream", "error", err)
		return
	}
	defer stream.Close()

	h.stream(stream, pcm, format, uint32(outRate), logger)
}

// resolveOutputRate implements spec §4.G step 4: no device override plays at
// the payload's own rate; an explicit device override plays at that
// device's default rate instead.
func (h *Handler) resolveOutputRate(sourceRate uint32) (float64, error) {
	if h.playerCfg.Device == "" {
		return float64(sourceRate), nil
	}
	return h.deviceRate(h.playerCfg.Device)
}

// stream writes pcm to the device in blockFrames-frame blocks, threading a
// single resampler state across blocks when auto_convert is enabled and the
// source and device rates differ. Convert is width- and channel-generic, so
// this applies uniformly regardless of the payload's channel count or
// sample width.
func (h *Handler) stream(out outputStream, pcm []byte, format wavfile.Format, outRate uint32, logger *slog.Logger) {
	bytesPerFrame := format.BytesPerFrame()
	blockBytes := blockFrames * bytesPerFrame
	channels := int(format.Channels)
	sampleWidth := int(format.SampleBits) / 8
	convert := h.playerCfg.AutoConvert && format.SampleRate != outRate
	var state *dsp.ConverterState
	if convert {
		state = &dsp.ConverterState{}
	}

	for off := 0; off < len(pcm); off += blockBytes {
		end := off + blockBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		block := pcm[off:end]
		if convert {
			block = dsp.Convert(state, block, format.SampleRate, outRate, channels, sampleWidth)
		}
		if len(block) == 0 {
			continue
		}
		if err := out.Write(block); err != nil {
			logger.Warn("playback: device write failed, aborting stream", "error", err)
			return
		}
	}
}

func (h *Handler) publishFinished(requestID string, logger *slog.Logger) {
	body, err := json.Marshal(struct {
		ID     string `json:"id"`
		SiteID string `json:"siteId"`
	}{ID: requestID, SiteID: h.site})
	if err != nil {
		logger.Error("playback: failed to encode playFinished", "error", err)
		return
	}
	topic := fmt.Sprintf("hermes/audioServer/%s/playFinished", h.site)
	if err := h.bus.Publish(topic, body); err != nil {
		logger.Error("playback: playFinished publish failed", "error", err)
	}
}
