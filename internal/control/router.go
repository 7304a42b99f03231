// Package control implements the control-message router: it subscribes to
// the hermes topics the satellite cares about, enforces site scoping on
// every inbound payload, and translates accepted messages into mode
// register mutations or a playback invocation.
package control

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rhasspy-community/desktop-satellite/internal/bus"
	"github.com/rhasspy-community/desktop-satellite/internal/config"
	"github.com/rhasspy-community/desktop-satellite/internal/mode"
)

// subscriber is the subset of *bus.Client the router needs.
type subscriber interface {
	Subscribe(topic string, handler bus.Handler) error
}

// playbackHandler is the subset of *playback.Handler the router needs.
type playbackHandler interface {
	Handle(topic string, payload []byte)
}

// sited is the payload shape every control message is expected to carry;
// every other field is ignored.
type sited struct {
	SiteID string `json:"siteId"`
}

// Router subscribes to the control topics listed in §4.H and dispatches
// accepted messages to the mode register or the playback handler.
type Router struct {
	bus      subscriber
	reg      *mode.Register
	playback playbackHandler
	site     string
	cfg      config.Config
}

// New builds a Router. It does not subscribe to anything until Start is called.
func New(bus subscriber, reg *mode.Register, playback playbackHandler, cfg config.Config) *Router {
	return &Router{bus: bus, reg: reg, playback: playback, site: cfg.Site, cfg: cfg}
}

// Start subscribes to exactly the topics enabled by cfg, per the table in
// §4.H. It returns the first subscription error encountered, if any.
func (r *Router) Start() error {
	recorder := r.cfg.Recorder.Enabled
	wakeup := recorder && r.cfg.Recorder.Wakeup
	player := r.cfg.Player.Enabled

	subs := []struct {
		enabled bool
		topic   string
		handle  func(topic string, payload []byte)
	}{
		{recorder, "hermes/asr/toggleOff", r.siteScoped(func() { r.reg.SetListen(false) })},
		{recorder, "hermes/asr/startListening", r.siteScoped(func() { r.reg.SetListen(true) })},
		{recorder, "hermes/asr/stopListening", r.siteScoped(func() { r.reg.SetListen(false) })},
		{wakeup, "hermes/hotword/toggleOn", r.siteScoped(func() { r.reg.SetWakeword(true) })},
		{wakeup, "hermes/hotword/toggleOff", r.siteScoped(func() { r.reg.SetWakeword(false) })},
		{recorder || player, r.playBytesTopic(), r.playback.Handle},
		{recorder && !player, r.playFinishedTopic(), r.siteScoped(func() { r.reg.SetPlaying(false) })},
	}

	for _, s := range subs {
		if !s.enabled {
			continue
		}
		if err := r.bus.Subscribe(s.topic, s.handle); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) playBytesTopic() string {
	return fmt.Sprintf("hermes/audioServer/%s/playBytes/+", r.site)
}

func (r *Router) playFinishedTopic() string {
	return fmt.Sprintf("hermes/audioServer/%s/playFinished", r.site)
}

// siteScoped wraps action so it only runs when the inbound payload's siteId
// matches the configured site. A missing siteId, or payload that fails to
// parse as JSON, is treated as non-match and dropped silently.
func (r *Router) siteScoped(action func()) func(topic string, payload []byte) {
	return func(topic string, payload []byte) {
		var msg sited
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Debug("control: dropping non-JSON payload", "topic", topic)
			return
		}
		if msg.SiteID != r.site {
			slog.Debug("control: dropping message for other site", "topic", topic, "siteId", msg.SiteID)
			return
		}
		action()
	}
}
