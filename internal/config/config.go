// Package config loads and validates the satellite's JSON configuration
// file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rhasspy-community/desktop-satellite/internal/apperr"
)

// DefaultPath is the configuration file location used when --config is not
// given.
const DefaultPath = "/etc/rhasspy-desktop-satellite.json"

// DefaultSite is the site identifier used when the config omits one.
const DefaultSite = "default"

// Config is the satellite's immutable, once-loaded configuration.
type Config struct {
	Site     string         `json:"site"`
	Player   PlayerConfig   `json:"player"`
	Recorder RecorderConfig `json:"recorder"`
	MQTT     MQTTConfig     `json:"mqtt"`
}

// PlayerConfig controls the playback handler.
type PlayerConfig struct {
	Enabled     bool    `json:"enabled"`
	Device      string  `json:"device"`
	AutoConvert bool    `json:"auto_convert"`
	FrameRate   float64 `json:"frame_rate"`
}

// RecorderConfig controls the capture worker.
type RecorderConfig struct {
	Enabled     bool      `json:"enabled"`
	Device      string    `json:"device"`
	Wakeup      bool      `json:"wakeup"`
	SampleRate  int       `json:"sampleRate"`
	SampleWidth int       `json:"sampleWidth"`
	Channels    int       `json:"channels"`
	VAD         VADConfig `json:"vad"`
}

// VADConfig controls the segmenter. Enabled defaults to false when the
// section is omitted, resolving the two recorder-config variants (with and
// without VAD) the original source carried as a single always-present field.
type VADConfig struct {
	Enabled        bool    `json:"enabled"`
	Mode           int     `json:"mode"`
	Silence        float64 `json:"silence"`
	StatusMessages bool    `json:"status_messages"`
}

// MQTTConfig describes the bus broker connection.
type MQTTConfig struct {
	Host           string      `json:"host"`
	Port           int         `json:"port"`
	Authentication *AuthConfig `json:"authentication"`
	TLS            *TLSConfig  `json:"tls"`
}

// AuthConfig carries broker username/password credentials.
type AuthConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TLSConfig carries broker TLS material paths.
type TLSConfig struct {
	CACertificates    string `json:"ca_certificates"`
	ClientCertificate string `json:"client_certificate"`
	ClientKey         string `json:"client_key"`
}

// Load reads and validates the config file at path. Missing sections in the
// JSON produce zero-valued (disabled) subsystems rather than an error.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.Wrap(apperr.ConfigNotFound, path, err)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, apperr.Wrap(apperr.ConfigPermission, path, err)
		}
		return nil, apperr.Wrap(apperr.ConfigNotFound, path, err)
	}

	cfg := &Config{Site: DefaultSite}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, apperr.Wrap(apperr.ConfigParse, path, err)
	}
	if cfg.Site == "" {
		cfg.Site = DefaultSite
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the data-model invariants: sample_width in {1,2,4},
// channels >= 1, vad.mode in 0..3, silence_seconds >= 0. Validation is
// skipped for a disabled recorder since its fields are meaningless then.
func (c *Config) validate() error {
	if !c.Recorder.Enabled {
		return nil
	}
	r := c.Recorder
	switch r.SampleWidth {
	case 1, 2, 4:
	default:
		return apperr.New(apperr.ConfigInvalid, fmt.Sprintf("recorder.sampleWidth must be 1, 2, or 4, got %d", r.SampleWidth))
	}
	if r.Channels < 1 {
		return apperr.New(apperr.ConfigInvalid, fmt.Sprintf("recorder.channels must be >= 1, got %d", r.Channels))
	}
	if r.VAD.Mode < 0 || r.VAD.Mode > 3 {
		return apperr.New(apperr.ConfigInvalid, fmt.Sprintf("recorder.vad.mode must be 0..3, got %d", r.VAD.Mode))
	}
	if r.VAD.Silence < 0 {
		return apperr.New(apperr.ConfigInvalid, fmt.Sprintf("recorder.vad.silence must be >= 0, got %v", r.VAD.Silence))
	}
	return nil
}
