// Package audio wraps github.com/gordonklaus/portaudio behind the blocking
// read/write device façade the capture and playback paths need: enumerate
// devices, open an input or output stream at a requested PCM format, and
// block-read or block-write interleaved frames.
package audio

import (
	"encoding/binary"

	"github.com/gordonklaus/portaudio"

	"github.com/rhasspy-community/desktop-satellite/internal/apperr"
	"github.com/rhasspy-community/desktop-satellite/internal/syncx"
)

// deviceRateCache memoizes DeviceRate lookups by device name, avoiding a
// full portaudio.Devices() re-enumeration on every playBytes with a device
// override. Device sets don't change mid-process on the platforms this
// package targets, so the cache never needs invalidation.
var deviceRateCache = syncx.NewGuard(map[string]float64{})

// Device describes one enumerated audio device.
type Device struct {
	Index             int
	Name              string
	DefaultRate       float64
	MaxInputChannels  int
	MaxOutputChannels int
}

// Initialize must be called once before any other function in this package,
// and Terminate once at process shutdown; both bracket the portaudio host
// API's lifetime, mirroring the lifecycle orchestrator's process bracket.
func Initialize() error {
	return portaudio.Initialize()
}

// Terminate releases the portaudio host API.
func Terminate() error {
	return portaudio.Terminate()
}

// ListDevices enumerates all devices visible to the host API.
func ListDevices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, apperr.Wrap(apperr.AudioOpen, "enumerate devices", err)
	}
	out := make([]Device, len(infos))
	for i, d := range infos {
		out[i] = Device{
			Index:             i,
			Name:              d.Name,
			DefaultRate:       d.DefaultSampleRate,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
		}
	}
	return out, nil
}

// DefaultInput returns the platform's default input device.
func DefaultInput() (Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Device{}, apperr.Wrap(apperr.NoDefaultAudioDevice, "input", err)
	}
	return Device{Name: info.Name, DefaultRate: info.DefaultSampleRate, MaxInputChannels: info.MaxInputChannels}, nil
}

// DeviceRate resolves the default sample rate of the named output device,
// falling back to the platform default output device if name is empty or
// unrecognized. Used by the playback handler to decide the device's
// playback rate when a device override is configured.
func DeviceRate(name string) (float64, error) {
	if name == "" {
		dev, err := DefaultOutput()
		if err != nil {
			return 0, err
		}
		return dev.DefaultRate, nil
	}

	if rate, ok := cachedDeviceRate(name); ok {
		return rate, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return 0, apperr.Wrap(apperr.AudioOpen, "enumerate devices", err)
	}
	for _, d := range devices {
		if d.Name == name {
			setCachedDeviceRate(name, d.DefaultSampleRate)
			return d.DefaultSampleRate, nil
		}
	}

	dev, err := DefaultOutput()
	if err != nil {
		return 0, err
	}
	return dev.DefaultRate, nil
}

func cachedDeviceRate(name string) (rate float64, ok bool) {
	deviceRateCache.Read(func(m map[string]float64) any {
		rate, ok = m[name]
		return nil
	})
	return rate, ok
}

func setCachedDeviceRate(name string, rate float64) {
	deviceRateCache.Write(func(m *map[string]float64) {
		(*m)[name] = rate
	})
}

// DefaultOutput returns the platform's default output device.
func DefaultOutput() (Device, error) {
	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return Device{}, apperr.Wrap(apperr.NoDefaultAudioDevice, "output", err)
	}
	return Device{Name: info.Name, DefaultRate: info.DefaultSampleRate, MaxOutputChannels: info.MaxOutputChannels}, nil
}

// resolveDeviceInfo looks up a *portaudio.DeviceInfo for a config referring
// to a device either by name or by falling back to the host default.
func resolveDeviceInfo(name string, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if name == "" {
		info, err := fallback()
		if err != nil {
			return nil, err
		}
		return info, nil
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range infos {
		if d.Name == name {
			return d, nil
		}
	}
	return fallback()
}

// StreamConfig parameters an open call, matching the config file's
// sample_width/channels/sampleRate fields plus an optional device name
// override.
type StreamConfig struct {
	DeviceName      string
	SampleWidth     int // bytes per sample: 1, 2, or 4
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
}

// Stream is a blocking, byte-oriented façade over a portaudio.Stream. The
// native binding is typed on the Go buffer's element type (int8/int16/
// int32), so Stream holds one of those internally sized to FramesPerBuffer*
// Channels and packs/unpacks it to/from little-endian interleaved bytes on
// every call.
type Stream struct {
	pa              *portaudio.Stream
	sampleWidth     int
	channels        int
	framesPerBuffer int

	buf8  []int8
	buf16 []int16
	buf32 []int32
}

// OpenInput opens a blocking input stream at cfg's format.
func OpenInput(cfg StreamConfig) (*Stream, error) {
	dev, err := resolveDeviceInfo(cfg.DeviceName, portaudio.DefaultInputDevice)
	if err != nil {
		return nil, apperr.Wrap(apperr.NoDefaultAudioDevice, "input", err)
	}

	s := newStream(cfg)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}
	pa, err := portaudio.OpenStream(params, s.nativeBuffer())
	if err != nil {
		return nil, apperr.Wrap(apperr.AudioOpen, "open input stream", err)
	}
	s.pa = pa
	if err := pa.Start(); err != nil {
		pa.Close()
		return nil, apperr.Wrap(apperr.AudioOpen, "start input stream", err)
	}
	return s, nil
}

// OpenOutput opens a blocking output stream at cfg's format.
func OpenOutput(cfg StreamConfig) (*Stream, error) {
	dev, err := resolveDeviceInfo(cfg.DeviceName, portaudio.DefaultOutputDevice)
	if err != nil {
		return nil, apperr.Wrap(apperr.NoDefaultAudioDevice, "output", err)
	}

	s := newStream(cfg)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}
	pa, err := portaudio.OpenStream(params, s.nativeBuffer())
	if err != nil {
		return nil, apperr.Wrap(apperr.AudioOpen, "open output stream", err)
	}
	s.pa = pa
	if err := pa.Start(); err != nil {
		pa.Close()
		return nil, apperr.Wrap(apperr.AudioOpen, "start output stream", err)
	}
	return s, nil
}

func newStream(cfg StreamConfig) *Stream {
	s := &Stream{sampleWidth: cfg.SampleWidth, channels: cfg.Channels, framesPerBuffer: cfg.FramesPerBuffer}
	n := cfg.FramesPerBuffer * cfg.Channels
	switch cfg.SampleWidth {
	case 1:
		s.buf8 = make([]int8, n)
	case 4:
		s.buf32 = make([]int32, n)
	default:
		s.buf16 = make([]int16, n)
	}
	return s
}

func (s *Stream) nativeBuffer() any {
	switch s.sampleWidth {
	case 1:
		return s.buf8
	case 4:
		return s.buf32
	default:
		return s.buf16
	}
}

// Read performs one blocking device read of one frames-per-buffer period
// and returns the interleaved little-endian PCM bytes captured. It is
// overflow-tolerant: an input-overflow condition from the device is not
// treated as an error, matching the teacher's "discard overrun, return what
// you have" policy.
func (s *Stream) Read() ([]byte, error) {
	if err := s.pa.Read(); err != nil && !isOverflow(err) {
		return nil, apperr.Wrap(apperr.AudioRead, "device read", err)
	}
	return s.encode(), nil
}

// Write blocks until pcm (interleaved little-endian bytes matching this
// stream's format) has been handed to the device.
func (s *Stream) Write(pcm []byte) error {
	s.decode(pcm)
	if err := s.pa.Write(); err != nil {
		return apperr.Wrap(apperr.AudioWrite, "device write", err)
	}
	return nil
}

// Available reports the number of frames that can be read without
// blocking. It queries the input side only; for an output stream it does
// not report writable frames.
func (s *Stream) Available() (int, error) {
	n, err := s.pa.AvailableToRead()
	if err != nil {
		return 0, apperr.Wrap(apperr.AudioRead, "query available frames", err)
	}
	return n, nil
}

// Close stops and releases the underlying device stream. Safe to call once
// per Stream; callers own the scoping discipline (close on every exit path).
func (s *Stream) Close() error {
	if s.pa == nil {
		return nil
	}
	s.pa.Stop()
	return s.pa.Close()
}

func isOverflow(err error) bool {
	pe, ok := err.(portaudio.Error)
	return ok && pe == portaudio.InputOverflowed
}

func (s *Stream) encode() []byte {
	switch s.sampleWidth {
	case 1:
		out := make([]byte, len(s.buf8))
		for i, v := range s.buf8 {
			out[i] = byte(v)
		}
		return out
	case 4:
		out := make([]byte, len(s.buf32)*4)
		for i, v := range s.buf32 {
			binary.LittleEndian.PutUint32(out[i*4:i*4+4], uint32(v))
		}
		return out
	default:
		out := make([]byte, len(s.buf16)*2)
		for i, v := range s.buf16 {
			binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
		}
		return out
	}
}

func (s *Stream) decode(pcm []byte) {
	switch s.sampleWidth {
	case 1:
		for i := range s.buf8 {
			if i < len(pcm) {
				s.buf8[i] = int8(pcm[i])
			} else {
				s.buf8[i] = 0
			}
		}
	case 4:
		for i := range s.buf32 {
			off := i * 4
			if off+4 <= len(pcm) {
				s.buf32[i] = int32(binary.LittleEndian.Uint32(pcm[off : off+4]))
			} else {
				s.buf32[i] = 0
			}
		}
	default:
		for i := range s.buf16 {
			off := i * 2
			if off+2 <= len(pcm) {
				s.buf16[i] = int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			} else {
				s.buf16[i] = 0
			}
		}
	}
}
