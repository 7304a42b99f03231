package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := New(ConfigInvalid, "vad.mode out of range")
	if err.Error() != "config_invalid: vad.mode out of range" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("permission denied")
	err := Wrap(ConfigPermission, "cannot read config file", cause)
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	want := "config_permission: cannot read config file: permission denied"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCodeOf(t *testing.T) {
	err := New(NoDefaultAudioDevice, "no input device")
	code, ok := CodeOf(err)
	if !ok || code != NoDefaultAudioDevice {
		t.Errorf("CodeOf() = %v, %v, want %v, true", code, ok, NoDefaultAudioDevice)
	}

	if _, ok := CodeOf(errors.New("plain error")); ok {
		t.Error("CodeOf() on plain error should return ok=false")
	}
}

func TestIsWrapped(t *testing.T) {
	inner := New(AudioRead, "short read")
	outer := fmt.Errorf("capture loop: %w", inner)
	if !Is(outer, AudioRead) {
		t.Error("Is() should see through wrapping")
	}
}

func TestWithMetadata(t *testing.T) {
	err := New(ConfigInvalid, "bad value").WithMetadata("field", "vad.mode")
	if err.Metadata["field"] != "vad.mode" {
		t.Errorf("Metadata[field] = %q, want vad.mode", err.Metadata["field"])
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bus transient", New(BusTransient, "disconnected"), true},
		{"audio read", New(AudioRead, "device underrun"), true},
		{"config invalid", New(ConfigInvalid, "bad field"), false},
		{"config not found", New(ConfigNotFound, "missing file"), false},
		{"unknown error", errors.New("boom"), true},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("%s: IsRetryable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
