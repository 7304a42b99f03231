// Package apperr defines structured application errors for the satellite daemon.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies the class of failure that occurred.
type Code string

// Error codes used throughout the daemon.
const (
	ConfigNotFound       Code = "config_not_found"
	ConfigParse          Code = "config_parse"
	ConfigPermission     Code = "config_permission"
	ConfigInvalid        Code = "config_invalid"
	NoDefaultAudioDevice Code = "no_default_audio_device"
	UnsupportedPlatform  Code = "unsupported_platform"
	BusTransient         Code = "bus_transient"
	BusConnect           Code = "bus_connect"
	AudioRead            Code = "audio_read"
	AudioWrite           Code = "audio_write"
	AudioOpen            Code = "audio_open"
	WavDecode            Code = "wav_decode"
	UnexpectedEOF        Code = "unexpected_eof"
)

// Error is a structured application error carrying a code, a human message,
// optional metadata, and an optional wrapped cause.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// New constructs an Error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an Error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithMetadata attaches key/value context and returns the same error for chaining.
func (e *Error) WithMetadata(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string, 1)
	}
	e.Metadata[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf returns the Code carried by err, if any, and whether one was found.
func CodeOf(err error) (Code, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}

// Is reports whether err carries the given code, looking through wrapped causes.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// retryable lists codes worth retrying: transient bus/device conditions, not
// configuration or platform mistakes.
var retryable = map[Code]bool{
	BusTransient: true,
	BusConnect:   true,
	AudioRead:    true,
	AudioWrite:   true,
	AudioOpen:    true,
}

// IsRetryable reports whether err represents a condition worth retrying.
// Errors that do not carry an apperr.Code are treated as retryable, matching
// the teacher's "unknown error, retry" default.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	code, ok := CodeOf(err)
	if !ok {
		return true
	}
	return retryable[code]
}
