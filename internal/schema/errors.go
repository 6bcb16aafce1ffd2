package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted is wrapped by every error caused by context cancellation.
	ErrAborted = errors.New("generation aborted")
	// ErrUnsupportedMode is returned by adapters that cannot serve a mode.
	ErrUnsupportedMode = errors.New("unsupported generation mode")
	// ErrMalformedPayload is wrapped when a vendor payload fails validation.
	ErrMalformedPayload = errors.New("malformed vendor payload")
	// ErrArtifactNotFound is returned by ArtifactResolver implementations.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// ConfigError reports a configuration problem detected before any I/O.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error (provider %s): %s", e.Provider, e.Reason)
}

// VendorError carries a failure reported by the vendor, either as a non-2xx
// response or as an explicit error event in a stream.
type VendorError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *VendorError) Error() string {
	msg := e.Message
	if e.Type != "" {
		msg = e.Type + ": " + msg
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API status %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, msg)
}
