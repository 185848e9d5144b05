// Package voice turns uploaded audio into text for the gateway's
// /transcribe route.
package voice

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by transcribers that have no backend.
var ErrNotConfigured = errors.New("transcriber is not configured")

// Transcriber converts the audio file at path into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Noop fails every call. It stands in when no speech backend is configured.
type Noop struct{}

func (Noop) Transcribe(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}
