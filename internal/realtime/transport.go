// Package realtime connects the voice pipeline to a realtime speech provider
// over a bidirectional event stream.
package realtime

import (
	"context"
	"errors"

	"github.com/calyptra/voicepipe/internal/audio"
	"github.com/calyptra/voicepipe/internal/transcript"
)

var (
	// ErrTransport indicates the connection to the provider could not be
	// established or configured.
	ErrTransport = errors.New("realtime transport error")
	// ErrSendFailure indicates a single uplink frame could not be written.
	// The frame is dropped; the connection itself may still be usable.
	ErrSendFailure = errors.New("realtime send failure")
)

// Usage reports token consumption for one completed response turn.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	InputAudioTokens  int
	OutputAudioTokens int
}

// Handlers receive downlink events from the provider. All callbacks run on
// the transport's read goroutine and must not block on it.
type Handlers struct {
	OnAudio        func(payload []byte)
	OnTranscript   func(speaker transcript.Speaker, text string, final bool)
	OnTurnComplete func()
	OnUsage        func(usage Usage)
	OnError        func(err error)
	OnClose        func(err error)
}

// Transport is an established uplink to the provider. Close is idempotent;
// OnClose fires exactly once whether the close is local or remote.
type Transport interface {
	Send(ctx context.Context, frame audio.EncodedFrame) error
	Close() error
}

// Provider dials provider connections. Each Connect yields an independent
// Transport bound to the given handlers.
type Provider interface {
	Connect(ctx context.Context, handlers Handlers) (Transport, error)
}
