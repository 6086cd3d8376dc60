package realtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"

	openairt "github.com/WqyJh/go-openai-realtime"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/calyptra/voicepipe/internal/audio"
	"github.com/calyptra/voicepipe/internal/config"
	"github.com/calyptra/voicepipe/internal/transcript"
)

type openAIProvider struct {
	logger *zap.Logger
	cfg    *config.RealtimeConfig
	client *openairt.Client
}

// NewOpenAIProvider creates a Provider backed by the OpenAI Realtime API.
func NewOpenAIProvider(logger *zap.Logger, cfg *config.Config) Provider {
	return &openAIProvider{
		logger: logger,
		cfg:    &cfg.Realtime,
		client: openairt.NewClient(cfg.Realtime.APIKey),
	}
}

func (p *openAIProvider) Connect(ctx context.Context, handlers Handlers) (Transport, error) {
	p.logger.Info("Connecting to OpenAI Realtime API", zap.String("model", p.cfg.Model))

	conn, err := p.client.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrTransport, err)
	}

	t := &openAITransport{
		logger:   p.logger,
		cfg:      p.cfg,
		conn:     conn,
		handlers: handlers,
	}

	if err := t.configureSession(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: configure session: %v", ErrTransport, err)
	}

	go t.readLoop()

	p.logger.Info("Connected to OpenAI Realtime API", zap.String("model", p.cfg.Model))

	return t, nil
}

type openAITransport struct {
	logger   *zap.Logger
	cfg      *config.RealtimeConfig
	conn     *openairt.Conn
	handlers Handlers

	closed    atomic.Bool
	closeOnce sync.Once
}

func (t *openAITransport) configureSession(ctx context.Context) error {
	update := &openairt.SessionUpdateEvent{
		Session: openairt.ClientSession{
			Modalities:        []openairt.Modality{openairt.ModalityText, openairt.ModalityAudio},
			Voice:             t.voice(),
			Instructions:      t.cfg.Instructions,
			InputAudioFormat:  openairt.AudioFormatPcm16,
			OutputAudioFormat: openairt.AudioFormatPcm16,
			InputAudioTranscription: &openairt.InputAudioTranscription{
				Model: openai.Whisper1,
			},
			TurnDetection: &openairt.ClientTurnDetection{
				Type: openairt.ClientTurnDetectionTypeServerVad,
			},
		},
	}

	return t.conn.SendMessage(ctx, update)
}

func (t *openAITransport) voice() openairt.Voice {
	switch t.cfg.Voice {
	case "alloy":
		return openairt.VoiceAlloy
	case "echo":
		return openairt.VoiceEcho
	case "shimmer":
		return openairt.VoiceShimmer
	default:
		return openairt.VoiceShimmer
	}
}

// Send appends one captured frame to the provider's input buffer. A write
// failure drops the frame without tearing down the connection.
func (t *openAITransport) Send(ctx context.Context, frame audio.EncodedFrame) error {
	if t.closed.Load() {
		return fmt.Errorf("%w: transport closed", ErrSendFailure)
	}

	event := &openairt.InputAudioBufferAppendEvent{
		Audio: base64.StdEncoding.EncodeToString(frame.Payload),
	}

	if err := t.conn.SendMessage(ctx, event); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailure, err)
	}

	t.logger.Debug("Sent audio frame",
		zap.Uint64("sequence", frame.Sequence),
		zap.Int("payload_bytes", len(frame.Payload)))

	return nil
}

// Close shuts the connection down. The read loop observes the closed flag and
// reports a clean close rather than a transport failure.
func (t *openAITransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		err = t.conn.Close()
	})
	return err
}

// readLoop pumps server events until the connection ends, then fires OnClose
// exactly once. A deliberate local Close surfaces as a nil close error.
func (t *openAITransport) readLoop() {
	for {
		event, err := t.conn.ReadMessage(context.Background())
		if err != nil {
			if t.closed.Load() {
				t.fireClose(nil)
				return
			}

			t.logger.Warn("Realtime connection lost", zap.Error(err))
			t.closed.Store(true)
			t.fireClose(fmt.Errorf("%w: %v", ErrTransport, err))
			return
		}

		t.dispatch(event)
	}
}

func (t *openAITransport) fireClose(err error) {
	if t.handlers.OnClose != nil {
		t.handlers.OnClose(err)
	}
}

func (t *openAITransport) dispatch(event openairt.ServerEvent) {
	t.logger.Debug("Received server event",
		zap.String("event_type", string(event.ServerEventType())))

	switch event.ServerEventType() {
	case openairt.ServerEventTypeResponseAudioDelta:
		delta := event.(openairt.ResponseAudioDeltaEvent)
		if t.handlers.OnAudio == nil || delta.Delta == "" {
			return
		}
		payload, err := base64.StdEncoding.DecodeString(delta.Delta)
		if err != nil {
			t.logger.Warn("Discarding undecodable audio delta", zap.Error(err))
			return
		}
		t.handlers.OnAudio(payload)

	case openairt.ServerEventTypeResponseAudioTranscriptDelta:
		delta := event.(openairt.ResponseAudioTranscriptDeltaEvent)
		if t.handlers.OnTranscript != nil {
			t.handlers.OnTranscript(transcript.SpeakerAgent, delta.Delta, false)
		}

	case openairt.ServerEventTypeResponseAudioTranscriptDone:
		done := event.(openairt.ResponseAudioTranscriptDoneEvent)
		if t.handlers.OnTranscript != nil {
			t.handlers.OnTranscript(transcript.SpeakerAgent, "", true)
		}
		t.logger.Debug("Agent transcript complete",
			zap.Int("length", len(done.Transcript)))

	case openairt.ServerEventTypeConversationItemInputAudioTranscriptionCompleted:
		completed := event.(openairt.ConversationItemInputAudioTranscriptionCompletedEvent)
		if t.handlers.OnTranscript != nil {
			t.handlers.OnTranscript(transcript.SpeakerUser, completed.Transcript, true)
		}

	case openairt.ServerEventTypeConversationItemInputAudioTranscriptionFailed:
		failed := event.(openairt.ConversationItemInputAudioTranscriptionFailedEvent)
		t.logger.Warn("User audio transcription failed",
			zap.String("item_id", failed.ItemID),
			zap.String("error", failed.Error.Message))

	case openairt.ServerEventTypeResponseDone:
		done := event.(openairt.ResponseDoneEvent)
		if t.handlers.OnUsage != nil && done.Response.Usage != nil {
			t.handlers.OnUsage(Usage{
				InputTokens:       done.Response.Usage.InputTokens,
				OutputTokens:      done.Response.Usage.OutputTokens,
				InputAudioTokens:  done.Response.Usage.InputTokenDetails.AudioTokens,
				OutputAudioTokens: done.Response.Usage.OutputTokenDetails.AudioTokens,
			})
		}
		if t.handlers.OnTurnComplete != nil {
			t.handlers.OnTurnComplete()
		}

	case openairt.ServerEventTypeError:
		errEvent := event.(openairt.ErrorEvent)
		if t.handlers.OnError != nil {
			t.handlers.OnError(fmt.Errorf("provider error: %s", errEvent.Error.Message))
		}
	}
}
