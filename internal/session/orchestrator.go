// Package session ties the capture pipeline, the realtime transport, the
// playback scheduler and the transcript aggregator into one voice session
// with a single lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/calyptra/voicepipe/internal/audio"
	"github.com/calyptra/voicepipe/internal/config"
	"github.com/calyptra/voicepipe/internal/realtime"
	"github.com/calyptra/voicepipe/internal/transcript"
	"github.com/calyptra/voicepipe/pkg/pricing"
	"github.com/calyptra/voicepipe/pkg/util"
)

// ErrSessionActive is returned by Connect while a session is already running.
var ErrSessionActive = errors.New("session already active")

// Handlers surface session events to the embedding application. Callbacks
// may arrive from audio and transport goroutines concurrently.
type Handlers struct {
	OnAudioData func(buf *audio.PlaybackBuffer)

	// OnTranscriptDelta receives raw streaming transcript fragments as they
	// arrive, suitable for live captions. OnTranscriptUpdate receives whole
	// committed utterances.
	OnTranscriptDelta  func(speaker transcript.Speaker, text string, final bool)
	OnTranscriptUpdate func(u transcript.Utterance)

	OnVolumeUpdate   func(rms float64)
	OnSpeakingChange func(speaking bool)
	OnClose          func(err error)
}

// Status is a point-in-time snapshot of the running session.
type Status struct {
	Active            bool
	Speaking          bool
	SessionID         string
	StartTime         time.Time
	InputTokens       int
	OutputTokens      int
	InputAudioTokens  int
	OutputAudioTokens int
	EstimatedCost     float64
}

// Orchestrator owns one voice session at a time: it connects the transport,
// starts capture and playback, routes events between the components and
// tears everything down exactly once per session.
type Orchestrator struct {
	logger     *zap.Logger
	cfg        *config.Config
	capture    *audio.CapturePipeline
	scheduler  *audio.Scheduler
	decoder    *audio.Decoder
	provider   realtime.Provider
	aggregator *transcript.Aggregator
	store      *transcript.HistoryStore
	devices    audio.DeviceProvider
	pricing    pricing.Service

	active atomic.Bool

	mu             sync.Mutex
	sessionID      string
	startTime      time.Time
	handlers       Handlers
	transport      realtime.Transport
	playback       audio.PlaybackDevice
	closeOnce      *sync.Once
	watchdogCancel context.CancelFunc
	inactivity     *util.Debouncer
	usage          realtime.Usage
	cost           float64

	sessionSeq atomic.Uint64
}

func NewOrchestrator(
	logger *zap.Logger,
	cfg *config.Config,
	capture *audio.CapturePipeline,
	scheduler *audio.Scheduler,
	decoder *audio.Decoder,
	provider realtime.Provider,
	aggregator *transcript.Aggregator,
	store *transcript.HistoryStore,
	devices audio.DeviceProvider,
	pricingService pricing.Service,
) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		cfg:        cfg,
		capture:    capture,
		scheduler:  scheduler,
		decoder:    decoder,
		provider:   provider,
		aggregator: aggregator,
		store:      store,
		devices:    devices,
		pricing:    pricingService,
	}
}

// Connect starts a session: playback device first, then the transport, then
// capture. A failure at any step rolls back the steps already taken and
// leaves the orchestrator ready for another attempt.
func (o *Orchestrator) Connect(ctx context.Context, handlers Handlers) error {
	if !o.active.CompareAndSwap(false, true) {
		return ErrSessionActive
	}

	gen := o.sessionSeq.Add(1)
	sessionID := fmt.Sprintf("session-%d", gen)

	var inactivity *util.Debouncer
	if o.cfg.Session.InactivityTimeoutSeconds > 0 {
		inactivity = util.NewDebouncer(time.Duration(o.cfg.Session.InactivityTimeoutSeconds) * time.Second)
	}

	o.mu.Lock()
	o.sessionID = sessionID
	o.startTime = time.Now()
	o.handlers = handlers
	o.closeOnce = &sync.Once{}
	o.usage = realtime.Usage{}
	o.cost = 0
	o.inactivity = inactivity
	o.mu.Unlock()

	o.logger.Info("Starting voice session", zap.String("session_id", sessionID))

	abort := func() {
		if inactivity != nil {
			inactivity.Stop()
		}
		o.active.Store(false)
	}

	playback, err := o.devices.OpenPlayback(o.cfg.Audio.OutputSampleRate, o.cfg.Audio.Channels)
	if err != nil {
		abort()
		return err
	}
	if err := playback.Start(o.scheduler.Render); err != nil {
		abort()
		return err
	}

	o.scheduler.SetStateListener(o.onSpeakingChange)
	o.aggregator.Reset()
	o.aggregator.SetCommitListener(o.onCommit)

	// Transport callbacks are bound to this session's generation so events
	// from a previous session's connection, which may trail in after its
	// teardown, cannot leak into the next session.
	transport, err := o.provider.Connect(ctx, realtime.Handlers{
		OnAudio: func(payload []byte) {
			if o.currentGeneration(gen) {
				o.onDownlinkAudio(payload)
			}
		},
		OnTranscript: func(speaker transcript.Speaker, text string, final bool) {
			if o.currentGeneration(gen) {
				o.onTranscriptDelta(speaker, text, final)
			}
		},
		OnTurnComplete: func() {
			if o.currentGeneration(gen) {
				o.onTurnComplete()
			}
		},
		OnUsage: func(usage realtime.Usage) {
			if o.currentGeneration(gen) {
				o.onUsage(usage)
			}
		},
		OnError: o.onProviderError,
		OnClose: func(err error) {
			o.onTransportClose(gen, err)
		},
	})
	if err != nil {
		playback.Stop()
		o.scheduler.SetStateListener(nil)
		o.aggregator.SetCommitListener(nil)
		abort()
		return err
	}

	o.mu.Lock()
	o.transport = transport
	o.playback = playback
	o.mu.Unlock()

	err = o.capture.Start(audio.CaptureHandlers{
		OnFrame:     o.onCaptureFrame,
		OnVolume:    o.onCaptureVolume,
		OnInterrupt: o.onCaptureInterrupt,
	})
	if err != nil {
		// Invalidate this generation before closing the transport so the
		// read loop's trailing close notification cannot run a teardown for
		// a session that never started.
		o.sessionSeq.Add(1)
		o.mu.Lock()
		o.transport = nil
		o.playback = nil
		o.closeOnce = nil
		o.mu.Unlock()
		transport.Close()
		playback.Stop()
		o.scheduler.SetStateListener(nil)
		o.aggregator.SetCommitListener(nil)
		abort()
		return err
	}

	watchdogCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.watchdogCancel = cancel
	o.mu.Unlock()
	go o.runWatchdog(watchdogCtx, gen, inactivity)

	o.logger.Info("Voice session started", zap.String("session_id", sessionID))

	return nil
}

// Disconnect ends the session locally. Calling it with no active session,
// or repeatedly, is a no-op.
func (o *Orchestrator) Disconnect() error {
	if !o.active.Load() {
		return nil
	}
	return o.teardown("local disconnect", nil)
}

// Status reports the current session snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	return Status{
		Active:            o.active.Load(),
		Speaking:          o.scheduler.IsPlaying(),
		SessionID:         o.sessionID,
		StartTime:         o.startTime,
		InputTokens:       o.usage.InputTokens,
		OutputTokens:      o.usage.OutputTokens,
		InputAudioTokens:  o.usage.InputAudioTokens,
		OutputAudioTokens: o.usage.OutputAudioTokens,
		EstimatedCost:     o.cost,
	}
}

// teardown stops every component, stores the transcript and fires OnClose.
// The per-session once makes concurrent teardown paths (local disconnect,
// remote close, watchdog, capture interrupt) collapse into a single run.
func (o *Orchestrator) teardown(reason string, cause error) error {
	o.mu.Lock()
	once := o.closeOnce
	o.mu.Unlock()

	if once == nil {
		return nil
	}

	var err error
	once.Do(func() {
		err = o.runTeardown(reason, cause)
	})
	return err
}

func (o *Orchestrator) runTeardown(reason string, cause error) error {
	o.mu.Lock()
	sessionID := o.sessionID
	startTime := o.startTime
	transport := o.transport
	playback := o.playback
	handlers := o.handlers
	cancel := o.watchdogCancel
	inactivity := o.inactivity
	cost := o.cost
	o.transport = nil
	o.playback = nil
	o.watchdogCancel = nil
	o.inactivity = nil
	o.mu.Unlock()

	o.logger.Info("Ending voice session",
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
		zap.Duration("duration", time.Since(startTime)),
		zap.Float64("estimated_cost", cost))

	if cancel != nil {
		cancel()
	}
	if inactivity != nil {
		inactivity.Stop()
	}

	var errs error

	if err := o.capture.Stop(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("stop capture: %w", err))
	}

	if transport != nil {
		if err := transport.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close transport: %w", err))
		}
	}

	o.scheduler.Stop()
	o.scheduler.SetStateListener(nil)

	if playback != nil {
		if err := playback.Stop(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop playback: %w", err))
		}
	}

	o.aggregator.Flush()
	o.aggregator.SetCommitListener(nil)
	o.store.Save(sessionID, o.aggregator.History())

	o.active.Store(false)

	if handlers.OnClose != nil {
		handlers.OnClose(cause)
	}

	if errs != nil {
		o.logger.Warn("Session teardown completed with errors", zap.Error(errs))
	}

	return errs
}

// runWatchdog enforces the configured session limits: an inactivity deadline
// that activity keeps pushing out, a hard session length cap and a cost cap.
// Teardowns are generation-guarded so a watchdog racing its own cancellation
// cannot end a successor session.
func (o *Orchestrator) runWatchdog(ctx context.Context, gen uint64, inactivity *util.Debouncer) {
	cfg := o.cfg.Session

	expire := func(reason string) {
		if o.currentGeneration(gen) {
			o.teardown(reason, nil)
		}
	}

	var inactivityCh <-chan time.Time
	if inactivity != nil {
		inactivityCh = inactivity.Expired()
	}

	var maxLengthCh <-chan time.Time
	if cfg.MaxSessionLengthMinutes > 0 {
		timer := time.NewTimer(time.Duration(cfg.MaxSessionLengthMinutes) * time.Minute)
		defer timer.Stop()
		maxLengthCh = timer.C
	}

	costTicker := time.NewTicker(5 * time.Second)
	defer costTicker.Stop()

	for {
		select {
		case <-inactivityCh:
			expire("inactivity timeout")
			return
		case <-maxLengthCh:
			expire("maximum session length reached")
			return
		case <-costTicker.C:
			if cfg.MaxCostPerSession > 0 {
				o.mu.Lock()
				cost := o.cost
				o.mu.Unlock()
				if cost >= cfg.MaxCostPerSession {
					expire(fmt.Sprintf("cost limit reached ($%.2f)", cost))
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) touchActivity() {
	o.mu.Lock()
	inactivity := o.inactivity
	o.mu.Unlock()

	if inactivity != nil {
		inactivity.Reset()
	}
}

// onCaptureFrame forwards one uplink frame. A send failure drops the frame
// and keeps the session running; persistent failures surface through the
// transport's close path instead.
func (o *Orchestrator) onCaptureFrame(frame audio.EncodedFrame) {
	o.mu.Lock()
	transport := o.transport
	o.mu.Unlock()

	if transport == nil {
		return
	}

	if err := transport.Send(context.Background(), frame); err != nil {
		o.logger.Warn("Dropping uplink frame",
			zap.Uint64("sequence", frame.Sequence),
			zap.Error(err))
	}
}

func (o *Orchestrator) onCaptureVolume(rms float64) {
	if rms > 0 {
		o.touchActivity()
	}

	o.mu.Lock()
	fn := o.handlers.OnVolumeUpdate
	o.mu.Unlock()

	if fn != nil {
		fn(rms)
	}
}

func (o *Orchestrator) onCaptureInterrupt(err error) {
	o.logger.Warn("Capture interrupted, ending session", zap.Error(err))
	o.teardown("capture interrupted", err)
}

// onDownlinkAudio decodes and schedules one playback chunk. A malformed
// chunk is dropped; the session and any already scheduled audio continue.
func (o *Orchestrator) onDownlinkAudio(payload []byte) {
	o.touchActivity()

	buf, err := o.decoder.Decode(payload)
	if err != nil {
		o.logger.Warn("Dropping malformed audio chunk",
			zap.Int("payload_bytes", len(payload)),
			zap.Error(err))
		return
	}

	o.scheduler.QueueAudio(buf)

	o.mu.Lock()
	fn := o.handlers.OnAudioData
	o.mu.Unlock()

	if fn != nil {
		fn(buf)
	}
}

func (o *Orchestrator) onTranscriptDelta(speaker transcript.Speaker, text string, final bool) {
	o.touchActivity()

	o.mu.Lock()
	fn := o.handlers.OnTranscriptDelta
	o.mu.Unlock()

	if fn != nil {
		fn(speaker, text, final)
	}

	// A final marker with no text only signals completion; the streamed
	// fragments already carry the full utterance.
	if text == "" && final {
		return
	}

	o.aggregator.Apply(transcript.Delta{Speaker: speaker, Text: text, Final: final})
}

// onTurnComplete flushes the open utterance so an agent turn commits even
// when the next delta never arrives.
func (o *Orchestrator) onTurnComplete() {
	o.aggregator.Flush()
}

func (o *Orchestrator) onUsage(usage realtime.Usage) {
	o.mu.Lock()
	o.usage.InputTokens += usage.InputTokens
	o.usage.OutputTokens += usage.OutputTokens
	o.usage.InputAudioTokens += usage.InputAudioTokens
	o.usage.OutputAudioTokens += usage.OutputAudioTokens
	total := o.usage
	o.mu.Unlock()

	// Reported input/output totals include the audio tokens; price the text
	// remainder and the audio tokens at their own rates.
	textIn := max(total.InputTokens-total.InputAudioTokens, 0)
	textOut := max(total.OutputTokens-total.OutputAudioTokens, 0)

	cost, err := o.pricing.EstimateCost(o.cfg.Realtime.Model, textIn, textOut,
		total.InputAudioTokens, total.OutputAudioTokens)
	if err != nil {
		o.logger.Debug("No pricing data for model", zap.String("model", o.cfg.Realtime.Model))
		return
	}

	o.mu.Lock()
	o.cost = cost
	o.mu.Unlock()
}

func (o *Orchestrator) onProviderError(err error) {
	o.logger.Warn("Provider reported error", zap.Error(err))
}

func (o *Orchestrator) onTransportClose(gen uint64, err error) {
	if !o.currentGeneration(gen) {
		return
	}
	if err == nil {
		// Local close; teardown is already running.
		o.teardown("transport closed", nil)
		return
	}
	o.teardown("transport lost", err)
}

func (o *Orchestrator) currentGeneration(gen uint64) bool {
	return o.sessionSeq.Load() == gen
}

func (o *Orchestrator) onSpeakingChange(speaking bool) {
	o.mu.Lock()
	fn := o.handlers.OnSpeakingChange
	o.mu.Unlock()

	if fn != nil {
		fn(speaking)
	}
}

func (o *Orchestrator) onCommit(u transcript.Utterance) {
	o.mu.Lock()
	fn := o.handlers.OnTranscriptUpdate
	o.mu.Unlock()

	if fn != nil {
		fn(u)
	}
}
