// Package session implements the per-conversation controller: it wires the
// microphone gate into the live transport, schedules returned audio for
// gapless playback, aggregates transcript deltas, and drives the session
// state machine with its countdown and silence watchdog.
//
// All state transitions happen on a single event loop goroutine that consumes
// transport events, timer ticks, and command requests in order. External
// callers interact through [Controller.Start], [Controller.End],
// [Controller.SendUserText], and the loop-synchronised accessors.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vanivoice/vani/internal/agent"
	"github.com/vanivoice/vani/internal/observe"
	"github.com/vanivoice/vani/internal/record"
	"github.com/vanivoice/vani/internal/transcript"
	"github.com/vanivoice/vani/pkg/audio"
	"github.com/vanivoice/vani/pkg/audio/capture"
	"github.com/vanivoice/vani/pkg/audio/playback"
	"github.com/vanivoice/vani/pkg/provider/analysis"
	"github.com/vanivoice/vani/pkg/provider/live"
)

const (
	// DefaultMaxDuration is the session countdown length.
	DefaultMaxDuration = 600 * time.Second

	// DefaultSilenceThreshold is how long the conversation may stay quiet
	// before the watchdog nudges the model to re-engage the user.
	DefaultSilenceThreshold = 20 * time.Second
)

// Hooks are observer callbacks fired by the session loop. All hooks are
// invoked on the loop goroutine and must not call back into the Controller.
// Any field may be nil.
type Hooks struct {
	// OnState fires on every state transition.
	OnState func(State)

	// OnCaption fires with the running in-progress text for a channel as
	// deltas arrive. The text is not yet part of the permanent transcript.
	OnCaption func(speaker transcript.Speaker, text string)

	// OnItem fires once per finalised transcript item.
	OnItem func(transcript.Item)

	// OnCountdown fires once per second with the remaining seconds.
	OnCountdown func(remaining int)

	// OnAnalysisError fires when post-session analysis fails. The session
	// still ends and its record is saved without a report.
	OnAnalysisError func(error)
}

// Config carries the collaborators of one session.
type Config struct {
	// Provider opens live transport sessions.
	Provider live.Provider

	// Source is the microphone input. A nil source fails Start with
	// ErrCaptureUnavailable.
	Source capture.Source

	// Device is the playback output.
	Device playback.Device

	// Analyzer generates the post-session report. Optional.
	Analyzer analysis.Analyzer

	// Store persists the finished session record. Optional.
	Store record.Store

	// Profile is the agent persona driving this session.
	Profile agent.Profile

	// Live carries the transport model and default voice. The system
	// instruction is derived from Profile; the profile's voice wins over
	// Live.Voice when set.
	Live live.Config
}

type cmdKind int

const (
	cmdEnd cmdKind = iota
	cmdFail
	cmdText
)

type command struct {
	kind  cmdKind
	err   error
	text  string
	reply chan error
}

// Controller owns one session end to end.
type Controller struct {
	id      string
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics
	hooks   Hooks
	now     func() time.Time
	ticks   <-chan time.Time
	silence time.Duration
	maxDur  time.Duration

	gateThreshold float64
	gain          float64

	mu        sync.Mutex
	state     State
	countdown int
	startedAt time.Time
	report    *analysis.Report
	runErr    error

	agg   *transcript.Aggregator
	sched *playback.Scheduler
	sess  live.Session

	cmds       chan command
	done       chan struct{}
	pumpCancel context.CancelFunc
	pumpWG     sync.WaitGroup
}

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithHooks sets the observer callbacks.
func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTicks overrides the 1-second loop ticker with an external channel.
// Used by tests to drive the countdown and watchdog deterministically.
func WithTicks(ticks <-chan time.Time) Option {
	return func(c *Controller) { c.ticks = ticks }
}

// WithSilenceThreshold overrides [DefaultSilenceThreshold].
func WithSilenceThreshold(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.silence = d
		}
	}
}

// WithMaxDuration overrides [DefaultMaxDuration].
func WithMaxDuration(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.maxDur = d
		}
	}
}

// WithGate overrides the noise gate threshold and gain. Zero values keep the
// capture package defaults.
func WithGate(threshold, gain float64) Option {
	return func(c *Controller) {
		c.gateThreshold = threshold
		c.gain = gain
	}
}

// New creates a session controller in the idle state.
func New(cfg Config, opts ...Option) (*Controller, error) {
	var errs []error
	if cfg.Provider == nil {
		errs = append(errs, errors.New("session: provider is required"))
	}
	if cfg.Device == nil {
		errs = append(errs, errors.New("session: playback device is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	c := &Controller{
		id:      uuid.NewString(),
		cfg:     cfg,
		log:     slog.Default(),
		now:     time.Now,
		silence: DefaultSilenceThreshold,
		maxDur:  DefaultMaxDuration,
		state:   StateIdle,
		cmds:    make(chan command),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.log = c.log.With("session_id", c.id, "agent_id", cfg.Profile.ID)
	c.agg = transcript.NewAggregator(
		transcript.WithClock(c.now),
		transcript.WithCaption(func(sp transcript.Speaker, text string) {
			if c.hooks.OnCaption != nil {
				c.hooks.OnCaption(sp, text)
			}
		}),
		transcript.WithItem(func(item transcript.Item) {
			if c.hooks.OnItem != nil {
				c.hooks.OnItem(item)
			}
		}),
	)
	return c, nil
}

// ID returns the session's unique identifier.
func (c *Controller) ID() string { return c.id }

// AgentID returns the ID of the agent profile driving this session.
func (c *Controller) AgentID() string { return c.cfg.Profile.ID }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Countdown returns the remaining session seconds.
func (c *Controller) Countdown() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countdown
}

// Transcript returns a copy of the finalised transcript so far.
func (c *Controller) Transcript() []transcript.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agg.Items()
}

// Report returns the analysis report, or nil while the session is running or
// when analysis failed.
func (c *Controller) Report() *analysis.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// Err returns the fatal error that moved the session to [StateErrored], or
// nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// Done is closed when the session reaches a terminal state.
func (c *Controller) Done() <-chan struct{} { return c.done }

// setState transitions the state and fires the OnState hook.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.hooks.OnState != nil {
		c.hooks.OnState(s)
	}
}

// Start acquires the capture source, connects the live transport, and enters
// the active state. ctx bounds the connect only; on success the event loop
// and capture pump run until [Controller.End] is called, the countdown
// expires, or the transport closes.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateConnecting
	c.mu.Unlock()
	if c.hooks.OnState != nil {
		c.hooks.OnState(StateConnecting)
	}

	if c.cfg.Source == nil {
		err := fmt.Errorf("%w: no input source", ErrCaptureUnavailable)
		c.fail(err)
		return err
	}
	gateOpts := []capture.Option{
		capture.WithLogger(c.log),
		capture.WithObserver(func(passed bool) {
			c.metrics.RecordFrame(context.Background(), passed)
		}),
	}
	if c.gateThreshold > 0 {
		gateOpts = append(gateOpts, capture.WithThreshold(c.gateThreshold))
	}
	if c.gain > 0 {
		gateOpts = append(gateOpts, capture.WithGain(c.gain))
	}
	gate := capture.NewGate(c.cfg.Source, gateOpts...)

	liveCfg := c.cfg.Live
	liveCfg.Instructions = agent.BuildInstruction(c.cfg.Profile)
	if c.cfg.Profile.Voice != "" {
		liveCfg.Voice = c.cfg.Profile.Voice
	} else if liveCfg.Voice == "" {
		liveCfg.Voice = agent.DefaultVoice
	}

	sess, err := c.cfg.Provider.Connect(ctx, liveCfg)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConnect, err)
		c.fail(err)
		return err
	}

	sched := playback.NewScheduler(c.cfg.Device,
		playback.WithLogger(c.log),
		playback.WithObserver(func(contiguous bool) {
			c.metrics.RecordPlayback(context.Background(), contiguous)
		}),
	)

	// The session outlives the caller's context: an HTTP request that starts
	// a session is done the moment the response is written. Only the connect
	// above honors ctx; from here on the controller owns the lifetime, and
	// the session ends on End, countdown expiry, or transport close.
	runCtx := context.WithoutCancel(ctx)
	pumpCtx, pumpCancel := context.WithCancel(runCtx)

	c.mu.Lock()
	c.sess = sess
	c.sched = sched
	c.pumpCancel = pumpCancel
	c.startedAt = c.now()
	c.countdown = int(c.maxDur / time.Second)
	c.mu.Unlock()

	c.setState(StateActive)
	c.metrics.ActiveSessions.Add(ctx, 1)
	c.log.Info("session active",
		"model", liveCfg.Model,
		"voice", liveCfg.Voice,
		"countdown_s", int(c.maxDur/time.Second))

	c.pumpWG.Add(1)
	go c.pump(pumpCtx, gate, sess)
	go c.run(runCtx, sess)
	return nil
}

// fail moves a not-yet-active session to the terminal errored state.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.runErr = err
	c.state = StateErrored
	c.mu.Unlock()
	c.log.Error("session failed", "err", err)
	if c.hooks.OnState != nil {
		c.hooks.OnState(StateErrored)
	}
	close(c.done)
}

// pump reads gated microphone frames and streams them to the transport.
// A send failure is fatal to the session.
func (c *Controller) pump(ctx context.Context, gate *capture.Gate, sess live.Session) {
	defer c.pumpWG.Done()
	for {
		frame, err := gate.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				c.log.Warn("capture read failed", "err", err)
			}
			return
		}
		if err := sess.SendAudio(ctx, audio.EncodeBytes(frame)); err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case c.cmds <- command{kind: cmdFail, err: fmt.Errorf("%w: send audio: %w", ErrTransport, err)}:
			case <-c.done:
			}
			return
		}
	}
}

// run is the single state-owning event loop.
func (c *Controller) run(ctx context.Context, sess live.Session) {
	ticks := c.ticks
	if ticks == nil {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		ticks = ticker.C
	}

	lastActivity := c.now()

	// Kick the conversation off so the agent greets first instead of
	// sitting silent until the user speaks or the watchdog fires.
	if err := sess.SendText(ctx, agent.StartPrompt(c.cfg.Profile)); err != nil {
		c.log.Warn("start prompt failed", "err", err)
	}

	for {
		select {
		case cmd := <-c.cmds:
			switch cmd.kind {
			case cmdEnd:
				c.finish(ctx)
				return
			case cmdFail:
				c.failActive(ctx, cmd.err)
				return
			case cmdText:
				err := sess.SendText(ctx, cmd.text)
				if err == nil {
					// Typed turns produce no input transcription events,
					// so record the text as a user item here.
					c.mu.Lock()
					c.agg.AddUserText(cmd.text)
					c.mu.Unlock()
					lastActivity = c.now()
				}
				cmd.reply <- err
			}

		case <-ticks:
			if expired := c.handleTick(ctx, sess, &lastActivity); expired {
				c.finish(ctx)
				return
			}

		case ev, ok := <-sess.Events():
			if !ok {
				if err := sess.Err(); err != nil {
					c.failActive(ctx, fmt.Errorf("%w: %w", ErrTransport, err))
					return
				}
				c.finish(ctx)
				return
			}
			switch e := ev.(type) {
			case live.AudioDelta:
				c.metrics.RecordTransportEvent(ctx, "audio_delta")
				c.sched.Enqueue(audio.DecodeBytes(e.PCM))

			case live.Interrupted:
				c.metrics.RecordTransportEvent(ctx, "interrupted")
				c.metrics.Interrupts.Add(ctx, 1)
				c.sched.Interrupt()
				lastActivity = c.now()

			case live.InputTranscript:
				c.metrics.RecordTransportEvent(ctx, "input_transcript")
				c.mu.Lock()
				c.agg.ApplyInput(e.Text)
				c.mu.Unlock()
				lastActivity = c.now()

			case live.OutputTranscript:
				c.metrics.RecordTransportEvent(ctx, "output_transcript")
				c.mu.Lock()
				c.agg.ApplyOutput(e.Text)
				c.mu.Unlock()
				lastActivity = c.now()

			case live.TurnComplete:
				c.metrics.RecordTransportEvent(ctx, "turn_complete")
				c.mu.Lock()
				c.agg.FlushTurn()
				c.mu.Unlock()

			case live.Closed:
				c.metrics.RecordTransportEvent(ctx, "closed")
				if e.Err != nil {
					c.failActive(ctx, fmt.Errorf("%w: %w", ErrTransport, e.Err))
					return
				}
				c.finish(ctx)
				return
			}
		}
	}
}

// handleTick advances the countdown and runs the silence watchdog. It
// returns true when the countdown reached zero.
func (c *Controller) handleTick(ctx context.Context, sess live.Session, lastActivity *time.Time) bool {
	c.mu.Lock()
	c.countdown--
	remaining := c.countdown
	c.mu.Unlock()
	if c.hooks.OnCountdown != nil {
		c.hooks.OnCountdown(remaining)
	}
	if remaining <= 0 {
		c.log.Info("session countdown expired")
		return true
	}

	if c.now().Sub(*lastActivity) > c.silence {
		c.log.Info("silence watchdog triggered")
		if err := sess.SendText(ctx, agent.SilencePrompt); err != nil {
			c.log.Warn("watchdog prompt failed", "err", err)
		} else {
			c.metrics.WatchdogPrompts.Add(ctx, 1)
		}
		*lastActivity = c.now()
	}
	return false
}

// SendUserText injects a typed user message into the live conversation.
// Only accepted while the session is active.
func (c *Controller) SendUserText(ctx context.Context, text string) error {
	if c.State() != StateActive {
		return ErrNotActive
	}
	reply := make(chan error, 1)
	select {
	case c.cmds <- command{kind: cmdText, text: text, reply: reply}:
	case <-c.done:
		return ErrNotActive
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End finishes the session: teardown, analysis, and record persistence. It
// is idempotent and blocks until the session reaches a terminal state.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch {
	case state == StateIdle:
		c.mu.Lock()
		if c.state == StateIdle {
			c.state = StateEnded
			c.mu.Unlock()
			if c.hooks.OnState != nil {
				c.hooks.OnState(StateEnded)
			}
			close(c.done)
			return nil
		}
		c.mu.Unlock()

	case state == StateActive || state == StateConnecting:
		select {
		case c.cmds <- command{kind: cmdEnd}:
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopResources tears the session's resources down: capture pump, transport,
// and playback. Every step runs even when an earlier one errors.
func (c *Controller) stopResources() error {
	var errs []error

	c.mu.Lock()
	cancel := c.pumpCancel
	sess := c.sess
	sched := c.sched
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.pumpWG.Wait()
	if sess != nil {
		if err := sess.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if sched != nil {
		sched.Interrupt()
	}
	return errors.Join(errs...)
}

// failActive moves an active session to the terminal errored state.
func (c *Controller) failActive(ctx context.Context, cause error) {
	if err := c.stopResources(); err != nil {
		c.log.Warn("session teardown reported errors", "err", err)
	}

	c.mu.Lock()
	c.runErr = cause
	elapsed := c.now().Sub(c.startedAt)
	c.mu.Unlock()

	c.log.Error("session errored", "err", cause)
	c.setState(StateErrored)
	c.metrics.RecordSessionEnd(ctx, "errored", elapsed.Seconds())
	close(c.done)
}

// finish runs the normal end path: teardown, analysis, persistence.
func (c *Controller) finish(ctx context.Context) {
	if err := c.stopResources(); err != nil {
		c.log.Warn("session teardown reported errors", "err", err)
	}

	c.setState(StateAnalyzing)

	// Keep any partial turn that was still buffered when the session ended.
	c.mu.Lock()
	c.agg.FlushTurn()
	items := c.agg.Items()
	startedAt := c.startedAt
	c.mu.Unlock()

	var rep *analysis.Report
	if c.cfg.Analyzer != nil && len(items) > 0 {
		rep = c.analyze(ctx, items)
	}

	endedAt := c.now()
	if c.cfg.Store != nil {
		rec := &record.SessionRecord{
			ID:         c.id,
			AgentID:    c.cfg.Profile.ID,
			Status:     record.StatusCompleted,
			StartedAt:  startedAt,
			EndedAt:    endedAt,
			Transcript: items,
			Report:     rep,
		}
		if err := c.cfg.Store.Save(ctx, rec); err != nil {
			c.log.Warn("session record save failed", "err", err)
		}
	}

	c.mu.Lock()
	c.report = rep
	c.mu.Unlock()

	c.setState(StateEnded)
	c.metrics.RecordSessionEnd(ctx, "ended", endedAt.Sub(startedAt).Seconds())
	c.log.Info("session ended",
		"items", len(items),
		"analyzed", rep != nil)
	close(c.done)
}

// analyze calls the configured analyzer. Failures are absorbed: the session
// record is saved without a report.
func (c *Controller) analyze(ctx context.Context, items []transcript.Item) *analysis.Report {
	convo := make([]analysis.Turn, len(items))
	for i, item := range items {
		convo[i] = analysis.Turn{Speaker: string(item.Speaker), Text: item.Text}
	}
	req := analysis.Request{
		PersonaName: c.cfg.Profile.Name,
		Custom:      c.cfg.Profile.CustomAnalysis,
	}

	start := time.Now()
	rep, err := c.cfg.Analyzer.Analyze(ctx, convo, req)
	if err != nil {
		c.metrics.RecordAnalysis(ctx, "default", "error", time.Since(start).Seconds())
		c.log.Warn("analysis failed", "err", err)
		if c.hooks.OnAnalysisError != nil {
			c.hooks.OnAnalysisError(fmt.Errorf("%w: %w", ErrAnalysis, err))
		}
		return nil
	}
	c.metrics.RecordAnalysis(ctx, "default", "ok", time.Since(start).Seconds())
	return rep
}
