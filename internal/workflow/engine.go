// Package workflow implements the conversation state machine that turns one
// user message into one reply.
//
// A run starts at EXTRACT_INTENT for a fresh utterance, or at RESUME_TIME /
// RESUME_DECISION when the conversation has a pending context. Handlers move
// along the edges in Transitions until a terminal state produces an Outcome.
// The engine never touches the context store itself; the Outcome says
// whether the caller must write or clear it.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/user/fairweather/internal/types"
)

// Action tells the caller what to do with the conversation's context.
type Action int

const (
	ActionClear Action = iota
	ActionWrite
)

func (a Action) String() string {
	if a == ActionWrite {
		return "write"
	}
	return "clear"
}

// Outcome is the result of one run.
type Outcome struct {
	State    State
	Path     []State
	Response string
	Action   Action
	// Context is set when Action is ActionWrite.
	Context *types.SessionContext
}

// PathStrings returns Path as plain strings, for transcripts.
func (o *Outcome) PathStrings() []string {
	out := make([]string, len(o.Path))
	for i, s := range o.Path {
		out[i] = string(s)
	}
	return out
}

type Config struct {
	FallbackLocation string
	Location         *time.Location

	// HotCelsius and CoolCelsius pick the advice line of a condition report.
	HotCelsius  float64
	CoolCelsius float64

	ExtractTimeout  time.Duration
	ForecastTimeout time.Duration
	ScheduleTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		FallbackLocation: "Singapore",
		Location:         time.UTC,
		HotCelsius:       30,
		CoolCelsius:      20,
		ExtractTimeout:   15 * time.Second,
		ForecastTimeout:  10 * time.Second,
		ScheduleTimeout:  10 * time.Second,
	}
}

// MinConfidence is the confidence an intent must exceed to be acted on.
const MinConfidence = 0.5

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

type handler func(r *run) (next State, out *Outcome)

type Engine struct {
	extractor types.IntentExtractor
	provider  types.ConditionProvider
	sink      types.SchedulingSink
	cfg       Config
	now       func() time.Time
	handlers  map[State]handler
}

func New(extractor types.IntentExtractor, provider types.ConditionProvider, sink types.SchedulingSink, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.FallbackLocation == "" {
		cfg.FallbackLocation = def.FallbackLocation
	}
	if cfg.HotCelsius == 0 && cfg.CoolCelsius == 0 {
		cfg.HotCelsius, cfg.CoolCelsius = def.HotCelsius, def.CoolCelsius
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = def.ExtractTimeout
	}
	if cfg.ForecastTimeout <= 0 {
		cfg.ForecastTimeout = def.ForecastTimeout
	}
	if cfg.ScheduleTimeout <= 0 {
		cfg.ScheduleTimeout = def.ScheduleTimeout
	}

	e := &Engine{
		extractor: extractor,
		provider:  provider,
		sink:      sink,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = map[State]handler{
		StateExtractIntent:     e.extractIntent,
		StateResumeTime:        e.resumeTime,
		StateResumeDecision:    e.resumeDecision,
		StateReportCondition:   e.reportCondition,
		StateCheckCondition:    e.checkCondition,
		StateConfirmSchedule:   e.confirmSchedule,
		StateRequestTime:       e.requestTime,
		StateRequestGeneral:    e.requestGeneral,
		StateRequestReschedule: e.requestReschedule,
		StateCancelled:         e.cancelled,
	}
	return e
}

// run carries the working data of one message through the handlers.
type run struct {
	ctx       context.Context
	id        types.ConversationID
	utterance string

	intent    *types.Intent
	report    *types.ConditionReport
	reason    clarifyReason
	proceeded bool
	timeRetry bool
	path      []State
}

// Start handles a fresh utterance.
func (e *Engine) Start(ctx context.Context, id types.ConversationID, utterance string) *Outcome {
	r := &run{ctx: context.WithoutCancel(ctx), id: id, utterance: utterance}
	return e.drive(r, StateExtractIntent)
}

// Resume handles a reply to a pending clarification. A context that is not
// awaiting anything is treated as absent.
func (e *Engine) Resume(ctx context.Context, sc *types.SessionContext, utterance string) *Outcome {
	if sc == nil || sc.PendingIntent == nil {
		id := types.ConversationID("")
		if sc != nil {
			id = sc.ConversationID
		}
		return e.Start(ctx, id, utterance)
	}

	r := &run{
		ctx:       context.WithoutCancel(ctx),
		id:        sc.ConversationID,
		utterance: utterance,
		intent:    sc.PendingIntent.Clone(),
	}
	switch sc.Awaiting {
	case types.AwaitingTime:
		return e.drive(r, StateResumeTime)
	case types.AwaitingConditionDecision:
		return e.drive(r, StateResumeDecision)
	default:
		return e.Start(ctx, sc.ConversationID, utterance)
	}
}

func (e *Engine) drive(r *run, state State) *Outcome {
	for {
		r.path = append(r.path, state)
		h, ok := e.handlers[state]
		if !ok {
			slog.Error("workflow: no handler", "state", state, "conversation_id", r.id)
			return e.abort(r)
		}

		next, out := h(r)
		if out != nil {
			out.State = state
			out.Path = r.path
			slog.Debug("workflow: run complete",
				"conversation_id", r.id, "state", state, "path", out.PathStrings(), "action", out.Action)
			return out
		}
		if !CanTransition(state, next) {
			slog.Error("workflow: illegal transition", "from", state, "to", next, "conversation_id", r.id)
			return e.abort(r)
		}
		state = next
	}
}

// abort ends a run that hit a programming error with a plain clarification.
func (e *Engine) abort(r *run) *Outcome {
	r.reason = reasonUnclear
	out := e.clear(e.generalClarificationMessage(r))
	out.State = StateRequestGeneral
	out.Path = r.path
	return out
}

func (e *Engine) clear(response string) *Outcome {
	return &Outcome{Response: response, Action: ActionClear}
}

func (e *Engine) write(r *run, awaiting types.Awaiting, response string) *Outcome {
	return &Outcome{
		Response: response,
		Action:   ActionWrite,
		Context: &types.SessionContext{
			ConversationID: r.id,
			PendingIntent:  r.intent.Clone(),
			Awaiting:       awaiting,
		},
	}
}

// RouteIntent decides where a freshly extracted intent goes.
func RouteIntent(i *types.Intent) State {
	switch {
	case i == nil || i.Confidence <= MinConfidence || !i.Resolved() || i.Casual():
		return StateRequestGeneral
	case i.IsPureConditionQuery:
		return StateReportCondition
	case !i.HasSpecificTime:
		return StateRequestTime
	default:
		return StateCheckCondition
	}
}

// RouteReport decides whether a scheduling request can go ahead. A nil
// report means conditions are unknown, which never schedules.
func RouteReport(r *types.ConditionReport) State {
	if r == nil || r.Adverse {
		return StateRequestGeneral
	}
	return StateConfirmSchedule
}

func (e *Engine) extractIntent(r *run) (State, *Outcome) {
	ctx, cancel := context.WithTimeout(r.ctx, e.cfg.ExtractTimeout)
	defer cancel()

	intent, err := e.extractor.Extract(ctx, r.utterance, e.now())
	if err != nil || intent == nil {
		if err == nil {
			err = errors.New("extractor returned no intent")
		}
		slog.Warn("workflow: intent extraction failed", "conversation_id", r.id, "error", err)
		intent = &types.Intent{Activity: types.ActivityUnknown}
	}
	r.intent = intent

	next := RouteIntent(intent)
	if next == StateRequestGeneral {
		r.reason = reasonUnclear
		if intent.Casual() {
			r.reason = reasonCasual
		}
	}
	return next, nil
}

func (e *Engine) forecast(r *run) (*types.ConditionReport, error) {
	ctx, cancel := context.WithTimeout(r.ctx, e.cfg.ForecastTimeout)
	defer cancel()

	report, err := e.provider.Forecast(ctx, r.intent.TargetTime, r.intent.LocationOr(e.cfg.FallbackLocation))
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, errors.New("provider returned no report")
	}
	return report, nil
}

func (e *Engine) reportCondition(r *run) (State, *Outcome) {
	report, err := e.forecast(r)
	if err != nil {
		slog.Warn("workflow: condition lookup failed", "conversation_id", r.id, "error", err)
		return "", e.clear(e.reportUnavailableMessage(r.intent.LocationOr(e.cfg.FallbackLocation)))
	}
	return "", e.clear(e.reportMessage(r.intent, report))
}

func (e *Engine) checkCondition(r *run) (State, *Outcome) {
	report, err := e.forecast(r)
	if err != nil {
		slog.Warn("workflow: condition lookup failed", "conversation_id", r.id, "error", err)
	}
	r.report = report

	next := RouteReport(report)
	if next == StateRequestGeneral {
		r.reason = reasonUnavailable
		if report != nil {
			r.reason = reasonAdverse
		}
	}
	return next, nil
}

func (e *Engine) confirmSchedule(r *run) (State, *Outcome) {
	ctx, cancel := context.WithTimeout(r.ctx, e.cfg.ScheduleTimeout)
	defer cancel()

	ev, err := e.sink.Schedule(ctx, r.intent.Activity, r.intent.TargetTime, r.intent.LocationOr(e.cfg.FallbackLocation))
	if err != nil {
		slog.Warn("workflow: scheduling failed", "conversation_id", r.id, "activity", r.intent.Activity, "error", err)
		return "", e.clear(scheduleFailedMessage(r.intent.Activity))
	}
	return "", e.clear(e.confirmMessage(r, ev))
}

func (e *Engine) requestTime(r *run) (State, *Outcome) {
	return "", e.write(r, types.AwaitingTime, e.timeClarificationMessage(r.intent, r.timeRetry))
}

func (e *Engine) requestGeneral(r *run) (State, *Outcome) {
	msg := e.generalClarificationMessage(r)
	switch r.reason {
	case reasonAdverse, reasonDecision:
		return "", e.write(r, types.AwaitingConditionDecision, msg)
	default:
		return "", e.clear(msg)
	}
}

func (e *Engine) resumeTime(r *run) (State, *Outcome) {
	hour, minute, ok := ParseTimeOfDay(r.utterance)
	if !ok {
		r.timeRetry = true
		return StateRequestTime, nil
	}
	r.intent.TargetTime = mergeTime(r.intent.TargetTime, hour, minute, e.cfg.Location)
	r.intent.HasSpecificTime = true
	return StateCheckCondition, nil
}

func (e *Engine) resumeDecision(r *run) (State, *Outcome) {
	switch ClassifyDecision(r.utterance) {
	case DecisionProceed:
		r.proceeded = true
		return StateConfirmSchedule, nil
	case DecisionReschedule:
		return StateRequestReschedule, nil
	case DecisionCancel:
		return StateCancelled, nil
	default:
		r.reason = reasonDecision
		return StateRequestGeneral, nil
	}
}

// requestReschedule drops the pending intent entirely; the next message is
// read as a fresh request.
func (e *Engine) requestReschedule(r *run) (State, *Outcome) {
	return "", e.clear(rescheduleMessage(r.intent.Activity))
}

func (e *Engine) cancelled(r *run) (State, *Outcome) {
	return "", e.clear(cancelMessage(r.intent.Activity))
}
