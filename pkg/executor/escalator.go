package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/rookery/pkg/events"
	"github.com/cuemby/rookery/pkg/log"
	"github.com/cuemby/rookery/pkg/metrics"
	"github.com/cuemby/rookery/pkg/types"
)

// ErrNoSignalBudget is the signal error recorded when the escalation delay
// is zero and the cooperative step is skipped
var ErrNoSignalBudget = errors.New("kill escalation delay is zero, signal skipped")

// ErrNoEndpoint is the signal error recorded for commands without an endpoint
var ErrNoEndpoint = errors.New("task has no stop endpoint")

// State is a step of a single kill invocation
type State string

const (
	StateIdle       State = "idle"
	StateSignaling  State = "signaling"
	StateEscalating State = "escalating"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Outcome summarises how a kill invocation ended
type Outcome string

const (
	// OutcomeSignaled means the cooperative stop request was accepted
	OutcomeSignaled Outcome = "signaled"
	// OutcomeTreeKilled means the signal failed and the kill-tree succeeded
	OutcomeTreeKilled Outcome = "tree_killed"
	// OutcomeFailed means both steps failed
	OutcomeFailed Outcome = "failed"
)

// Result is the outcome of one Kill call
type Result struct {
	AttemptID  string
	TaskID     string
	Outcome    Outcome
	Final      State
	Response   []string   // Lines returned by the task endpoint on success
	SignalErr  error      // Why the cooperative step failed; nil for OutcomeSignaled
	KillErr    *KillError // Set for OutcomeFailed
	ExitStatus int        // Kill-tree exit status when it ran
	Duration   time.Duration
}

// Escalated reports whether the forceful path was taken
func (r Result) Escalated() bool {
	return r.Outcome != OutcomeSignaled
}

// Err returns the KillFailure for a failed invocation and nil otherwise
func (r Result) Err() error {
	if r.Outcome != OutcomeFailed {
		return nil
	}
	return r.KillErr
}

// EscalatorOption configures an Escalator
type EscalatorOption func(*Escalator)

// WithSignalPayload sets the body of the cooperative stop request
func WithSignalPayload(payload string) EscalatorOption {
	return func(e *Escalator) { e.payload = payload }
}

// WithEscalatorEvents publishes kill outcomes on broker
func WithEscalatorEvents(broker *events.Broker) EscalatorOption {
	return func(e *Escalator) { e.events = broker }
}

// Escalator stops a task by signalling it and, when that fails, running the
// kill-tree procedure. It keeps no state between calls.
type Escalator struct {
	signaler   Signaler
	killer     TreeKiller
	escalation time.Duration
	payload    string
	events     *events.Broker
	logger     zerolog.Logger
}

// NewEscalator creates an escalator. escalation is the budget of the
// cooperative step; zero goes straight to the kill-tree.
func NewEscalator(signaler Signaler, killer TreeKiller, escalation time.Duration, opts ...EscalatorOption) (*Escalator, error) {
	if signaler == nil || killer == nil {
		return nil, errors.New("signaler and tree killer are required")
	}
	if escalation < 0 {
		return nil, fmt.Errorf("kill escalation must not be negative, got %v", escalation)
	}

	e := &Escalator{
		signaler:   signaler,
		killer:     killer,
		escalation: escalation,
		logger:     log.WithComponent("escalator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Kill runs one escalation for cmd and blocks until it reaches Done or Failed
func (e *Escalator) Kill(ctx context.Context, cmd types.KillCommand) Result {
	start := time.Now()
	res := Result{
		AttemptID: uuid.NewString(),
		TaskID:    cmd.TaskID,
		Final:     StateIdle,
	}
	logger := log.WithKillAttempt(e.logger, cmd.TaskID, res.AttemptID)

	res.Final = e.transition(logger, res.Final, StateSignaling)
	lines, err := e.signal(ctx, cmd)
	if err == nil {
		res.Final = e.transition(logger, res.Final, StateDone)
		res.Outcome = OutcomeSignaled
		res.Response = lines
		return e.finish(logger, res, start)
	}
	res.SignalErr = err

	res.Final = e.transition(logger, res.Final, StateEscalating)
	logger.Warn().Err(err).Str("procedure", cmd.KillTreePath).Msg("Cooperative stop failed, escalating to kill-tree")

	// The forceful step must run even when the caller's deadline has passed
	status, err := e.killer.Run(context.WithoutCancel(ctx), cmd.KillTreePath, cmd.WorkDir)
	res.ExitStatus = status
	if err != nil {
		var killErr *KillError
		if !errors.As(err, &killErr) {
			killErr = &KillError{Path: cmd.KillTreePath, ExitStatus: status, Err: err}
		}
		res.KillErr = killErr
		res.Final = e.transition(logger, res.Final, StateFailed)
		res.Outcome = OutcomeFailed
		return e.finish(logger, res, start)
	}

	res.Final = e.transition(logger, res.Final, StateDone)
	res.Outcome = OutcomeTreeKilled
	return e.finish(logger, res, start)
}

// signal runs the cooperative step inside the escalation budget
func (e *Escalator) signal(ctx context.Context, cmd types.KillCommand) ([]string, error) {
	if e.escalation == 0 {
		return nil, ErrNoSignalBudget
	}
	if cmd.Endpoint == "" {
		return nil, ErrNoEndpoint
	}

	ctx, cancel := context.WithTimeout(ctx, e.escalation)
	defer cancel()
	return e.signaler.Send(ctx, cmd.Endpoint, e.payload)
}

func (e *Escalator) transition(logger zerolog.Logger, from, to State) State {
	logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("Kill state transition")
	return to
}

func (e *Escalator) finish(logger zerolog.Logger, res Result, start time.Time) Result {
	res.Duration = time.Since(start)
	metrics.KillAttemptsTotal.WithLabelValues(string(res.Outcome)).Inc()

	ev := &events.Event{
		TaskID: res.TaskID,
		Metadata: map[string]string{
			"attempt_id": res.AttemptID,
			"outcome":    string(res.Outcome),
		},
	}

	switch res.Outcome {
	case OutcomeSignaled:
		ev.Type = events.EventTaskSignaled
		ev.Message = "task acknowledged stop request"
		logger.Info().Dur("duration", res.Duration).Msg("Task stopped cooperatively")
	case OutcomeTreeKilled:
		ev.Type = events.EventTaskTreeKilled
		ev.Message = "task process tree killed"
		logger.Info().Dur("duration", res.Duration).Msg("Task process tree killed")
	case OutcomeFailed:
		ev.Type = events.EventTaskKillFailed
		ev.Message = res.KillErr.Error()
		ev.Metadata["exit_status"] = strconv.Itoa(res.ExitStatus)
		logger.Error().Err(res.KillErr).Int("exit_status", res.ExitStatus).Msg("Failed to kill task")
	}

	e.events.Publish(ev)
	return res
}
