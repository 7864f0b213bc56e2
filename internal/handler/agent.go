package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/records-cli/internal/model"
	"github.com/sells-group/records-cli/internal/outcome"
	"github.com/sells-group/records-cli/internal/resilience"
	"github.com/sells-group/records-cli/pkg/browseruse"
)

const stopSessionTimeout = 30 * time.Second

// AgentConfig tunes the remote agent calls.
type AgentConfig struct {
	MaxSteps     int
	PollInterval time.Duration
	Timeout      time.Duration
	Retry        resilience.RetryConfig
}

// AgentHandler submits web forms through the remote browser agent.
type AgentHandler struct {
	name      string
	portal    Portal
	client    browseruse.Client
	interp    *outcome.Interpreter
	breaker   *resilience.CircuitBreaker
	requester model.Requester
	cfg       AgentConfig
	now       func() time.Time
}

// NewAgentHandler builds a handler for portal. A nil interpreter uses the
// embedded evidence rules; a nil breaker disables circuit breaking.
func NewAgentHandler(name string, portal Portal, client browseruse.Client, interp *outcome.Interpreter,
	breaker *resilience.CircuitBreaker, requester model.Requester, cfg AgentConfig) *AgentHandler {
	if interp == nil {
		interp = outcome.DefaultInterpreter()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 30
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("browseruse", "create_task")
	}
	return &AgentHandler{
		name:      name,
		portal:    portal,
		client:    client,
		interp:    interp,
		breaker:   breaker,
		requester: requester,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Name implements Handler.
func (h *AgentHandler) Name() string { return h.name }

// Submit implements Handler.
func (h *AgentHandler) Submit(ctx context.Context, entry model.FormEntry, extra map[string]string) model.SubmissionResult {
	res := NewResult(entry, model.StatusInProgress, h.now())
	log := zap.L().With(
		zap.String("handler", h.name),
		zap.String("entry", entry.UniqueID()),
	)

	prompt := BuildTask(h.portal, entry, h.requester, extra)
	task, err := resilience.Call(ctx, h.breaker, func(ctx context.Context) (*browseruse.Task, error) {
		return resilience.DoVal(ctx, h.cfg.Retry, func(ctx context.Context) (*browseruse.Task, error) {
			t, err := h.client.CreateTask(ctx, browseruse.CreateTaskRequest{Task: prompt, MaxSteps: h.cfg.MaxSteps})
			return t, transientAPI(err)
		})
	})
	if err != nil {
		log.Warn("handler: create task failed", zap.Error(err))
		return h.failed(res, err)
	}
	log.Info("handler: agent task started",
		zap.String("task_id", task.ID),
		zap.String("live_url", task.LiveURL),
	)

	pollCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	final, err := browseruse.PollTask(pollCtx, h.client, task.ID, browseruse.WithPollInterval(h.cfg.PollInterval))
	cancel()

	sessionID := task.SessionID
	if final != nil && final.SessionID != "" {
		sessionID = final.SessionID
	}
	h.stopSession(ctx, sessionID, log)

	if err != nil {
		log.Warn("handler: agent task did not finish", zap.String("task_id", task.ID), zap.Error(err))
		return h.failed(res, err)
	}

	out := h.interp.Interpret(outcome.Task{Status: final.Status, Output: final.Output, Error: final.Error})
	out.Apply(&res)
	res.AgentOutput = model.TruncateOutput(final.Output)
	res.CompletedAt = h.now()

	log.Info("handler: agent task finished",
		zap.String("status", string(res.Status)),
		zap.String("confidence", string(res.Confidence)),
	)
	return res
}

func (h *AgentHandler) failed(res model.SubmissionResult, err error) model.SubmissionResult {
	reason := resilience.FailureReason(err)
	msg := err.Error()
	if reason == model.FailureTimeout {
		msg = "Task timed out"
	}
	return fail(res, reason, msg, h.now())
}

// stopSession releases the remote browser. Failures are logged only.
func (h *AgentHandler) stopSession(ctx context.Context, sessionID string, log *zap.Logger) {
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopSessionTimeout)
	defer cancel()
	if err := h.client.StopSession(ctx, sessionID); err != nil {
		log.Debug("handler: stop session failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// transientAPI marks retryable API status codes so the retry loop and the
// breaker treat them as network failures.
func transientAPI(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *browseruse.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(eris.Wrap(err, "handler: agent api"), apiErr.StatusCode)
	}
	return err
}
