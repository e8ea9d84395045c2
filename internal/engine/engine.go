package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/edmunds/internal/edmunds"
	"github.com/seantiz/edmunds/internal/jsonp"
	"github.com/seantiz/edmunds/internal/model"
	"github.com/seantiz/edmunds/internal/store"
)

// Caller issues API calls. *edmunds.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params edmunds.Params) (json.RawMessage, error)
	URL(method string, params edmunds.Params) string
	Output() string
}

var _ Caller = (*edmunds.Client)(nil)

// Engine records and executes API calls.
type Engine struct {
	store  store.Store
	client Caller
	logger *slog.Logger
	wg     sync.WaitGroup
	broker *EventBroker
}

// NewEngine creates a new engine.
func NewEngine(s store.Store, client Caller, logger *slog.Logger) *Engine {
	return &Engine{
		store:  s,
		client: client,
		logger: logger,
		broker: NewEventBroker(),
	}
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Submit stores c as pending and issues it in the background. The background
// call outlives ctx's cancellation but not the client timeout.
func (e *Engine) Submit(ctx context.Context, c *model.Call) error {
	if err := e.create(ctx, c); err != nil {
		return err
	}

	cCopy := *c
	e.wg.Go(func() {
		e.execute(context.WithoutCancel(ctx), &cCopy)
	})

	return nil
}

// Execute stores c, issues it and returns the finished record. A failed or
// timed-out call is not an error; only storage failures are.
func (e *Engine) Execute(ctx context.Context, c *model.Call) (*model.Call, error) {
	if err := e.create(ctx, c); err != nil {
		return nil, err
	}

	cCopy := *c
	finished := e.execute(ctx, &cCopy)
	if finished == nil {
		return nil, fmt.Errorf("finish call %s: not recorded", c.ID)
	}
	return finished, nil
}

// Wait blocks until all background calls complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) create(ctx context.Context, c *model.Call) error {
	if c.ID == "" {
		c.ID = model.NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Status = model.StatusPending
	c.Format = e.client.Output()
	c.URL = edmunds.RedactKey(e.client.URL(c.Method, edmunds.Params(c.Params)))

	if err := e.store.CreateCall(ctx, c); err != nil {
		return fmt.Errorf("create call: %w", err)
	}
	return nil
}

// execute issues c and records its outcome. It returns the finished call, or
// nil when the outcome could not be stored.
func (e *Engine) execute(ctx context.Context, c *model.Call) *model.Call {
	defer e.broker.Close(c.ID)

	e.broker.Publish(c.ID, Event{Type: EventStarted, Call: c})

	start := time.Now()
	payload, err := e.client.Call(ctx, c.Method, edmunds.Params(c.Params))
	durationMS := int(time.Since(start).Milliseconds())
	now := time.Now().UTC()

	finished := *c
	finished.DurationMS = &durationMS
	finished.FinishedAt = &now

	switch {
	case err == nil:
		finished.Status = model.StatusCompleted
		finished.Payload = payload
	case errors.Is(err, jsonp.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		finished.Status = model.StatusTimeout
		finished.Error = err.Error()
	default:
		finished.Status = model.StatusFailed
		finished.Error = err.Error()
	}

	if err != nil {
		e.logger.Warn("call failed", "call_id", c.ID, "method", c.Method, "status", finished.Status, "error", err)
	} else {
		e.logger.Debug("call completed", "call_id", c.ID, "method", c.Method, "duration_ms", durationMS)
	}

	// The request context may be gone by now; the outcome is still recorded.
	if err := e.store.FinishCall(context.WithoutCancel(ctx), &finished); err != nil {
		e.logger.Error("failed to record call outcome", "call_id", c.ID, "error", err)
		return nil
	}

	e.broker.Publish(c.ID, Event{Type: EventDone, Call: &finished})
	return &finished
}
