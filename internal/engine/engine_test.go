package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/edmunds/internal/edmunds"
	"github.com/seantiz/edmunds/internal/engine"
	"github.com/seantiz/edmunds/internal/jsonp"
	"github.com/seantiz/edmunds/internal/model"
	"github.com/seantiz/edmunds/internal/store"
)

// fakeCaller is a configurable Caller for engine tests.
type fakeCaller struct {
	delay   time.Duration
	payload json.RawMessage
	err     error
}

func (f *fakeCaller) Call(ctx context.Context, _ string, _ edmunds.Params) (json.RawMessage, error) {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *fakeCaller) URL(method string, params edmunds.Params) string {
	return fmt.Sprintf("http://api.test%s?%s&api_key=secret&fmt=json", method, edmunds.SerializeParams(params))
}

func (f *fakeCaller) Output() string { return "json" }

func newTestEngine(t *testing.T, c engine.Caller) (*engine.Engine, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := engine.NewEngine(s, c, logger)
	t.Cleanup(eng.Wait)
	return eng, s
}

func makeCall() *model.Call {
	return &model.Call{
		Method: "/api/vehicle/v2/makes",
		Params: map[string]string{"year": "2014"},
	}
}

// waitForStatus polls the store until the call reaches the expected status.
func waitForStatus(t *testing.T, s store.Store, id, expected string, timeout time.Duration) *model.Call {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c, err := s.GetCall(context.Background(), id)
		if err != nil {
			t.Fatalf("GetCall: %v", err)
		}
		if c.Status == expected {
			return c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("call %s did not reach status %q within %v", id, expected, timeout)
	return nil
}

func TestSubmitHappyPath(t *testing.T) {
	f := &fakeCaller{delay: 10 * time.Millisecond, payload: json.RawMessage(`{"makes":[]}`)}
	eng, s := newTestEngine(t, f)

	c := makeCall()
	if err := eng.Submit(context.Background(), c); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if c.ID == "" {
		t.Fatal("Submit did not assign an ID")
	}

	got, err := s.GetCall(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("initial status = %q, want pending", got.Status)
	}
	if strings.Contains(got.URL, "secret") || !strings.Contains(got.URL, "api_key=REDACTED") {
		t.Errorf("URL = %q, want the api key redacted", got.URL)
	}
	if got.Format != "json" {
		t.Errorf("Format = %q, want json", got.Format)
	}

	completed := waitForStatus(t, s, c.ID, model.StatusCompleted, 5*time.Second)
	if string(completed.Payload) != `{"makes":[]}` {
		t.Errorf("payload = %s", completed.Payload)
	}
	if completed.DurationMS == nil || *completed.DurationMS <= 0 {
		t.Errorf("duration_ms = %v, want > 0", completed.DurationMS)
	}
	if completed.FinishedAt == nil {
		t.Error("finished_at is nil")
	}
}

func TestSubmitCallError(t *testing.T) {
	f := &fakeCaller{err: &jsonp.LoadError{Callback: "cb", Reason: jsonp.ReasonNetwork}}
	eng, s := newTestEngine(t, f)

	c := makeCall()
	if err := eng.Submit(context.Background(), c); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	failed := waitForStatus(t, s, c.ID, model.StatusFailed, 5*time.Second)
	if !strings.Contains(failed.Error, jsonp.ReasonNetwork) {
		t.Errorf("error = %q, want it to mention %q", failed.Error, jsonp.ReasonNetwork)
	}
}

func TestSubmitTimeout(t *testing.T) {
	f := &fakeCaller{err: fmt.Errorf("call /m: %w", jsonp.ErrTimeout)}
	eng, s := newTestEngine(t, f)

	c := makeCall()
	if err := eng.Submit(context.Background(), c); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	timedOut := waitForStatus(t, s, c.ID, model.StatusTimeout, 5*time.Second)
	if !strings.Contains(timedOut.Error, "timeout") {
		t.Errorf("error = %q, want timeout", timedOut.Error)
	}
}

func TestSubmitOutlivesRequestContext(t *testing.T) {
	f := &fakeCaller{delay: 30 * time.Millisecond, payload: json.RawMessage(`1`)}
	eng, s := newTestEngine(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	c := makeCall()
	if err := eng.Submit(ctx, c); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cancel()

	waitForStatus(t, s, c.ID, model.StatusCompleted, 5*time.Second)
}

func TestExecute(t *testing.T) {
	f := &fakeCaller{payload: json.RawMessage(`{"ok":true}`)}
	eng, _ := newTestEngine(t, f)

	got, err := eng.Execute(context.Background(), makeCall())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if string(got.Payload) != `{"ok":true}` {
		t.Errorf("payload = %s", got.Payload)
	}
}

func TestExecuteDeadline(t *testing.T) {
	f := &fakeCaller{delay: time.Second}
	eng, _ := newTestEngine(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := eng.Execute(ctx, makeCall())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != model.StatusTimeout {
		t.Errorf("status = %q, want timeout", got.Status)
	}
}

func TestExecuteDuplicateID(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeCaller{})

	c := makeCall()
	if _, err := eng.Execute(context.Background(), c); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	dup := makeCall()
	dup.ID = c.ID
	if _, err := eng.Execute(context.Background(), dup); err == nil {
		t.Error("expected error storing a duplicate ID")
	}
}

func TestSubmitPublishesEvents(t *testing.T) {
	f := &fakeCaller{delay: 50 * time.Millisecond, payload: json.RawMessage(`{}`)}
	eng, _ := newTestEngine(t, f)

	c := makeCall()
	c.ID = model.NewID()
	events, unsub := eng.Broker().Subscribe(c.ID)
	defer unsub()

	if err := eng.Submit(context.Background(), c); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var types []string
	var last engine.Event
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-events:
			if !ok {
				done = true
				break
			}
			types = append(types, ev.Type)
			last = ev
		case <-timeout:
			t.Fatal("event stream never closed")
		}
	}

	if len(types) != 2 || types[0] != engine.EventStarted || types[1] != engine.EventDone {
		t.Fatalf("events = %v, want [started done]", types)
	}
	if last.Call.Status != model.StatusCompleted {
		t.Errorf("done event status = %q, want completed", last.Call.Status)
	}
}

func TestSubmitConcurrent(t *testing.T) {
	f := &fakeCaller{delay: 50 * time.Millisecond, payload: json.RawMessage(`"done"`)}
	eng, s := newTestEngine(t, f)

	ids := make([]string, 5)
	for i := range ids {
		c := makeCall()
		if err := eng.Submit(context.Background(), c); err != nil {
			t.Fatalf("Submit[%d]: %v", i, err)
		}
		ids[i] = c.ID
	}

	eng.Wait()
	for _, id := range ids {
		waitForStatus(t, s, id, model.StatusCompleted, time.Second)
	}
}

func TestSubmitStoreError(t *testing.T) {
	eng, s := newTestEngine(t, &fakeCaller{})
	s.Close()

	err := eng.Submit(context.Background(), makeCall())
	if err == nil || !strings.Contains(err.Error(), "create call") {
		t.Errorf("error = %v, want create call error", err)
	}
	if errors.Is(err, store.ErrNotFound) {
		t.Error("unexpected ErrNotFound")
	}
}
