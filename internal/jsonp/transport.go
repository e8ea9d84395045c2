package jsonp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	callbackParam  = "callback"
	cacheBustParam = "_dc"
	callbackPrefix = "callback"
)

// callbackSeq is shared by every transport so generated names stay unique
// across the whole process.
var callbackSeq atomic.Uint64

// Options configures a single request.
type Options struct {
	// Timeout aborts the request with ErrTimeout when no response arrives in
	// time. Zero disables the timeout.
	Timeout time.Duration

	// OnSuccess receives the payload passed to the callback. May be nil.
	OnSuccess func(payload json.RawMessage)

	// OnError receives ErrTimeout, ErrClosed, ErrCallbackParam or a
	// *LoadError. May be nil.
	OnError func(err error)

	// CacheBust appends a unique _dc parameter to defeat intermediary caches.
	CacheBust bool
}

type requestState int

const (
	statePending requestState = iota
	stateCompleted
	stateAborted
)

func (s requestState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateCompleted:
		return "completed"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// pendingRequest is the per-request state record. All fields except script
// are owned by the loop goroutine; script is set before its load starts and
// never reassigned.
type pendingRequest struct {
	callbackName string
	opts         Options
	started      time.Time

	script     *Script
	timer      *time.Timer
	state      requestState
	tombstoned bool
}

// Transport issues JSONP requests.
type Transport struct {
	loader   Loader
	logger   *slog.Logger
	loop     *Loop
	registry *Registry
	head     *Head

	ctx    context.Context
	cancel context.CancelFunc

	pending      map[string]*pendingRequest
	pendingCount atomic.Int64
	closed       atomic.Bool
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithLoader sets the script loader. The default is NewHTTPLoader().
func WithLoader(l Loader) TransportOption {
	return func(t *Transport) {
		t.loader = l
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport creates a transport and starts its event loop. Call Close to
// release it.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		registry: NewRegistry(),
		head:     NewHead(),
		pending:  make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.loader == nil {
		t.loader = NewHTTPLoader()
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.loop = NewLoop(t.logger)
	return t
}

// Registry returns the callback namespace scripts dispatch into.
func (t *Transport) Registry() *Registry {
	return t.registry
}

// Head returns the container holding in-flight scripts.
func (t *Transport) Head() *Head {
	return t.head
}

// Pending returns the number of requests that have not yet completed.
func (t *Transport) Pending() int {
	return int(t.pendingCount.Load())
}

// NextCallbackName returns a fresh callback name: a millisecond timestamp
// followed by a process-wide sequence number.
func NextCallbackName() string {
	return callbackPrefix + strconv.FormatInt(time.Now().UnixMilli(), 10) + strconv.FormatUint(callbackSeq.Add(1), 10)
}

// Request issues a JSONP request for rawURL. Exactly one of opts.OnSuccess or
// opts.OnError is eventually invoked, on the transport's loop goroutine.
// After Close, opts.OnError(ErrClosed) is invoked before Request returns.
func (t *Transport) Request(rawURL string, opts Options) {
	pr := &pendingRequest{
		callbackName: NextCallbackName(),
		opts:         opts,
		started:      time.Now(),
	}

	if t.closed.Load() || !t.loop.Post(func() { t.start(pr, rawURL) }) {
		pr.state = stateAborted
		t.finish(pr, nil, ErrClosed)
	}
}

// Do issues a request and waits for its outcome. If ctx carries a deadline
// earlier than opts.Timeout, the deadline bounds the request. When ctx ends
// first Do returns ctx.Err(); the request itself still runs to its own
// timeout.
func (t *Transport) Do(ctx context.Context, rawURL string, opts Options) (json.RawMessage, error) {
	type result struct {
		payload json.RawMessage
		err     error
	}
	ch := make(chan result, 1)

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); opts.Timeout <= 0 || remaining < opts.Timeout {
			opts.Timeout = max(remaining, time.Millisecond)
		}
	}
	opts.OnSuccess = func(payload json.RawMessage) { ch <- result{payload: payload} }
	opts.OnError = func(err error) { ch <- result{err: err} }

	t.Request(rawURL, opts)

	select {
	case r := <-ch:
		return r.payload, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close aborts every pending request with ErrClosed and stops the loop. It
// must not be called from a continuation.
func (t *Transport) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.loop.Post(func() {
		for _, pr := range t.pending {
			t.abort(pr, ErrClosed)
		}
	})
	t.loop.Close()
	t.cancel()
}

// start runs on the loop: it registers the callback, attaches the script,
// arms the timeout and begins loading.
func (t *Transport) start(pr *pendingRequest, rawURL string) {
	if t.closed.Load() {
		pr.state = stateAborted
		t.finish(pr, nil, ErrClosed)
		return
	}

	target, err := buildURL(rawURL, pr.callbackName, pr.opts.CacheBust, pr.started)
	if err != nil {
		pr.state = stateAborted
		t.finish(pr, nil, err)
		return
	}

	if err := t.registry.Register(pr.callbackName, func(payload json.RawMessage) {
		t.succeed(pr, payload)
	}); err != nil {
		pr.state = stateAborted
		t.finish(pr, nil, &LoadError{Callback: pr.callbackName, Reason: ReasonDuplicateCB, Err: err})
		return
	}

	ctx, cancel := context.WithCancel(t.ctx)
	pr.script = &Script{
		ID:     ulid.Make().String(),
		URL:    target,
		cancel: cancel,
	}
	t.head.Append(pr.script)

	if pr.opts.Timeout > 0 {
		pr.timer = time.AfterFunc(pr.opts.Timeout, func() {
			t.loop.Post(func() { t.abort(pr, ErrTimeout) })
		})
	}

	t.pending[pr.callbackName] = pr
	t.pendingCount.Add(1)
	pendingRequests.Inc()

	t.logger.Debug("jsonp: script injected", "callback", pr.callbackName, "script_id", pr.script.ID)

	go t.load(ctx, pr)
}

// load fetches the script off the loop and posts exactly one completion task
// back to it.
func (t *Transport) load(ctx context.Context, pr *pendingRequest) {
	body, err := t.loader.Load(ctx, pr.script.URL)
	if err == nil {
		var name string
		var payload json.RawMessage
		name, payload, err = ParseEnvelope(body)
		if err == nil {
			t.loop.Post(func() {
				t.registry.Dispatch(name, payload)
				if pr.state == statePending {
					t.abort(pr, &LoadError{
						Callback: pr.callbackName,
						Reason:   ReasonNotInvoked,
						Err:      fmt.Errorf("script called %q", name),
					})
				}
				t.release(pr)
			})
			return
		}
	}

	loadErr := &LoadError{Callback: pr.callbackName, Reason: reasonFor(err), Err: err}
	t.loop.Post(func() {
		t.abort(pr, loadErr)
		t.release(pr)
	})
}

// succeed is the registered callback.
func (t *Transport) succeed(pr *pendingRequest, payload json.RawMessage) {
	if pr.state != statePending {
		return
	}
	pr.state = stateCompleted
	t.cleanup(pr)

	t.logger.Debug("jsonp: callback invoked", "callback", pr.callbackName)
	t.finish(pr, payload, nil)
}

// abort ends a pending request with err. Later calls are inert.
func (t *Transport) abort(pr *pendingRequest, err error) {
	if pr.state != statePending {
		return
	}
	pr.state = stateAborted
	t.cleanup(pr)

	if errors.Is(err, ErrTimeout) {
		// A response already in flight must land on something harmless.
		t.registry.Replace(pr.callbackName, func(json.RawMessage) {})
		pr.tombstoned = true
	}

	t.logger.Warn("jsonp: script failed to load", "callback", pr.callbackName, "error", err)
	t.finish(pr, nil, err)
}

// cleanup detaches every resource the request owns. It is idempotent.
func (t *Transport) cleanup(pr *pendingRequest) {
	if pr.script != nil {
		t.head.Remove(pr.script)
	}
	if pr.timer != nil {
		pr.timer.Stop()
	}
	t.registry.Delete(pr.callbackName)

	if _, ok := t.pending[pr.callbackName]; ok {
		delete(t.pending, pr.callbackName)
		t.pendingCount.Add(-1)
		pendingRequests.Dec()
	}
}

// release drops the no-op left behind by a timeout once the script's load
// has finished and nothing can dispatch to it any more.
func (t *Transport) release(pr *pendingRequest) {
	if pr.tombstoned {
		t.registry.Delete(pr.callbackName)
		pr.tombstoned = false
	}
}

// finish records metrics and invokes the matching continuation, if any.
func (t *Transport) finish(pr *pendingRequest, payload json.RawMessage, err error) {
	requestsTotal.WithLabelValues(outcomeFor(err)).Inc()
	requestDuration.Observe(time.Since(pr.started).Seconds())

	if err != nil {
		if pr.opts.OnError != nil {
			pr.opts.OnError(err)
		}
		return
	}
	if pr.opts.OnSuccess != nil {
		pr.opts.OnSuccess(payload)
	}
}

// buildURL appends the callback parameter, and the cache-busting parameter
// when requested, to rawURL.
func buildURL(rawURL, callbackName string, cacheBust bool, now time.Time) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &LoadError{Callback: callbackName, Reason: ReasonInvalidURL, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &LoadError{Callback: callbackName, Reason: ReasonInvalidURL, Err: fmt.Errorf("url %q is not absolute", u.Redacted())}
	}
	if u.Query().Has(callbackParam) {
		return "", ErrCallbackParam
	}

	var b strings.Builder
	b.WriteString(rawURL)
	switch {
	case !strings.Contains(rawURL, "?"):
		b.WriteByte('?')
	case strings.HasSuffix(rawURL, "?"), strings.HasSuffix(rawURL, "&"):
	default:
		b.WriteByte('&')
	}
	b.WriteString(callbackParam)
	b.WriteByte('=')
	b.WriteString(callbackName)
	if cacheBust {
		b.WriteString("&" + cacheBustParam + "=")
		b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	}
	return b.String(), nil
}
