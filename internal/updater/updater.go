// SPDX-License-Identifier: MIT

// Package updater keeps the cached bundle in sync with its remote source using
// conditional GETs. At most one run is in flight; a new trigger cancels the
// previous run and waits for it to unwind before starting.
package updater

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/bundled/internal/cache"
	"github.com/ManuGH/bundled/internal/config"
	xglog "github.com/ManuGH/bundled/internal/log"
	"github.com/ManuGH/bundled/internal/metrics"
	"github.com/ManuGH/bundled/internal/platform/httpx"
	xgnet "github.com/ManuGH/bundled/internal/platform/net"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ManuGH/bundled/internal/updater"

// Store is the part of the bundle cache the updater reads and writes.
type Store interface {
	Info() (cache.Info, error)
	ReplaceFrom(r io.Reader, token string) (int64, error)
}

// ConfigSource yields the current loader config; config.LoaderHolder implements it.
type ConfigSource interface {
	Get() config.LoaderConfig
}

// FailureSink receives the cause of every failed run.
type FailureSink interface {
	Fail(err error)
}

// StaticConfig is a ConfigSource that never changes.
type StaticConfig config.LoaderConfig

func (s StaticConfig) Get() config.LoaderConfig { return config.LoaderConfig(s) }

// Options configures an Updater.
type Options struct {
	DefaultURL  string
	UserAgent   string
	ColdTimeout time.Duration // no cached bundle yet
	WarmTimeout time.Duration // a cached bundle exists
	Client      *http.Client

	// OnUpdated runs after a user-triggered retry replaced the bundle.
	// It must not call back into the Updater.
	OnUpdated func(ctx context.Context, o Outcome)
	// OnFinished runs after every run, including failed and superseded ones.
	OnFinished func(ctx context.Context, o Outcome)
}

type job struct {
	id      string
	cancel  context.CancelCauseFunc
	done    chan struct{}
	outcome Outcome
}

// Updater performs conditional bundle fetches.
type Updater struct {
	store  Store
	cfg    ConfigSource
	sink   FailureSink
	opts   Options
	client *http.Client
	tracer trace.Tracer

	life   context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	closed bool
	job    *job

	lastMu sync.RWMutex
	last   Outcome
	lastAt time.Time
}

// New builds an Updater. sink may be nil.
func New(store Store, cfg ConfigSource, sink FailureSink, opts Options) *Updater {
	if opts.DefaultURL == "" {
		opts.DefaultURL = config.DefaultBundleURL
	}
	if opts.ColdTimeout <= 0 {
		opts.ColdTimeout = config.DefaultColdTimeout
	}
	if opts.WarmTimeout <= 0 {
		opts.WarmTimeout = config.DefaultWarmTimeout
	}
	client := opts.Client
	if client == nil {
		client = httpx.NewClient(httpx.Options{UserAgent: opts.UserAgent})
	}

	life, stop := context.WithCancel(context.Background())
	return &Updater{
		store:  store,
		cfg:    cfg,
		sink:   sink,
		opts:   opts,
		client: client,
		tracer: otel.Tracer(tracerName),
		life:   life,
		stop:   stop,
	}
}

// TimeoutFor returns the request timeout for a run given whether a bundle is cached.
func (u *Updater) TimeoutFor(hasBundle bool) time.Duration {
	if hasBundle {
		return u.opts.WarmTimeout
	}
	return u.opts.ColdTimeout
}

// Run performs one update cycle synchronously, superseding any in-flight run.
func (u *Updater) Run(ctx context.Context, userRetry bool) Outcome {
	j, jobCtx, err := u.begin(ctx)
	if err != nil {
		return Outcome{Kind: KindFailed, Err: err, UserRetry: userRetry}
	}
	defer close(j.done)
	defer j.cancel(nil)
	j.outcome = u.run(jobCtx, j.id, userRetry)
	return j.outcome
}

// Trigger starts an update cycle on the background worker and returns at once.
// Cancellation of ctx does not stop the run; only a newer trigger or Close does.
func (u *Updater) Trigger(ctx context.Context, userRetry bool) {
	j, jobCtx, err := u.begin(context.WithoutCancel(ctx))
	if err != nil {
		logger := xglog.WithComponentFromContext(ctx, "updater")
		logger.Debug().
			Err(err).
			Str(xglog.FieldEvent, "updater.trigger_rejected").
			Msg("update trigger ignored")
		return
	}
	go func() {
		defer close(j.done)
		defer j.cancel(nil)
		j.outcome = u.run(jobCtx, j.id, userRetry)
	}()
}

// begin cancels the outstanding job, waits for it, and installs a new one.
func (u *Updater) begin(parent context.Context) (*job, context.Context, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil, nil, ErrClosed
	}
	if prev := u.job; prev != nil {
		select {
		case <-prev.done:
		default:
			prev.cancel(ErrSuperseded)
			metrics.IncUpdateSuperseded()
			<-prev.done
		}
	}

	id := uuid.NewString()
	jobCtx, cancel := context.WithCancelCause(xglog.ContextWithJobID(parent, id))
	stopAfter := context.AfterFunc(u.life, func() { cancel(ErrClosed) })
	j := &job{
		id: id,
		cancel: func(cause error) {
			stopAfter()
			cancel(cause)
		},
		done: make(chan struct{}),
	}
	u.job = j
	return j, jobCtx, nil
}

// Wait blocks until the current run finishes and returns its outcome.
// ok is false when no run was ever started.
func (u *Updater) Wait(ctx context.Context) (Outcome, bool) {
	u.mu.Lock()
	j := u.job
	u.mu.Unlock()
	if j == nil {
		return Outcome{}, false
	}
	select {
	case <-j.done:
		return j.outcome, true
	case <-ctx.Done():
		return Outcome{Kind: KindFailed, Err: ctx.Err()}, false
	}
}

// Last returns the most recent finished outcome and when it finished.
func (u *Updater) Last() (Outcome, time.Time) {
	u.lastMu.RLock()
	defer u.lastMu.RUnlock()
	return u.last, u.lastAt
}

// Close cancels the in-flight run, waits for it and rejects further runs.
func (u *Updater) Close() {
	u.mu.Lock()
	u.closed = true
	j := u.job
	u.mu.Unlock()

	u.stop()
	if j != nil {
		<-j.done
	}
	u.client.CloseIdleConnections()
}

func (u *Updater) run(ctx context.Context, jobID string, userRetry bool) Outcome {
	start := time.Now()
	logger := xglog.WithComponentFromContext(ctx, "updater")

	ctx, span := u.tracer.Start(ctx, "updater.run", trace.WithAttributes(
		attribute.Bool("bundle.user_retry", userRetry),
		attribute.String("bundle.job_id", jobID),
	))
	defer span.End()

	out := Outcome{UserRetry: userRetry, JobID: jobID}
	out.URL = u.cfg.Get().SourceURL(u.opts.DefaultURL)

	info, err := u.store.Info()
	if err != nil {
		out = u.failed(ctx, out, err)
	} else {
		out.Timeout = u.TimeoutFor(info.HasBundle)
		out = u.fetch(ctx, out, info)
	}

	if out.Kind == KindFailed {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	span.SetAttributes(attribute.String("bundle.outcome", out.Kind.String()))
	out.Duration = time.Since(start)
	metrics.RecordUpdateRun(out.Kind.String(), out.Trigger(), out.Duration.Seconds())

	ev := logger.Info()
	if out.Kind == KindFailed {
		ev = logger.Error().Err(out.Err)
	}
	ev.Str(xglog.FieldEvent, "updater.finished").
		Str(xglog.FieldOutcome, out.Kind.String()).
		Str(xglog.FieldURL, xgnet.SanitizeURL(out.URL)).
		Int64(xglog.FieldBytes, out.Bytes).
		Dur(xglog.FieldTimeout, out.Timeout).
		Bool(xglog.FieldUserRetry, userRetry).
		Dur("duration", out.Duration).
		Msg("bundle update finished")

	u.lastMu.Lock()
	u.last, u.lastAt = out, time.Now()
	u.lastMu.Unlock()

	if out.Kind == KindUpdated && userRetry && u.opts.OnUpdated != nil {
		u.opts.OnUpdated(ctx, out)
	}
	if u.opts.OnFinished != nil {
		u.opts.OnFinished(context.WithoutCancel(ctx), out)
	}
	return out
}

func (u *Updater) fetch(ctx context.Context, out Outcome, info cache.Info) Outcome {
	logger := xglog.WithComponentFromContext(ctx, "updater")
	logger.Info().
		Str(xglog.FieldEvent, "updater.fetch").
		Str(xglog.FieldURL, xgnet.SanitizeURL(out.URL)).
		Bool("conditional", info.HasBundle && info.Token != "").
		Msg("fetching bundle")

	reqCtx, cancel := context.WithTimeout(ctx, out.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, out.URL, nil)
	if err != nil {
		return u.failed(ctx, out, &TransportError{URL: out.URL, Err: err})
	}
	if info.HasBundle && info.Token != "" {
		req.Header.Set("If-None-Match", info.Token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return u.failed(ctx, out, u.classify(ctx, reqCtx, &TransportError{URL: out.URL, Err: err}))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusNotModified:
		logger.Info().Str(xglog.FieldEvent, "updater.not_modified").Msg("server responded with 304, no changes")
		out.Kind = KindUnchanged
		return out

	case http.StatusOK:
		etag := resp.Header.Get("ETag")
		n, err := u.store.ReplaceFrom(resp.Body, etag)
		out.Bytes = n
		if err != nil {
			return u.failed(ctx, out, u.classify(ctx, reqCtx, err))
		}
		metrics.RecordBundleBytes(int(n))
		out.Kind = KindUpdated
		return out

	default:
		return u.failed(ctx, out, &StatusError{Code: resp.StatusCode, Status: resp.Status})
	}
}

// classify turns an error observed after the request timeout expired into ErrTimeout.
func (u *Updater) classify(jobCtx, reqCtx context.Context, err error) error {
	if jobCtx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}

// failed records a failed run. Runs that ended because the job itself was
// cancelled (superseded, closed) are not failures of the source and leave the
// sticky error alone.
func (u *Updater) failed(ctx context.Context, out Outcome, cause error) Outcome {
	out.Kind = KindFailed
	if ctx.Err() != nil {
		if c := context.Cause(ctx); c != nil {
			cause = errors.Join(c, cause)
		}
		out.Err = cause
		return out
	}
	out.Err = cause
	if u.sink != nil {
		u.sink.Fail(cause)
	}
	return out
}
