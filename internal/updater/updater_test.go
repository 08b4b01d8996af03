// SPDX-License-Identifier: MIT

package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/bundled/internal/cache"
	"github.com/ManuGH/bundled/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *recordingSink) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	dir := t.TempDir()
	return cache.New(filepath.Join(dir, "bundle.js"), filepath.Join(dir, "etag.txt"))
}

func newUpdater(t *testing.T, store *cache.Store, url string, sink FailureSink, opts Options) *Updater {
	t.Helper()
	opts.DefaultURL = url
	u := New(store, StaticConfig{}, sink, opts)
	t.Cleanup(u.Close)
	return u
}

func TestRun_NotModifiedKeepsCache(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Replace([]byte("cached"), `"t1"`))

	var gotINM string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotINM = r.Header.Get("If-None-Match")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	u := newUpdater(t, store, srv.URL, sink, Options{})

	out := u.Run(context.Background(), false)
	assert.Equal(t, KindUnchanged, out.Kind)
	assert.Equal(t, `"t1"`, gotINM)
	assert.Zero(t, sink.count())

	e, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), e.Bundle)
	assert.Equal(t, `"t1"`, e.Token)
}

func TestRun_OKReplacesBundleAndToken(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Replace([]byte("old"), `"t1"`))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("ETag", `"t2"`)
		_, _ = w.Write([]byte("new bundle body"))
	}))
	defer srv.Close()

	u := newUpdater(t, store, srv.URL, &recordingSink{}, Options{})
	out := u.Run(context.Background(), false)
	require.Equal(t, KindUpdated, out.Kind, "err: %v", out.Err)
	assert.EqualValues(t, len("new bundle body"), out.Bytes)

	e, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("new bundle body"), e.Bundle)
	assert.Equal(t, `"t2"`, e.Token)
}

func TestRun_OKWithoutETagDropsToken(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Replace([]byte("old"), `"t1"`))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("untagged"))
	}))
	defer srv.Close()

	u := newUpdater(t, store, srv.URL, nil, Options{})
	require.Equal(t, KindUpdated, u.Run(context.Background(), false).Kind)

	e, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("untagged"), e.Bundle)
	assert.False(t, e.HasToken)
}

func TestRun_NoTokenMeansUnconditionalFetch(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Replace([]byte("old"), ""))

	var sawINM atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawINM.Store(r.Header.Get("If-None-Match") != "")
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	u := newUpdater(t, store, srv.URL, nil, Options{})
	require.Equal(t, KindUpdated, u.Run(context.Background(), false).Kind)
	assert.False(t, sawINM.Load())
}

func TestRun_UnexpectedStatusFailsAndPreservesCache(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Replace([]byte("last good"), `"t1"`))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	u := newUpdater(t, store, srv.URL, sink, Options{})
	out := u.Run(context.Background(), false)

	require.Equal(t, KindFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrUnexpectedStatus)
	var se *StatusError
	require.ErrorAs(t, out.Err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, 1, sink.count())

	e, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("last good"), e.Bundle)
	assert.Equal(t, `"t1"`, e.Token)
}

func TestRun_TransportFailureSetsSticky(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sink := &recordingSink{}
	u := newUpdater(t, newStore(t), url, sink, Options{})
	out := u.Run(context.Background(), true)

	require.Equal(t, KindFailed, out.Kind)
	var te *TransportError
	assert.ErrorAs(t, out.Err, &te)
	assert.Equal(t, 1, sink.count())
}

func TestTimeoutFor(t *testing.T) {
	u := New(newStore(t), StaticConfig{}, nil, Options{})
	defer u.Close()
	assert.Equal(t, config.DefaultColdTimeout, u.TimeoutFor(false))
	assert.Equal(t, config.DefaultWarmTimeout, u.TimeoutFor(true))
	assert.Greater(t, u.TimeoutFor(false), u.TimeoutFor(true))
}

func TestRun_TimeoutTiering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte("slow body"))
	}))
	defer srv.Close()

	opts := Options{ColdTimeout: 5 * time.Second, WarmTimeout: 50 * time.Millisecond}

	t.Run("cold cache uses the long timeout", func(t *testing.T) {
		store := newStore(t)
		u := newUpdater(t, store, srv.URL, &recordingSink{}, opts)
		out := u.Run(context.Background(), true)
		assert.Equal(t, opts.ColdTimeout, out.Timeout)
		assert.Equal(t, KindUpdated, out.Kind, "err: %v", out.Err)
	})

	t.Run("warm cache uses the short timeout", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Replace([]byte("cached"), ""))
		sink := &recordingSink{}
		u := newUpdater(t, store, srv.URL, sink, opts)
		out := u.Run(context.Background(), true)
		assert.Equal(t, opts.WarmTimeout, out.Timeout)
		require.Equal(t, KindFailed, out.Kind)
		assert.ErrorIs(t, out.Err, ErrTimeout)
		assert.Equal(t, 1, sink.count())

		e, err := store.Read()
		require.NoError(t, err)
		assert.Equal(t, []byte("cached"), e.Bundle)
	})
}

func TestRun_UsesCustomSourceWhenEnabled(t *testing.T) {
	var defaultHits, customHits atomic.Int32
	def := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		defaultHits.Add(1)
		_, _ = w.Write([]byte("default"))
	}))
	defer def.Close()
	custom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		customHits.Add(1)
		_, _ = w.Write([]byte("custom"))
	}))
	defer custom.Close()

	store := newStore(t)
	cfg := StaticConfig{CustomLoadURL: config.CustomLoadURL{Enabled: true, URL: custom.URL}}
	u := New(store, cfg, nil, Options{DefaultURL: def.URL})
	defer u.Close()

	out := u.Run(context.Background(), false)
	require.Equal(t, KindUpdated, out.Kind)
	assert.Equal(t, custom.URL, out.URL)
	assert.EqualValues(t, 1, customHits.Load())
	assert.EqualValues(t, 0, defaultHits.Load())
}

func TestTrigger_SupersedesInFlightRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	firstStarted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(firstStarted)
			<-r.Context().Done()
			return
		}
		w.Header().Set("ETag", `"second"`)
		_, _ = w.Write([]byte("second"))
	}))
	defer srv.Close()

	store := newStore(t)
	sink := &recordingSink{}
	u := New(store, StaticConfig{}, sink, Options{DefaultURL: srv.URL})
	defer u.Close()

	u.Trigger(context.Background(), false)
	<-firstStarted
	u.Trigger(context.Background(), true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, ok := u.Wait(ctx)
	require.True(t, ok)
	require.Equal(t, KindUpdated, out.Kind, "err: %v", out.Err)
	assert.True(t, out.UserRetry)
	assert.Zero(t, sink.count(), "a superseded run is not a source failure")

	e, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), e.Bundle)
	assert.Equal(t, `"second"`, e.Token)
}

func TestTrigger_SurvivesCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	u := newUpdater(t, newStore(t), srv.URL, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	u.Trigger(ctx, false)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	out, ok := u.Wait(waitCtx)
	require.True(t, ok)
	assert.Equal(t, KindUpdated, out.Kind, "err: %v", out.Err)
}

func TestRun_OnUpdatedHookOnlyForRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	var hooked atomic.Int32
	u := newUpdater(t, newStore(t), srv.URL, nil, Options{
		OnUpdated: func(context.Context, Outcome) { hooked.Add(1) },
	})

	require.Equal(t, KindUpdated, u.Run(context.Background(), false).Kind)
	assert.EqualValues(t, 0, hooked.Load())
	require.Equal(t, KindUpdated, u.Run(context.Background(), true).Kind)
	assert.EqualValues(t, 1, hooked.Load())
}

func TestRun_OnFinishedSeesEveryOutcome(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	var got []Outcome
	u := newUpdater(t, newStore(t), srv.URL, nil, Options{
		OnFinished: func(_ context.Context, o Outcome) { got = append(got, o) },
	})

	u.Run(context.Background(), false)
	u.Run(context.Background(), true)
	require.Len(t, got, 2)
	assert.Equal(t, KindFailed, got[0].Kind)
	assert.Equal(t, "load", got[0].Trigger())
	assert.Equal(t, KindUpdated, got[1].Kind)
	assert.Equal(t, "retry", got[1].Trigger())
	assert.Positive(t, got[1].Duration)
}

func TestClose_RejectsFurtherRuns(t *testing.T) {
	sink := &recordingSink{}
	u := New(newStore(t), StaticConfig{}, sink, Options{DefaultURL: "http://127.0.0.1:1"})
	u.Close()

	out := u.Run(context.Background(), true)
	assert.Equal(t, KindFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrClosed)
	assert.Zero(t, sink.count())
}

func TestWait_NoRun(t *testing.T) {
	u := New(newStore(t), StaticConfig{}, nil, Options{})
	defer u.Close()
	_, ok := u.Wait(context.Background())
	assert.False(t, ok)
}
