package httpx

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultDialTimeout           = 3 * time.Second
	defaultUnboundedDialTimeout  = 10 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4
	defaultMaxRedirects          = 10
)

// Options configures NewClient.
type Options struct {
	// Timeout bounds the whole exchange. Zero leaves the bound to the request context.
	Timeout time.Duration
	// UserAgent is set on every request that does not carry one.
	UserAgent string
	// MaxRedirects caps followed redirects (default 10).
	MaxRedirects int
}

// NewClient returns a hardened, traced HTTP client.
func NewClient(opts Options) *http.Client {
	dialTimeout := defaultUnboundedDialTimeout
	var responseHeaderTimeout time.Duration
	if opts.Timeout > 0 {
		dialTimeout = min(opts.Timeout, defaultDialTimeout)
		responseHeaderTimeout = min(opts.Timeout, defaultResponseHeaderTimeout)
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}

	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}

	var rt http.RoundTripper = otelhttp.NewTransport(base)
	if opts.UserAgent != "" {
		rt = &userAgentTransport{next: rt, agent: opts.UserAgent}
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

type userAgentTransport struct {
	next  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(clone)
}

func (t *userAgentTransport) CloseIdleConnections() {
	if c, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
