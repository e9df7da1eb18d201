package provider

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/pagetrail/bookcore/internal/apperr"
)

// throttledTransport rate-limits outbound requests per provider.
type throttledTransport struct {
	http.RoundTripper
	limiter *rate.Limiter
}

func (t throttledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(r.Context()); err != nil {
		return nil, err
	}
	return t.RoundTripper.RoundTrip(r)
}

// scopedTransport restricts requests to a particular host, so redirects
// can't send the request (and its credentials) elsewhere.
type scopedTransport struct {
	Host string
	http.RoundTripper
}

func (t scopedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.URL.Host = t.Host
	return t.RoundTripper.RoundTrip(r)
}

// headerTransport adds a header to every request. Used to attach the API
// key without ever logging it, and the configured User-Agent.
type headerTransport struct {
	Key   string
	Value string
	http.RoundTripper
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.Header.Add(t.Key, t.Value)
	return t.RoundTripper.RoundTrip(r)
}

// errorProxyTransport classifies non-2xx upstream responses into typed
// apperr errors so provider adapters never need to inspect a raw status
// code themselves.
type errorProxyTransport struct {
	http.RoundTripper
}

func (t errorProxyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.RoundTripper.RoundTrip(r)
	if err != nil {
		if ctxErr := r.Context().Err(); ctxErr != nil {
			return nil, apperr.Wrap(apperr.KindProviderTransient, "request timed out", ctxErr)
		}
		return nil, apperr.Wrap(apperr.KindProviderTransient, "network failure", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.New(apperr.KindProviderTransient, "rate limited")
	case resp.StatusCode >= 500:
		return nil, apperr.New(apperr.KindProviderTransient, "upstream server error")
	case resp.StatusCode >= 400:
		return nil, apperr.New(apperr.KindProviderPermanent, "upstream rejected request")
	}
	return resp, nil
}

// newHTTPClient builds the transport chain shared by both provider
// adapters: scope -> header -> throttle -> error classification.
func newHTTPClient(host, apiKeyHeader, apiKey, userAgent string, rps int) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport
	rt = scopedTransport{Host: host, RoundTripper: rt}
	if apiKeyHeader != "" && apiKey != "" {
		rt = &headerTransport{Key: apiKeyHeader, Value: apiKey, RoundTripper: rt}
	}
	rt = &headerTransport{Key: "User-Agent", Value: userAgent, RoundTripper: rt}
	if rps > 0 {
		rt = throttledTransport{RoundTripper: rt, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
	}
	rt = errorProxyTransport{RoundTripper: rt}
	return &http.Client{Transport: rt}
}
