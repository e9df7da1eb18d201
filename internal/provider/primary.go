package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/model"
	"github.com/pagetrail/bookcore/internal/normalize"
)

// PrimaryProvider issues Google-Books-shaped GET requests: ?q= with
// intitle:/inauthor:/isbn: prefixes, pagination via startIndex/maxResults.
type PrimaryProvider struct {
	cfg    Config
	client *http.Client
}

// NewPrimaryProvider builds a PrimaryProvider bound to cfg.BaseURL's host.
func NewPrimaryProvider(cfg Config) *PrimaryProvider {
	host := cfg.BaseURL
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return &PrimaryProvider{
		cfg:    cfg,
		client: newHTTPClient(host, "X-Api-Key", cfg.APIKey, cfg.UserAgent, cfg.RPS),
	}
}

func (p *PrimaryProvider) Name() string { return "primary" }

func (p *PrimaryProvider) Search(ctx context.Context, q Query) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, CallDeadline)
	defer cancel()

	query := q.Text
	switch q.Type {
	case SearchTitle:
		query = "intitle:" + q.Text
	case SearchAuthor:
		query = "inauthor:" + q.Text
	case SearchISBN:
		query = "isbn:" + q.Text
	}

	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindProviderPermanent, "invalid base URL", err)
	}
	qs := u.Query()
	qs.Set("q", query)
	qs.Set("startIndex", strconv.Itoa(q.Offset))
	qs.Set("maxResults", strconv.Itoa(q.Limit))
	u.RawQuery = qs.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindProviderPermanent, "building request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Response{}, classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindProviderTransient, "reading response body", err)
	}

	doc, err := oj.Parse(body)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindProviderPermanent, "malformed response JSON", err)
	}

	items, _ := jp.ParseString("$.items[*]")
	raw := make([][]byte, 0)
	for _, item := range items.Get(doc) {
		b, err := sonic.Marshal(item)
		if err != nil {
			continue
		}
		raw = append(raw, b)
	}

	normalized, _ := normalizeAll("primary", raw)
	return Response{RawResults: raw, NormalizedResults: normalized}, nil
}

func (p *PrimaryProvider) Hydrate(ctx context.Context, providerID string) (model.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, CallDeadline)
	defer cancel()

	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return model.SearchResult{}, apperr.Wrap(apperr.KindProviderPermanent, "invalid base URL", err)
	}
	u.Path = fmt.Sprintf("%s/%s", trimTrailingSlash(u.Path), providerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.SearchResult{}, apperr.Wrap(apperr.KindProviderPermanent, "building request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return model.SearchResult{}, classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.SearchResult{}, apperr.Wrap(apperr.KindProviderTransient, "reading response body", err)
	}

	return normalize.Normalize("primary", body)
}

func trimTrailingSlash(p string) string {
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}

func classifyTransportErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperr.Wrap(apperr.KindProviderTransient, "request deadline exceeded", ctx.Err())
	}
	// errorProxyTransport has already classified HTTP-level failures; a
	// bare transport error reaching here is a network failure.
	if ae, ok := asAppErr(err); ok {
		return ae
	}
	return apperr.Wrap(apperr.KindProviderTransient, "network failure", err)
}

func asAppErr(err error) (*apperr.Error, bool) {
	var e *apperr.Error
	ok := errors.As(err, &e)
	return e, ok
}
