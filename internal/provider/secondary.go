package provider

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/model"
)

// SecondaryProvider issues OpenLibrary-shaped GET requests: title/author/isbn
// query params against a search endpoint, page/limit pagination.
type SecondaryProvider struct {
	cfg    Config
	client *http.Client
}

// NewSecondaryProvider builds a SecondaryProvider bound to cfg.BaseURL's host.
func NewSecondaryProvider(cfg Config) *SecondaryProvider {
	host := cfg.BaseURL
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return &SecondaryProvider{
		cfg:    cfg,
		client: newHTTPClient(host, "", "", cfg.UserAgent, cfg.RPS),
	}
}

func (p *SecondaryProvider) Name() string { return "secondary" }

func (p *SecondaryProvider) Search(ctx context.Context, q Query) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, CallDeadline)
	defer cancel()

	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.KindProviderPermanent, "invalid base URL", err)
	}
	qs := u.Query()
	switch q.Type {
	case SearchTitle:
		qs.Set("title", q.Text)
	case SearchAuthor:
		qs.Set("author", q.Text)
	case SearchISBN:
		qs.Set("isbn", q.Text)
	default:
		qs.Set("q", q.Text)
	}
	qs.Set("page", pageOf(q.Offset, q.Limit))
	qs.Set("limit", strconv.Itoa(q.Limit))
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

	docs, _ := jp.ParseString("$.docs[*]")
	raw := make([][]byte, 0)
	for _, item := range docs.Get(doc) {
		b, err := sonic.Marshal(item)
		if err != nil {
			continue
		}
		raw = append(raw, b)
	}

	normalized, _ := normalizeAll("secondary", raw)
	return Response{RawResults: raw, NormalizedResults: normalized}, nil
}

// Hydrate is not supported by the secondary provider: its works API does not
// expose a single-record fetch shaped like the normalizer expects.
func (p *SecondaryProvider) Hydrate(ctx context.Context, providerID string) (model.SearchResult, error) {
	return model.SearchResult{}, apperr.New(apperr.KindProviderPermanent, "secondary provider does not support hydrate")
}

func pageOf(offset, limit int) string {
	if limit <= 0 {
		limit = 1
	}
	return strconv.Itoa(offset/limit + 1)
}
