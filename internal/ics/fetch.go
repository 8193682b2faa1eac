package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	appLog "timeaxis/internal/log"
)

// Source is one ICS feed. Its items land in the timeline group named by
// Group, or by ID when Group is empty.
type Source struct {
	ID    string `yaml:"id" json:"id" validate:"required"`
	URL   string `yaml:"url" json:"url" validate:"required,url"`
	Group string `yaml:"group,omitempty" json:"group,omitempty"`
}

// GroupName returns the timeline group for the source's items.
func (s Source) GroupName() string {
	if s.Group != "" {
		return s.Group
	}
	return s.ID
}

// FetchResult is the body of one feed.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool
}

type cached struct {
	etag         string
	lastModified string
	body         []byte
}

// Fetcher downloads feeds with conditional requests, keeping the last body
// per URL in memory and serving it on 304s and on failures.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]cached
}

// NewFetcher creates a Fetcher. A nil client gets a 15s timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cache: make(map[string]cached)}
}

// FetchAll fetches every source. Failed sources are logged and joined into
// the returned error; the results hold the rest.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, error) {
	results := make([]FetchResult, 0, len(sources))
	var failed []error
	for _, src := range sources {
		res, err := f.Fetch(ctx, src)
		if err != nil {
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			failed = append(failed, fmt.Errorf("%s: %w", src.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(failed...)
}

// Fetch downloads one source, sending If-None-Match and If-Modified-Since
// from the previous response.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	f.mu.Lock()
	prev, havePrev := f.cache[src.URL]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if prev.etag != "" {
		req.Header.Set("If-None-Match", prev.etag)
	}
	if prev.lastModified != "" {
		req.Header.Set("If-Modified-Since", prev.lastModified)
	}

	fallback := func(cause error) (FetchResult, error) {
		if !havePrev || len(prev.body) == 0 {
			return FetchResult{}, cause
		}
		appLog.Warn("ics fetch failed, serving cached body", "id", src.ID, "url", redactURL(src.URL), "err", cause.Error())
		return FetchResult{Source: src, Body: prev.body, FromCache: true}, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fallback(err)
		}
		f.mu.Lock()
		f.cache[src.URL] = cached{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		f.mu.Unlock()
		appLog.Debug("ics fetched", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil
	case http.StatusNotModified:
		if !havePrev {
			return FetchResult{}, errors.New("304 Not Modified without a cached body")
		}
		appLog.Debug("ics not modified", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: prev.body, FromCache: true}, nil
	default:
		return fallback(errors.New(resp.Status))
	}
}

// redactURL keeps scheme and host only; feed paths often carry tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
