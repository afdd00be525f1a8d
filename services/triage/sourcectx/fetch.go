// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sourcectx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// maxFetchBytes caps the streamed response body. The read is aborted
	// mid-stream once the cap is exceeded, never buffered whole first.
	maxFetchBytes = 256 << 10

	// fetchRatePerSecond and fetchBurst bound outbound request rate per
	// pass so a frame-heavy dump cannot hammer a provider.
	fetchRatePerSecond = 8
	fetchBurst         = 4
)

// azureItemEnvelope is the JSON wrapper the Azure DevOps Items API puts
// around file content.
type azureItemEnvelope struct {
	Content string `json:"content"`
}

// Fetcher performs bounded, cancellable HTTPS GETs for validated URLs and
// caches bodies for the lifetime of one enrichment pass.
//
// Description:
//
//	A Fetcher only ever accepts a ValidatedURL, so every request it
//	issues targets an allowlisted host over https. Redirect following
//	is disabled; if a custom transport follows one anyway, the final
//	URL is re-run through full validation before the body is trusted.
//	The per-URL cache is write-once read-many, and concurrent requests
//	for the same URL are coalesced into a single network call.
//
// Thread Safety:
//
//	Fetcher is safe for concurrent use within one pass.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]string
}

// NewFetcher creates a per-pass fetcher.
//
// Inputs:
//
//	transport - RoundTripper to issue requests with. If nil, uses
//	            http.DefaultTransport. Tests inject fakes here.
//	logger - Logger for fetch events. If nil, uses slog.Default().
func NewFetcher(transport http.RoundTripper, logger *slog.Logger) *Fetcher {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: rate.NewLimiter(rate.Limit(fetchRatePerSecond), fetchBurst),
		logger:  logger.With(slog.String("component", "source_fetcher")),
		cache:   make(map[string]string),
	}
}

// Fetch returns the text behind a validated URL, from cache when the URL
// was already fetched this pass.
//
// Outputs:
//
//	string - The effective text (Azure envelopes are unwrapped).
//	error - ErrFetchFailed (wrapped) with the failure classification.
func (f *Fetcher) Fetch(ctx context.Context, target *ValidatedURL) (string, error) {
	key := target.String()

	f.mu.RLock()
	text, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		recordCacheHit(ctx)
		return text, nil
	}

	result, err, _ := f.group.Do(key, func() (any, error) {
		// A coalesced caller may land here after the winner populated
		// the cache.
		f.mu.RLock()
		cached, ok := f.cache[key]
		f.mu.RUnlock()
		if ok {
			return cached, nil
		}

		body, err := f.fetchOnce(ctx, target)
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		f.cache[key] = body
		f.mu.Unlock()
		return body, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// fetchOnce performs the single network call for a URL.
func (f *Fetcher) fetchOnce(ctx context.Context, target *ValidatedURL) (string, error) {
	start := time.Now()
	var fetchErr error
	defer func() { recordFetch(ctx, target.Provider, start, fetchErr) }()

	if err := f.limiter.Wait(ctx); err != nil {
		fetchErr = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		return "", fetchErr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		fetchErr = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		return "", fetchErr
	}
	req.Header.Set("Accept", "text/plain, application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		fetchErr = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		return "", fetchErr
	}
	defer resp.Body.Close()

	// An injected transport may ignore the request context. The pass
	// deadline still binds: a fetch that outlived it fails regardless of
	// what the transport returned.
	if err := ctx.Err(); err != nil {
		fetchErr = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		return "", fetchErr
	}

	// Redirect following is off, so a 3xx surfaces here as a non-success
	// status. A custom transport may still have followed one; in that
	// case the final URL must pass validation again before the body is
	// trusted.
	finalURL := resp.Request.URL
	if finalURL != nil && finalURL.String() != target.String() {
		if err := revalidate(finalURL); err != nil {
			fetchErr = fmt.Errorf("%w: redirect target rejected", ErrFetchFailed)
			return "", fetchErr
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fetchErr = fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
		return "", fetchErr
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !allowedMediaType(mediaType) {
		fetchErr = fmt.Errorf("%w: content type %q", ErrFetchFailed,
			resp.Header.Get("Content-Type"))
		return "", fetchErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		fetchErr = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		return "", fetchErr
	}
	if len(body) > maxFetchBytes {
		fetchErr = fmt.Errorf("%w: body exceeds %d bytes", ErrFetchFailed, maxFetchBytes)
		return "", fetchErr
	}

	text := string(body)
	if target.Provider == ProviderAzure && isJSONMediaType(mediaType) {
		text = unwrapAzureContent(text)
	}

	f.logger.Debug("fetched source",
		"url", target.String(), "bytes", len(body), "status", resp.StatusCode)
	return text, nil
}

// allowedMediaType implements the content-type policy: text/* except
// text/html, application/json, and structured +json/+xml types.
func allowedMediaType(mediaType string) bool {
	switch {
	case mediaType == "text/html":
		return false
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json":
		return true
	case strings.HasSuffix(mediaType, "+json"), strings.HasSuffix(mediaType, "+xml"):
		return true
	default:
		return false
	}
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// unwrapAzureContent extracts the content field from an Items API
// envelope, falling back to the raw body when the envelope does not
// parse.
func unwrapAzureContent(body string) string {
	var envelope azureItemEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil || envelope.Content == "" {
		return body
	}
	return envelope.Content
}
