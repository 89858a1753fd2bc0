// Package cdn notifies edge caches that a published path changed.
package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cms-article-engine/internal/models"
	"github.com/rs/zerolog"
)

// Notifier is told about every publish; failures are reported, never fatal
type Notifier interface {
	Notify(ctx context.Context, articleNumber int, urlPath string) []models.PurgeResult
}

// NopNotifier is used when no CDN is configured
type NopNotifier struct{}

// Notify does nothing
func (NopNotifier) Notify(ctx context.Context, articleNumber int, urlPath string) []models.PurgeResult {
	return nil
}

// Endpoint is one purge webhook
type Endpoint struct {
	Name  string
	URL   string
	Token string
}

// purgeRequest is the JSON body posted to every endpoint
type purgeRequest struct {
	ArticleNumber int      `json:"article_number"`
	Paths         []string `json:"paths"`
}

// HTTPNotifier posts purge requests to a list of webhook endpoints
type HTTPNotifier struct {
	endpoints []Endpoint
	client    *http.Client
	log       zerolog.Logger
}

// NewHTTPNotifier creates a notifier with a bounded per-request timeout
func NewHTTPNotifier(endpoints []Endpoint, timeout time.Duration, log zerolog.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
		log:       log.With().Str("component", "cdn").Logger(),
	}
}

// Notify purges the page path (and "/" for the home page) on every endpoint
func (n *HTTPNotifier) Notify(ctx context.Context, articleNumber int, urlPath string) []models.PurgeResult {
	paths := PurgePaths(urlPath)
	results := make([]models.PurgeResult, 0, len(n.endpoints))

	for _, ep := range n.endpoints {
		result := n.purge(ctx, ep, purgeRequest{ArticleNumber: articleNumber, Paths: paths})
		if !result.Success {
			n.log.Warn().
				Str("provider", ep.Name).
				Int("article_number", articleNumber).
				Str("message", result.Message).
				Msg("CDN purge failed")
		}
		results = append(results, result)
	}
	return results
}

func (n *HTTPNotifier) purge(ctx context.Context, ep Endpoint, body purgeRequest) models.PurgeResult {
	result := models.PurgeResult{Provider: ep.Name, Paths: body.Paths}

	payload, err := json.Marshal(body)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		result.Message = fmt.Sprintf("failed to create request: %v", err)
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ep.Token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		result.Message = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	result.Message = resp.Status
	return result
}

// PurgePaths returns the public paths to purge for an article path
func PurgePaths(urlPath string) []string {
	if urlPath == "" || urlPath == models.RootPath {
		return []string{"/"}
	}
	return []string{"/" + urlPath}
}

// ParseEndpoints reads "name=url" pairs; every endpoint shares token
func ParseEndpoints(pairs []string, token string) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid purge endpoint %q, want name=url", pair)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid purge endpoint url %q", raw)
		}
		endpoints = append(endpoints, Endpoint{Name: name, URL: raw, Token: token})
	}
	return endpoints, nil
}
