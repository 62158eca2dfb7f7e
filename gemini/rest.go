package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"
)

// Generator turns a prompt into completion text with a single call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// RESTGenerator calls the generateContent endpoint over plain HTTPS.
type RESTGenerator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type Option func(*RESTGenerator)

func WithBaseURL(baseURL string) Option {
	return func(g *RESTGenerator) {
		g.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithModel(model string) Option {
	return func(g *RESTGenerator) {
		g.model = strings.TrimSpace(model)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(g *RESTGenerator) {
		g.httpClient = httpClient
	}
}

func NewRESTGenerator(apiKey string, opts ...Option) (*RESTGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	g := &RESTGenerator{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	return g, nil
}

func generateURL(baseURL, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, model)
}

func (g *RESTGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, generateURL(g.baseURL, g.model), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	res, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: read response body: %w", err)
	}

	var payload generateResponse
	decErr := json.Unmarshal(raw, &payload)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode, Message: truncate(string(raw), 512)}
		if decErr == nil && payload.Error != nil {
			apiErr.Status = payload.Error.Status
			apiErr.Message = payload.Error.Message
		}
		return "", apiErr
	}
	if decErr != nil {
		return "", &DecodeError{Err: decErr}
	}
	if payload.Error != nil {
		return "", &APIError{StatusCode: payload.Error.Code, Status: payload.Error.Status, Message: payload.Error.Message}
	}
	if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
		return "", ErrNoCandidates
	}
	return payload.Candidates[0].Content.Parts[0].Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
