package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// SDKGenerator produces completions through the Google GenAI SDK.
type SDKGenerator struct {
	client *genai.Client
	model  string
}

func NewSDKGenerator(ctx context.Context, apiKey, model string) (*SDKGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create sdk client: %w", err)
	}
	return &SDKGenerator{client: client, model: model}, nil
}

func (g *SDKGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", &APIError{Status: "BLOCKED", Message: blocked.Error()}
		}
		return "", fmt.Errorf("gemini: sdk generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoCandidates
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", ErrNoCandidates
	}
	return b.String(), nil
}

func (g *SDKGenerator) Close() error {
	return g.client.Close()
}
