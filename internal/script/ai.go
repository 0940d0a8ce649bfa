package script

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/tourcast/tourcast/internal/types"
)

// AIClient wraps the Gemini SDK behind the small surface the generator
// needs.
type AIClient struct {
	client *genai.Client
	model  string
}

func NewAIClient(ctx context.Context, model string) (*AIClient, error) {
	apiKey := os.Getenv("GOOGLE_GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_GEMINI_API_KEY environment variable is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &AIClient{client: client, model: model}, nil
}

// GenerateContent runs one prompt through the model and returns its text.
// SDK failures are classified transient; the caller's backoff decides how
// often to retry.
func (ai *AIClient) GenerateContent(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	result, err := ai.client.Models.GenerateContent(ctx, ai.model, genai.Text(prompt), config)
	if err != nil {
		return "", &types.TransientExternalError{Provider: "gemini", Err: err}
	}
	return result.Text(), nil
}
