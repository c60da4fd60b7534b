// Package gemini implements the router's ModelCaller on the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client wraps one genai client shared across both model tiers.
type Client struct {
	client *genai.Client
}

// NewClient creates a Gemini client with the given API key.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{client: client}, nil
}

// Generate sends one document plus prompt to the named model and returns
// the response text. JSON output is requested at the API level; parsing is
// the caller's concern.
func (c *Client) Generate(ctx context.Context, modelName string, data []byte, mimeType, prompt string) (string, error) {
	genModel := c.client.GenerativeModel(modelName)
	genModel.GenerationConfig.ResponseMIMEType = "application/json"

	resp, err := genModel.GenerateContent(ctx, blobPart(data, mimeType), genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini call failed (%s): %w", modelName, err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from gemini (%s)", modelName)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from gemini (%s)", modelName)
	}

	if txt, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return string(txt), nil
	}
	return "", fmt.Errorf("unexpected response part type from gemini (%s)", modelName)
}

// blobPart wraps document bytes for the API. PDFs must go as a generic
// blob; images go through the image helper.
func blobPart(data []byte, mimeType string) genai.Part {
	if mimeType == "application/pdf" {
		return genai.Blob{MIMEType: mimeType, Data: data}
	}
	format := strings.TrimPrefix(mimeType, "image/")
	return genai.ImageData(format, data)
}

// Close releases the underlying genai client.
func (c *Client) Close() error {
	return c.client.Close()
}
