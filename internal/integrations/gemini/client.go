// Package gemini adapts the Google Gen AI SDK to the tutor's text generator
// interface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-1.5-flash"

// KeySource resolves the Gemini API key.
type KeySource interface {
	Resolve(ctx context.Context) (string, error)
}

// modelsAPI is the subset of *genai.Models used by Client.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client generates text with a Gemini model. The underlying SDK client is
// created on the first request, after the API key has been resolved.
type Client struct {
	keys       KeySource
	model      string
	httpClient *http.Client
	newModels  func(ctx context.Context, cfg *genai.ClientConfig) (modelsAPI, error)

	mu     sync.Mutex
	models modelsAPI
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(model); v != "" {
			c.model = v
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(keys KeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("gemini: key source must not be nil")
	}
	c := &Client{
		keys:      keys,
		model:     DefaultModel,
		newModels: sdkModels,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func sdkModels(ctx context.Context, cfg *genai.ClientConfig) (modelsAPI, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

func (c *Client) initializeClientIfNeeded(ctx context.Context) (modelsAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.models != nil {
		return c.models, nil
	}

	apiKey, err := c.keys.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini: resolve api key: %w", err)
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	models, err := c.newModels(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.models = models
	return models, nil
}

// Generate sends prompt as a single user turn and returns the concatenated
// non-thought text parts of the response.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	models, err := c.initializeClientIfNeeded(ctx)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	result, err := models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := responseText(result)
	if text == "" {
		return "", errors.New("gemini: no text in response")
	}
	return text, nil
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// Hint maps a Gemini failure to an operator-facing suggestion. It returns ""
// when the error is not recognised.
func Hint(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API_KEY_INVALID"), strings.Contains(msg, "API key not valid"):
		return "The API key is invalid. Create a new key in Google AI Studio and update GEMINI_API_KEY."
	case strings.Contains(msg, "PERMISSION_DENIED"):
		return "The API key lacks permission for this model. Enable the Generative Language API for the key's project."
	case strings.Contains(msg, "QUOTA_EXCEEDED"), strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return "The quota for this key is exhausted. Wait for it to reset or check billing in Google AI Studio."
	case strings.Contains(msg, "no API key configured"):
		return "No API key found. Set GEMINI_API_KEY or store it under <PARAM_PREFIX>/gemini-api-key."
	default:
		return ""
	}
}
