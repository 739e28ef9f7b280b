// Package gemini implements llm.Provider on the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/user/fairweather/pkg/llm"
)

const DefaultModel = "gemini-2.0-flash"

type Client struct {
	config *llm.Config
	client *genai.Client
}

// New creates a Gemini API client. BaseURL is only needed to point at a
// proxy or a test server.
func New(ctx context.Context, config *llm.Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Client{config: config, client: client}, nil
}

// Complete folds system messages into the system instruction and sends the
// rest as the conversation.
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, errors.New("gemini: no user content")
	}

	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if c.config.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.config.MaxTokens)
	}
	if c.config.Temperature != 0 {
		temp := c.config.Temperature
		cfg.Temperature = &temp
	}
	if c.config.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	model := c.config.Model
	if model == "" {
		model = DefaultModel
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, errors.New("gemini: empty response")
	}

	out := &llm.Response{Content: text}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out, nil
}
