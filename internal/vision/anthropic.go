package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AnthropicClient is a minimal messages-API client. It serves both the
// identity extractors here and the narrative report writer.
type AnthropicClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewAnthropicClient validates the key and returns a client.
func NewAnthropicClient(apiKey, baseURL string, timeout time.Duration) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type messageContent struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Source *messageImage `json:"source,omitempty"`
}

type messageImage struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type message struct {
	Role    string           `json:"role"`
	Content []messageContent `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a text-only prompt and returns the joined text blocks.
func (c *AnthropicClient) Complete(ctx context.Context, model string, maxTokens int, prompt string) (string, error) {
	return c.send(ctx, messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []message{{
			Role:    "user",
			Content: []messageContent{{Type: "text", Text: prompt}},
		}},
	})
}

// CompleteWithImage sends a JPEG image followed by a text prompt.
func (c *AnthropicClient) CompleteWithImage(ctx context.Context, model string, maxTokens int, prompt string, imageJPEG []byte) (string, error) {
	if len(imageJPEG) == 0 {
		return "", fmt.Errorf("image bytes required")
	}
	return c.send(ctx, messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []message{{
			Role: "user",
			Content: []messageContent{
				{
					Type: "image",
					Source: &messageImage{
						Type:      "base64",
						MediaType: "image/jpeg",
						Data:      base64.StdEncoding.EncodeToString(imageJPEG),
					},
				},
				{Type: "text", Text: prompt},
			},
		}},
	})
}

func (c *AnthropicClient) send(ctx context.Context, reqBody messagesRequest) (string, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, string(raw))
	}

	var mr messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if mr.Error != nil {
		return "", fmt.Errorf("anthropic error %s: %s", mr.Error.Type, mr.Error.Message)
	}

	var sb strings.Builder
	for _, block := range mr.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return sb.String(), nil
}
