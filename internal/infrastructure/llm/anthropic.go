package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ArxivIntel/internal/config"
	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/ports"
)

const anthropicVersion = "2023-06-01"

// DefaultPrompt is used when no prompt file is configured.
const DefaultPrompt = `You are a competitive-intelligence analyst for a company that builds generative music products on licensed data.

Paper: {{title}}
Authors: {{authors}}
Categories: {{categories}}
Relevance score: {{score}}/10 (threat level {{threatLevel}})

Abstract:
{{abstract}}

In under 200 words, explain what the paper does, which data it relies on, and how it could affect a licensed-data music business. End with one line starting with "Action:".`

// AnthropicClient implements ports.Summarizer backed by the Anthropic Messages API.
type AnthropicClient struct {
	endpoint   string
	model      string
	apiKey     string
	maxTokens  int
	prompt     string
	limiter    *rate.Limiter
	httpClient *http.Client
}

var _ ports.Summarizer = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration, reading the prompt template
// from cfg.PromptPath when set.
func NewAnthropicClient(cfg config.AIConfig) (*AnthropicClient, error) {
	prompt := DefaultPrompt
	if cfg.PromptPath != "" {
		raw, err := os.ReadFile(cfg.PromptPath)
		if err != nil {
			return nil, fmt.Errorf("read prompt template: %w", err)
		}
		prompt = string(raw)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateLimit), 1)
	}

	return &AnthropicClient{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		maxTokens: maxTokens,
		prompt:    prompt,
		limiter:   limiter,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Summarize asks the model for a competitive-intelligence brief on the paper.
// Calls are spaced by the configured rate limit.
func (c *AnthropicClient) Summarize(ctx context.Context, paper domain.Paper) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return c.complete(ctx, RenderPrompt(c.prompt, paper), c.maxTokens)
}

// TestConnection sends a minimal request to verify credentials and model.
func (c *AnthropicClient) TestConnection(ctx context.Context) error {
	_, err := c.complete(ctx, `Say "API connection test successful" and nothing else.`, 50)
	return err
}

func (c *AnthropicClient) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c == nil {
		return "", fmt.Errorf("anthropic client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("anthropic client misconfigured")
	}

	body, err := json.Marshal(messageRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal anthropic payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("anthropic error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic response has no text content")
	}
	return text.String(), nil
}

// RenderPrompt fills the {{placeholders}} of a prompt template from the paper.
func RenderPrompt(template string, paper domain.Paper) string {
	score, threat := "N/A", "UNKNOWN"
	if paper.Scoring != nil {
		score = fmt.Sprintf("%.1f", paper.Scoring.Score)
		threat = string(paper.Scoring.ThreatLevel)
	}

	return strings.NewReplacer(
		"{{title}}", paper.Title,
		"{{authors}}", strings.Join(paper.Authors, ", "),
		"{{abstract}}", paper.Abstract,
		"{{categories}}", strings.Join(paper.Categories, ", "),
		"{{score}}", score,
		"{{threatLevel}}", threat,
	).Replace(template)
}
