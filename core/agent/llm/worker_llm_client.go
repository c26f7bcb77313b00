package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"leadestate_server/core/port/out"
	"leadestate_server/pkg/apperr"
	"leadestate_server/pkg/resilience"
)

// chatCompleter is the slice of the OpenAI client we use.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	api         chatCompleter
	model       string
	maxTokens   int
	temperature float32
	guard       *resilience.Guard
	usage       *UsageTracker
}

type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration // per attempt
	MaxRetries  int
}

const DefaultModel = "gpt-4o-mini"

var (
	_ out.LeadClassifier    = (*Client)(nil)
	_ out.IntentClassifier  = (*Client)(nil)
	_ out.PropertyExtractor = (*Client)(nil)
	_ out.ReplyGenerator    = (*Client)(nil)
)

func NewClientWithConfig(cfg ClientConfig) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	guardCfg := resilience.DefaultGuardConfig("openai")
	if cfg.Timeout > 0 {
		guardCfg.CallTimeout = cfg.Timeout
	}
	if cfg.MaxRetries >= 0 {
		guardCfg.MaxRetries = cfg.MaxRetries
	}

	return newClient(openai.NewClientWithConfig(oc), cfg, resilience.NewGuard(guardCfg))
}

func newClient(api chatCompleter, cfg ClientConfig, guard *resilience.Guard) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	return &Client{
		api:         api,
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		guard:       guard,
		usage:       NewUsageTracker(),
	}
}

// Usage returns token accounting for this client.
func (c *Client) Usage() *UsageTracker {
	return c.usage
}

// BreakerState reports the circuit state.
func (c *Client) BreakerState() string {
	return c.guard.State()
}

// CompleteWithSystem runs a plain text completion.
func (c *Client) CompleteWithSystem(ctx context.Context, op, systemPrompt, userPrompt string) (string, error) {
	return c.chat(ctx, op, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: c.temperature,
	})
}

// CompleteJSON runs a completion in JSON mode and decodes it into v.
func (c *Client) CompleteJSON(ctx context.Context, op, systemPrompt, userPrompt string, v any) error {
	resp, err := c.chat(ctx, op, openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(trimJSONFence(resp)), v); err != nil {
		return apperr.OracleError(op, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func (c *Client) chat(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	req.Model = c.model
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}

	var content string
	err := c.guard.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return classifyAPIError(err)
		}
		c.usage.Track(op, c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		if len(resp.Choices) == 0 {
			return errEmptyCompletion
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return "", apperr.Timeout("openai " + op).WithError(err)
	}
	if err != nil {
		return "", apperr.OracleError(op, err)
	}
	return content, nil
}

var errEmptyCompletion = errors.New("empty completion")

// classifyAPIError stops retries for client errors other than 408 and 429.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return resilience.Permanent(err)
		}
	}
	return err
}

func trimJSONFence(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}

func truncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}
