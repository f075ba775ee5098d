// Package ai is the Anthropic-backed text-generation client used for refactoring.
package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	// ModelSonnet is the default model for refactoring and self-healing
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// DefaultMaxTokens bounds one response
	DefaultMaxTokens = 4096
)

// GetDefaultModel returns the default model, checking MOHTION_MODEL first
func GetDefaultModel() string {
	if model := os.Getenv("MOHTION_MODEL"); model != "" {
		return model
	}
	return ModelSonnet
}

// Config holds client configuration
type Config struct {
	APIKey    string // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model     string // Model to use (default: GetDefaultModel())
	MaxTokens int    // Default: 4096
	BaseURL   string // Optional API endpoint override
	Retry     RetryConfig
	Logger    logrus.FieldLogger
}

// Usage is the token accounting of one call
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
}

// Client generates text through the Anthropic Messages API, with retries,
// a circuit breaker and a process-wide concurrency limit
type Client struct {
	api            anthropic.Client
	model          string
	maxTokens      int
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	log            logrus.FieldLogger
}

// NewClient creates a new text-generation client
func NewClient(cfg *Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialBackoff == 0 {
		retry = DefaultRetryConfig()
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{"component": "ai", "model": model})

	// retries are ours, not the SDK's, so the circuit breaker sees every failure
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &Client{
		api:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		retry:     retry,
		log:       log,
	}
	if retry.CircuitBreakerEnabled {
		c.circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout, log)
	}
	if retry.MaxConcurrentCalls > 0 {
		c.concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}
	return c, nil
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Generate sends one prompt and returns the concatenated text of the response
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	text, _, err := c.GenerateWithUsage(ctx, prompt)
	return text, err
}

// GenerateWithUsage is Generate plus token accounting
func (c *Client) GenerateWithUsage(ctx context.Context, prompt string) (string, Usage, error) {
	start := time.Now()

	var response *anthropic.Message
	err := c.retryWithBackoff(ctx, "generate", func(attemptCtx context.Context) error {
		resp, apiErr := c.api.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: int64(c.maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	usage := Usage{
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		Duration:     time.Since(start),
	}
	c.log.WithFields(logrus.Fields{
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
		"duration":      usage.Duration,
		"stop_reason":   string(response.StopReason),
	}).Info("generation complete")

	return text.String(), usage, nil
}
