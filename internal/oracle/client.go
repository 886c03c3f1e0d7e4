package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"procura/internal/config"
)

// modelCaller issues a single generation request against one named model.
type modelCaller interface {
	generate(ctx context.Context, model, prompt string) (string, error)
}

// Client fans a prompt over an ordered chain of Gemini models. Any error on a
// model, quota or otherwise, advances to the next one; only when the whole
// chain is exhausted does a call fail.
type Client struct {
	caller      modelCaller
	models      []string
	attempts    int
	inputLimit  int
	callTimeout time.Duration
	limiter     *rateLimiter
	logger      *zap.Logger
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Require("GEMINI_API_KEY", cfg.GeminiAPIKey); err != nil {
		return nil, err
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newWithCaller(&geminiCaller{client: genaiClient}, cfg, logger), nil
}

func newWithCaller(caller modelCaller, cfg config.Config, logger *zap.Logger) *Client {
	attempts := cfg.GeminiAttempts
	if attempts <= 0 {
		attempts = 1
	}
	inputLimit := cfg.ClassifierInputLimit
	if inputLimit <= 0 {
		inputLimit = 5000
	}
	return &Client{
		caller:      caller,
		models:      cfg.GeminiModels,
		attempts:    attempts,
		inputLimit:  inputLimit,
		callTimeout: time.Duration(cfg.GeminiTimeoutMs) * time.Millisecond,
		limiter:     newRateLimiter(cfg.GeminiRateLimitRPS),
		logger:      logger,
	}
}

// Generate tries each model in order until one answers. Attempts per model are
// bounded; any failure aborts the remaining attempts on that model and moves
// down the chain.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt must not be empty")
	}
	if len(c.models) == 0 {
		return "", &ExhaustedError{Last: errors.New("no models configured")}
	}

	var lastErr error
	for _, model := range c.models {
		for attempt := 1; attempt <= c.attempts; attempt++ {
			c.limiter.WaitTurn()
			out, err := c.callOnce(ctx, model, prompt)
			if err == nil {
				return out, nil
			}
			lastErr = err
			c.logger.Warn("model call failed, switching model",
				zap.String("model", model),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			break
		}
	}

	return "", &ExhaustedError{Last: lastErr}
}

func (c *Client) callOnce(ctx context.Context, model, prompt string) (string, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return c.caller.generate(ctx, model, prompt)
}

type geminiCaller struct {
	client *genai.Client
}

func (g *geminiCaller) generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("model returned empty response")
	}
	return output, nil
}
