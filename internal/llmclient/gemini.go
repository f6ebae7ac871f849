// File: internal/llmclient/gemini.go

// Package llmclient implements the explanation generator backend on the
// official Gemini SDK. Each Generate call is a single attempt; retry policy
// belongs to the caller, which sees transient and permanent failures as
// distinct error classes.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	genai "google.golang.org/genai"

	"hindsight/api/schemas"
	"hindsight/internal/config"
)

// GeminiClient implements schemas.LLMClient against the Gemini API.
type GeminiClient struct {
	cli     *genai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiClient initializes the client. The API key is required; model and
// rate limits come from config.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing gemini client: %w", err)
	}

	limit := rate.Inf
	burst := 1
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		if cfg.Burst > 0 {
			burst = cfg.Burst
		}
	}

	return &GeminiClient{
		cli:     cli,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("llmclient.gemini"),
	}, nil
}

// Generate performs one generation attempt, bounded by the configured
// per-call timeout on top of ctx.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &schemas.ServiceError{Transient: false, Err: err}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	genCfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}
	if req.Options.Temperature > 0 {
		temp := float32(req.Options.Temperature)
		genCfg.Temperature = &temp
	}
	if req.Options.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}

	start := time.Now()
	resp, err := c.cli.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.UserPrompt}}}},
		genCfg,
	)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		// Empty candidates show up under load shedding; worth one retry.
		return "", &schemas.ServiceError{Transient: true, Err: fmt.Errorf("gemini returned no content")}
	}

	c.logger.Debug("generation complete",
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)))
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// Close releases client resources.
func (c *GeminiClient) Close() error { return nil }

// classify maps SDK failures to the transient/permanent split the retry
// policy depends on. Rate limits and 5xx are transient; everything else,
// including context expiry, is permanent.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &schemas.ServiceError{Transient: false, Err: err}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		transient := apiErr.Code == http.StatusTooManyRequests ||
			apiErr.Code == http.StatusServiceUnavailable ||
			apiErr.Code == http.StatusInternalServerError
		return &schemas.ServiceError{Transient: transient, Err: err}
	}
	// Unclassified network failures are assumed transient.
	return &schemas.ServiceError{Transient: true, Err: err}
}
