// Package factory builds the backend client selected by configuration.
package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dialectgate/internal/config"
	"dialectgate/internal/llm"
	"dialectgate/internal/llm/anthropic"
	"dialectgate/internal/llm/gemini"
)

// Backend is the dispatch target for every dialect.
type Backend struct {
	Kind   string
	Model  string
	Client llm.Client
}

// Close releases the client's resources.
func (b Backend) Close() error {
	if closer, ok := b.Client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// New constructs the selected backend.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	kind := cfg.SelectedBackend()
	up := cfg.Upstream()

	base := llm.Config{
		BaseURL:         up.BaseURL,
		APIKey:          up.APIKey,
		Model:           up.Model,
		OverrideModel:   cfg.Backend.OverrideModel,
		UpstreamTimeout: cfg.Backend.Timeout,
		MaxRetries:      cfg.Backend.MaxRetries,
	}
	if base.MaxRetries == 0 {
		// zero in the file means "no retries", not "library default"
		base.MaxRetries = -1
	}

	var (
		client llm.Client
		err    error
	)
	switch kind {
	case config.BackendAnthropic:
		client, err = anthropic.NewClient(base, true, logger)
	case config.BackendOpenAI:
		client, err = llm.NewClient(base, logger)
	case config.BackendGemini:
		client, err = gemini.NewClient(ctx, base, logger)
	default:
		return Backend{}, fmt.Errorf("unknown backend %q", kind)
	}
	if err != nil {
		return Backend{}, fmt.Errorf("create %s backend: %w", kind, err)
	}

	logger.Info("backend selected",
		zap.String("backend", kind),
		zap.String("base_url", up.BaseURL),
		zap.String("model", up.Model),
		zap.Bool("override_model", cfg.Backend.OverrideModel),
	)

	return Backend{Kind: kind, Model: up.Model, Client: client}, nil
}
