// Package anthropic dispatches canonical requests to an Anthropic Messages
// API backend through the official SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"dialectgate/internal/canonical"
	"dialectgate/internal/llm"
)

// defaultMaxTokens is sent when the inbound dialect left max tokens unset;
// the Messages API requires one.
const defaultMaxTokens = 4096

type Client struct {
	cfg    llm.Config
	sdk    anthropicsdk.Client
	logger *zap.Logger
}

// NewClient builds the backend. AuthToken style credentials are sent as a
// bearer token, plain API keys as x-api-key.
func NewClient(cfg llm.Config, bearer bool, logger *zap.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("invalid config: APIKey is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithMaxRetries(cfg.MaxRetries),
	}
	if bearer {
		opts = append(opts, anthropicoption.WithAuthToken(cfg.APIKey))
	} else {
		opts = append(opts, anthropicoption.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(cfg.BaseURL+"/"))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		cfg:    cfg,
		sdk:    anthropicsdk.NewClient(opts...),
		logger: logger.Named("anthropic_backend"),
	}, nil
}

func (c *Client) params(req *canonical.Request) (anthropicsdk.MessageNewParams, error) {
	if req == nil {
		return anthropicsdk.MessageNewParams{}, errors.New("anthropic backend: request is nil")
	}
	if err := req.Validate(); err != nil {
		return anthropicsdk.MessageNewParams{}, fmt.Errorf("anthropic backend: invalid request: %w", err)
	}

	model := llm.ResolveModel(req.Model, c.cfg.Model, c.cfg.OverrideModel)
	if model == "" {
		return anthropicsdk.MessageNewParams{}, canonical.Validationf("no model requested and no default model configured")
	}

	p := anthropicsdk.MessageNewParams{
		Model:         anthropicsdk.Model(model),
		MaxTokens:     defaultMaxTokens,
		StopSequences: req.StopSequences,
	}
	if req.MaxOutputTokens != nil {
		p.MaxTokens = int64(*req.MaxOutputTokens)
	}
	if req.Temperature != nil {
		p.Temperature = anthropicsdk.Float(*req.Temperature)
	}
	if req.TopP != nil {
		p.TopP = anthropicsdk.Float(*req.TopP)
	}

	system := req.SystemInstruction
	for _, m := range req.Messages {
		block := anthropicsdk.NewTextBlock(m.Text())
		switch m.Role {
		case canonical.RoleAssistant:
			p.Messages = append(p.Messages, anthropicsdk.NewAssistantMessage(block))
		case canonical.RoleSystem:
			// the Messages API has no system turns
			system = joinSystem(system, m.Text())
		default:
			p.Messages = append(p.Messages, anthropicsdk.NewUserMessage(block))
		}
	}
	if system != "" {
		p.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	return p, nil
}

func joinSystem(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}

func (c *Client) Complete(parentCtx context.Context, req *canonical.Request) (*canonical.Response, error) {
	start := time.Now()

	p, err := c.params(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	msg, err := c.sdk.Messages.New(ctx, p)
	if err != nil {
		c.logger.Error("llm request failed",
			zap.String("model", string(p.Model)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("anthropic backend: %w", err)
	}

	out := &canonical.Response{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Role:         canonical.RoleAssistant,
		FinishReason: FinishReasonFromAnthropic(string(msg.StopReason)),
		Usage: &canonical.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		Created: time.Now(),
	}
	if out.Model == "" {
		out.Model = string(p.Model)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.Content = append(out.Content, canonical.TextBlock(block.Text))
		}
	}

	c.logger.Info("llm request completed",
		zap.String("model", out.Model),
		zap.Int("prompt_tokens", out.Usage.InputTokens),
		zap.Int("completion_tokens", out.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// Stream relays text deltas. Input tokens arrive with message_start and
// output tokens with message_delta; both land on the final delta.
func (c *Client) Stream(ctx context.Context, req *canonical.Request) (<-chan llm.StreamResult, error) {
	p, err := c.params(req)
	if err != nil {
		return nil, err
	}

	results := make(chan llm.StreamResult, 16)

	go func() {
		defer close(results)

		stream := c.sdk.Messages.NewStreaming(ctx, p)
		defer stream.Close()

		final := canonical.Delta{IsFinal: true, FinishReason: canonical.FinishStop}
		usage := canonical.Usage{}
		chunks := 0

		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case anthropicsdk.MessageStartEvent:
				usage.InputTokens = int(ev.Message.Usage.InputTokens)
			case anthropicsdk.ContentBlockDeltaEvent:
				text, ok := ev.Delta.AsAny().(anthropicsdk.TextDelta)
				if !ok || text.Text == "" {
					continue
				}
				chunks++
				// content block indexes count thinking and tool blocks too;
				// the canonical stream has a single choice
				d := &canonical.Delta{Index: 0, Text: text.Text}
				if !llm.Send(ctx, results, llm.StreamResult{Delta: d}) {
					return
				}
			case anthropicsdk.MessageDeltaEvent:
				if ev.Delta.StopReason != "" {
					final.FinishReason = FinishReasonFromAnthropic(string(ev.Delta.StopReason))
				}
				usage.OutputTokens = int(ev.Usage.OutputTokens)
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() == nil {
				c.logger.Error("llm stream failed",
					zap.String("model", string(p.Model)),
					zap.Int("chunks", chunks),
					zap.Error(err),
				)
				llm.Send(ctx, results, llm.StreamResult{Err: fmt.Errorf("anthropic backend: %w", err)})
			}
			return
		}

		final.Usage = &usage
		c.logger.Info("llm stream completed",
			zap.String("model", string(p.Model)),
			zap.Int("chunks", chunks),
		)
		llm.Send(ctx, results, llm.StreamResult{Delta: &final})
	}()

	return results, nil
}

// FinishReasonFromAnthropic maps a Messages API stop_reason.
func FinishReasonFromAnthropic(s string) canonical.FinishReason {
	switch s {
	case "end_turn", "stop_sequence", "pause_turn":
		return canonical.FinishStop
	case "max_tokens", "model_context_window_exceeded":
		return canonical.FinishLength
	case "tool_use":
		return canonical.FinishToolUse
	case "refusal":
		return canonical.FinishContentFilter
	default:
		return canonical.FinishOther
	}
}

func (c *Client) Close() error { return nil }
