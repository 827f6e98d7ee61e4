// Package gemini dispatches canonical requests to the Gemini API through
// google.golang.org/genai.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"dialectgate/internal/canonical"
	"dialectgate/internal/llm"
)

type Client struct {
	cfg    llm.Config
	sdk    *genai.Client
	logger *zap.Logger
}

func NewClient(ctx context.Context, cfg llm.Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("invalid config: APIKey is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL + "/"}
	}

	sdk, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini backend: %w", err)
	}

	return &Client{
		cfg:    cfg,
		sdk:    sdk,
		logger: logger.Named("gemini_backend"),
	}, nil
}

type call struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (c *Client) prepare(req *canonical.Request) (call, error) {
	if req == nil {
		return call{}, errors.New("gemini backend: request is nil")
	}
	if err := req.Validate(); err != nil {
		return call{}, fmt.Errorf("gemini backend: invalid request: %w", err)
	}

	model := strings.TrimPrefix(llm.ResolveModel(req.Model, c.cfg.Model, c.cfg.OverrideModel), "models/")
	if model == "" {
		return call{}, canonical.Validationf("no model requested and no default model configured")
	}

	cfg := &genai.GenerateContentConfig{StopSequences: req.StopSequences}
	if req.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = int32(*req.MaxOutputTokens)
	}
	if req.Temperature != nil {
		v := float32(*req.Temperature)
		cfg.Temperature = &v
	}
	if req.TopP != nil {
		v := float32(*req.TopP)
		cfg.TopP = &v
	}

	system := req.SystemInstruction
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case canonical.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Text()
			continue
		case canonical.RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Text()}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Text()}}})
		}
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	return call{model: model, contents: contents, config: cfg}, nil
}

func (c *Client) Complete(parentCtx context.Context, req *canonical.Request) (*canonical.Response, error) {
	start := time.Now()

	p, err := c.prepare(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	resp, err := c.sdk.Models.GenerateContent(ctx, p.model, p.contents, p.config)
	if err != nil {
		c.logger.Error("llm request failed",
			zap.String("model", p.model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("gemini backend: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.New("gemini backend: provider returned no candidates")
	}

	cand := resp.Candidates[0]
	finish := FinishReasonFromGemini(string(cand.FinishReason))
	if finish == "" {
		finish = canonical.FinishStop
	}
	model := resp.ModelVersion
	if model == "" {
		model = p.model
	}

	out := &canonical.Response{
		ID:           resp.ResponseID,
		Model:        model,
		Role:         canonical.RoleAssistant,
		Content:      []canonical.ContentBlock{canonical.TextBlock(candidateText(cand))},
		FinishReason: finish,
		Usage:        fromUsage(resp.UsageMetadata),
		Created:      time.Now(),
	}

	c.logger.Info("llm request completed",
		zap.String("model", out.Model),
		zap.Int("prompt_tokens", out.Usage.InputTokens),
		zap.Int("completion_tokens", out.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func (c *Client) Stream(ctx context.Context, req *canonical.Request) (<-chan llm.StreamResult, error) {
	p, err := c.prepare(req)
	if err != nil {
		return nil, err
	}

	results := make(chan llm.StreamResult, 16)

	go func() {
		defer close(results)

		final := canonical.Delta{IsFinal: true, FinishReason: canonical.FinishStop}
		chunks := 0

		for resp, err := range c.sdk.Models.GenerateContentStream(ctx, p.model, p.contents, p.config) {
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Error("llm stream failed",
						zap.String("model", p.model),
						zap.Int("chunks", chunks),
						zap.Error(err),
					)
					llm.Send(ctx, results, llm.StreamResult{Err: fmt.Errorf("gemini backend: %w", err)})
				}
				return
			}
			if resp.UsageMetadata != nil {
				final.Usage = fromUsage(resp.UsageMetadata)
			}
			for _, cand := range resp.Candidates {
				if r := FinishReasonFromGemini(string(cand.FinishReason)); r != "" {
					final.FinishReason = r
				}
				text := candidateText(cand)
				if text == "" {
					continue
				}
				chunks++
				d := &canonical.Delta{Index: int(cand.Index), Text: text}
				if !llm.Send(ctx, results, llm.StreamResult{Delta: d}) {
					return
				}
			}
		}

		c.logger.Info("llm stream completed",
			zap.String("model", p.model),
			zap.Int("chunks", chunks),
		)
		llm.Send(ctx, results, llm.StreamResult{Delta: &final})
	}()

	return results, nil
}

// candidateText joins the visible text parts, skipping thoughts.
func candidateText(cand *genai.Candidate) string {
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func fromUsage(u *genai.GenerateContentResponseUsageMetadata) *canonical.Usage {
	if u == nil {
		return &canonical.Usage{}
	}
	return &canonical.Usage{
		InputTokens:  int(u.PromptTokenCount),
		OutputTokens: int(u.CandidatesTokenCount),
	}
}

// FinishReasonFromGemini maps a candidate finishReason. An empty value means
// the candidate has not finished.
func FinishReasonFromGemini(s string) canonical.FinishReason {
	switch s {
	case "", "FINISH_REASON_UNSPECIFIED":
		return ""
	case "STOP":
		return canonical.FinishStop
	case "MAX_TOKENS":
		return canonical.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return canonical.FinishContentFilter
	case "MALFORMED_FUNCTION_CALL", "UNEXPECTED_TOOL_CALL":
		return canonical.FinishError
	default:
		return canonical.FinishOther
	}
}

func (c *Client) Close() error { return nil }
