package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"dialectgate/internal/canonical"
)

const maxRequestSize = 2 * 1024 * 1024 // 2MB total JSON payload

func (c *OpenAIClient) Complete(parentCtx context.Context, req *canonical.Request) (*canonical.Response, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("openai backend: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("openai backend: invalid request: %w", err)
	}

	pReq, err := c.toProviderRequest(req, false)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("llm request starting",
		zap.String("model", pReq.Model),
		zap.Int("message_count", len(pReq.Messages)),
	)

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	resp, err := c.post(ctx, pReq)
	if err != nil {
		c.logger.Error("llm request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.upstreamError(resp, pReq.Model)
	}

	var pResp providerChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&pResp); err != nil {
		return nil, fmt.Errorf("openai backend: decode upstream response: %w", err)
	}

	if len(pResp.Choices) == 0 {
		c.logger.Error("llm provider returned no choices",
			zap.String("model", pReq.Model),
		)
		return nil, fmt.Errorf("openai backend: provider returned no choices")
	}

	ch := pResp.Choices[0]
	finish := FinishReasonFromOpenAI(ch.FinishReason)
	if finish == "" {
		finish = canonical.FinishStop
	}
	model := pResp.Model
	if model == "" {
		model = pReq.Model
	}

	out := &canonical.Response{
		ID:           pResp.ID,
		Model:        model,
		Role:         canonical.RoleAssistant,
		Content:      []canonical.ContentBlock{canonical.TextBlock(ch.Message.Content)},
		FinishReason: finish,
		Usage:        fromProviderUsage(pResp.Usage),
	}
	if pResp.Created > 0 {
		out.Created = time.Unix(pResp.Created, 0)
	}
	if out.Usage == nil {
		out.Usage = &canonical.Usage{}
	}

	c.logger.Info("llm request completed",
		zap.String("model", out.Model),
		zap.Int("prompt_tokens", out.Usage.InputTokens),
		zap.Int("completion_tokens", out.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return out, nil
}

// post sends the chat completion request with retries before the first byte.
func (c *OpenAIClient) post(ctx context.Context, pReq providerChatRequest) (*http.Response, error) {
	bodyBytes, err := json.Marshal(pReq)
	if err != nil {
		return nil, fmt.Errorf("openai backend: marshal request: %w", err)
	}
	if len(bodyBytes) > maxRequestSize {
		return nil, fmt.Errorf(
			"openai backend: request too large (%d bytes, max %d)",
			len(bodyBytes), maxRequestSize,
		)
	}

	url := c.cfg.BaseURL + "/v1/chat/completions"

	doOnce := func(ctx context.Context, body []byte) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("openai backend: build HTTP request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")
		if pReq.Stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}
		return c.httpClient.Do(httpReq)
	}

	return c.doWithRetry(ctx, bodyBytes, doOnce)
}

// upstreamError turns a non-2xx reply into an error, preferring the
// structured OpenAI error message.
func (c *OpenAIClient) upstreamError(resp *http.Response, model string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var perr providerErrorResponse
	if err := json.Unmarshal(body, &perr); err == nil && perr.Error.Message != "" {
		c.logger.Error("llm provider error",
			zap.String("model", model),
			zap.Int("status", resp.StatusCode),
			zap.String("error_type", perr.Error.Type),
			zap.String("error_message", perr.Error.Message),
		)
		return fmt.Errorf("openai backend: upstream %d: %s (%s)",
			resp.StatusCode, perr.Error.Message, perr.Error.Type)
	}

	c.logger.Error("llm upstream error",
		zap.String("model", model),
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncate(string(body), 200)),
	)
	return fmt.Errorf("openai backend: upstream %d: %s",
		resp.StatusCode, truncate(string(body), 200))
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
