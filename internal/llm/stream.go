package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"dialectgate/internal/canonical"
)

// Stream opens an upstream SSE stream. Text arrives as plain deltas; the
// final delta is sent at [DONE] or EOF and carries the last finish reason
// and usage, since usage chunks follow the finish chunk upstream.
func (c *OpenAIClient) Stream(ctx context.Context, req *canonical.Request) (<-chan StreamResult, error) {
	if req == nil {
		return nil, fmt.Errorf("openai backend: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("openai backend: invalid request: %w", err)
	}

	pReq, err := c.toProviderRequest(req, true)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("llm stream request starting",
		zap.String("model", pReq.Model),
		zap.Int("message_count", len(pReq.Messages)),
	)

	results := make(chan StreamResult, 16)

	go func() {
		defer close(results)

		// ---------- Connect with retries (no mid-stream retries) ----------

		resp, err := c.post(ctx, pReq)
		if err != nil {
			c.logger.Error("llm stream connect failed",
				zap.String("model", pReq.Model),
				zap.Error(err),
			)
			Send(ctx, results, StreamResult{Err: err})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			Send(ctx, results, StreamResult{Err: c.upstreamError(resp, pReq.Model)})
			return
		}

		// ---------- Read SSE stream ----------

		reader := bufio.NewReader(resp.Body)
		final := canonical.Delta{IsFinal: true}
		chunkCount := 0

		for {
			if ctx.Err() != nil {
				c.logger.Info("llm stream cancelled",
					zap.String("model", pReq.Model),
					zap.Int("chunks", chunkCount),
				)
				return
			}

			line, err := reader.ReadBytes('\n')
			if err != nil && !(err == io.EOF && len(bytes.TrimSpace(line)) > 0) {
				if err == io.EOF {
					c.logger.Info("llm stream completed (EOF)",
						zap.String("model", pReq.Model),
						zap.Int("chunks", chunkCount),
					)
					Send(ctx, results, StreamResult{Delta: &final})
					return
				}
				if ctx.Err() == nil {
					Send(ctx, results, StreamResult{Err: fmt.Errorf("openai backend: read stream line: %w", err)})
				}
				return
			}

			line = bytes.TrimSpace(line)
			if !bytes.HasPrefix(line, []byte("data:")) {
				// blank separators, comments, event names
				continue
			}
			payload := bytes.TrimSpace(line[len("data:"):])

			if bytes.Equal(payload, []byte("[DONE]")) {
				c.logger.Info("llm stream received [DONE]",
					zap.String("model", pReq.Model),
					zap.Int("chunks", chunkCount),
				)
				Send(ctx, results, StreamResult{Delta: &final})
				return
			}

			var chunk providerStreamChunk
			if err := json.Unmarshal(payload, &chunk); err != nil {
				Send(ctx, results, StreamResult{Err: fmt.Errorf("openai backend: unmarshal stream chunk: %w", err)})
				return
			}
			if u := fromProviderUsage(chunk.Usage); u != nil {
				final.Usage = u
			}

			for _, choice := range chunk.Choices {
				if r := FinishReasonFromOpenAI(choice.FinishReason); r != "" {
					final.FinishReason = r
				}
				if choice.Delta.Content == "" {
					continue
				}
				chunkCount++
				d := &canonical.Delta{Index: choice.Index, Text: choice.Delta.Content}
				if !Send(ctx, results, StreamResult{Delta: d}) {
					c.logger.Info("llm stream cancelled while sending chunk",
						zap.String("model", pReq.Model),
						zap.Int("chunks", chunkCount),
					)
					return
				}
			}
		}
	}()

	return results, nil
}
