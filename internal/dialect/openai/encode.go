package openai

import (
	"bytes"
	"encoding/json"
	"net/http"

	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
)

func finishReason(r canonical.FinishReason) string {
	switch r {
	case canonical.FinishLength:
		return "length"
	case canonical.FinishContentFilter:
		return "content_filter"
	case canonical.FinishToolUse:
		return "tool_calls"
	default:
		return "stop"
	}
}

func (Adapter) EncodeResponse(resp *canonical.Response) ([]byte, error) {
	out := chatCompletion{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: dialect.Unix(resp.Created),
		Model:   resp.Model,
		Choices: []choice{{
			Index:        0,
			Message:      responseMessage{Role: "assistant", Content: resp.Text()},
			FinishReason: finishReason(resp.FinishReason),
		}},
		Usage: toUsage(resp.Usage),
	}
	return json.Marshal(out)
}

func (Adapter) EncodeError(err error) (int, []byte) {
	status := dialect.StatusFor(err)
	return status, errorJSON(status, err)
}

func errorJSON(status int, err error) []byte {
	body, _ := json.Marshal(errorBody{Error: errorDetail{
		Message: canonical.MessageOf(err),
		Type:    errorType(status),
	}})
	return body
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusGatewayTimeout:
		return "timeout"
	default:
		return "upstream_error"
	}
}

func toUsage(u *canonical.Usage) usage {
	if u == nil {
		return usage{}
	}
	return usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.Total(),
	}
}

// Stream framing: start sends one chunk announcing the assistant role, each
// non-empty delta one chunk, end the finish chunk (with usage when known)
// followed by the [DONE] sentinel.

var doneFrame = []byte("data: [DONE]\n\n")

func (Adapter) StreamContentType() string { return dialect.EventStream }

func (Adapter) EncodeStreamStart(meta canonical.StreamMeta) ([]byte, error) {
	empty := ""
	return dialect.SSEFrame("", chunk(meta, chunkChoice{
		Delta: chunkDelta{Role: "assistant", Content: &empty},
	}))
}

func (Adapter) EncodeStreamDelta(meta canonical.StreamMeta, d canonical.Delta) ([]byte, error) {
	if d.Text == "" {
		return nil, nil
	}
	text := d.Text
	return dialect.SSEFrame("", chunk(meta, chunkChoice{
		Index: 0,
		Delta: chunkDelta{Content: &text},
	}))
}

func (Adapter) EncodeStreamEnd(meta canonical.StreamMeta, end canonical.StreamEnd) ([]byte, error) {
	reason := finishReason(end.FinishReason)
	c := chunk(meta, chunkChoice{FinishReason: &reason})
	if end.Usage != nil {
		u := toUsage(end.Usage)
		c.Usage = &u
	}
	frame, err := dialect.SSEFrame("", c)
	if err != nil {
		return nil, err
	}
	return append(frame, doneFrame...), nil
}

func (Adapter) EncodeStreamError(_ canonical.StreamMeta, err error) []byte {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	buf.Write(errorJSON(dialect.StatusFor(err), err))
	buf.WriteString("\n\n")
	buf.Write(doneFrame)
	return buf.Bytes()
}

func chunk(meta canonical.StreamMeta, c chunkChoice) chatCompletionChunk {
	return chatCompletionChunk{
		ID:      meta.ID,
		Object:  "chat.completion.chunk",
		Created: dialect.Unix(meta.Created),
		Model:   meta.Model,
		Choices: []chunkChoice{c},
	}
}
