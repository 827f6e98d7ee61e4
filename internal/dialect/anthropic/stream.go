package anthropic

import (
	"bytes"

	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
)

// Stream framing: start writes message_start and content_block_start, every
// non-empty delta one content_block_delta, end writes content_block_stop,
// message_delta and message_stop. Failures become a single error event.

func (Adapter) StreamContentType() string { return dialect.EventStream }

func (Adapter) EncodeStreamStart(meta canonical.StreamMeta) ([]byte, error) {
	start := messageStartEvent{
		Type: "message_start",
		Message: message{
			ID:      meta.ID,
			Type:    "message",
			Role:    roleToWire[canonical.RoleAssistant],
			Model:   meta.Model,
			Content: []textBlock{},
		},
	}
	block := contentBlockStartEvent{
		Type:         "content_block_start",
		Index:        0,
		ContentBlock: textBlock{Type: "text", Text: ""},
	}
	return frames(
		event{"message_start", start},
		event{"content_block_start", block},
	)
}

func (Adapter) EncodeStreamDelta(_ canonical.StreamMeta, d canonical.Delta) ([]byte, error) {
	if d.Text == "" {
		return nil, nil
	}
	return dialect.SSEFrame("content_block_delta", contentBlockDeltaEvent{
		Type:  "content_block_delta",
		Index: d.Index,
		Delta: textDelta{Type: "text_delta", Text: d.Text},
	})
}

func (Adapter) EncodeStreamEnd(_ canonical.StreamMeta, end canonical.StreamEnd) ([]byte, error) {
	return frames(
		event{"content_block_stop", contentBlockStopEvent{Type: "content_block_stop", Index: 0}},
		event{"message_delta", messageDeltaEvent{
			Type:  "message_delta",
			Delta: messageDelta{StopReason: stopReason(end.FinishReason)},
			Usage: toUsage(end.Usage),
		}},
		event{"message_stop", messageStopEvent{Type: "message_stop"}},
	)
}

func (Adapter) EncodeStreamError(_ canonical.StreamMeta, err error) []byte {
	status := dialect.StatusFor(err)
	frame, ferr := dialect.SSEFrame("error", errorBody{
		Type:  "error",
		Error: errorDetail{Type: errorType(status), Message: canonical.MessageOf(err)},
	})
	if ferr != nil {
		return []byte("event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"api_error\",\"message\":\"stream failed\"}}\n\n")
	}
	return frame
}

type event struct {
	name    string
	payload any
}

func frames(events ...event) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range events {
		f, err := dialect.SSEFrame(e.name, e.payload)
		if err != nil {
			return nil, err
		}
		buf.Write(f)
	}
	return buf.Bytes(), nil
}
