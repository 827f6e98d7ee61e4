package anthropic

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
)

func intPtr(v int) *int { return &v }

func TestDecodeMultiTurnWithSystem(t *testing.T) {
	t.Parallel()

	body := `{
		"model": "claude-sonnet-4",
		"max_tokens": 1024,
		"system": "You are a helpful assistant that always responds in rhyme.",
		"metadata": {"user_id": "ignored"},
		"messages": [
			{"role": "user", "content": "What is 2+2?"},
			{"role": "assistant", "content": [{"type": "text", "text": "2+2 equals 4."}]},
			{"role": "user", "content": "What about 3+3?"}
		]
	}`

	got, err := New().DecodeRequest([]byte(body), dialect.Route{})
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}

	want := &canonical.Request{
		Model:             "claude-sonnet-4",
		SystemInstruction: "You are a helpful assistant that always responds in rhyme.",
		MaxOutputTokens:   intPtr(1024),
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Content: []canonical.ContentBlock{canonical.TextBlock("What is 2+2?")}},
			{Role: canonical.RoleAssistant, Content: []canonical.ContentBlock{canonical.TextBlock("2+2 equals 4.")}},
			{Role: canonical.RoleUser, Content: []canonical.ContentBlock{canonical.TextBlock("What about 3+3?")}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decoded request mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSystemBlocks(t *testing.T) {
	t.Parallel()

	body := `{"model":"m","max_tokens":5,"stream":true,
		"system":[{"type":"text","text":"line one"},{"type":"text","text":"line two"}],
		"messages":[{"role":"user","content":"hi"}]}`

	got, err := New().DecodeRequest([]byte(body), dialect.Route{})
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if got.SystemInstruction != "line one\nline two" {
		t.Fatalf("unexpected system instruction %q", got.SystemInstruction)
	}
	if !got.Stream {
		t.Fatalf("stream flag lost")
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		body        string
		unsupported bool
	}{
		{name: "malformed", body: `{"model":`},
		{name: "missing model", body: `{"max_tokens":1,"messages":[{"role":"user","content":"x"}]}`},
		{name: "missing max_tokens", body: `{"model":"m","messages":[{"role":"user","content":"x"}]}`},
		{name: "empty messages", body: `{"model":"m","max_tokens":1,"messages":[]}`},
		{name: "system role in messages", body: `{"model":"m","max_tokens":1,"messages":[{"role":"system","content":"x"}]}`},
		{name: "zero max_tokens", body: `{"model":"m","max_tokens":0,"messages":[{"role":"user","content":"x"}]}`},
		{
			name:        "image block",
			body:        `{"model":"m","max_tokens":1,"messages":[{"role":"user","content":[{"type":"image","source":{}}]}]}`,
			unsupported: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New().DecodeRequest([]byte(tc.body), dialect.Route{})
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.unsupported && !canonical.IsUnsupported(err) {
				t.Fatalf("expected unsupported feature error, got %v", err)
			}
			if !tc.unsupported && !canonical.IsDecode(err) {
				t.Fatalf("expected decode error, got %v", err)
			}
		})
	}
}

func TestEncodeResponse(t *testing.T) {
	t.Parallel()

	out, err := New().EncodeResponse(&canonical.Response{
		ID:           "msg_1",
		Model:        "claude-sonnet-4",
		Role:         canonical.RoleAssistant,
		Content:      []canonical.ContentBlock{canonical.TextBlock("6")},
		FinishReason: canonical.FinishLength,
		Usage:        &canonical.Usage{InputTokens: 12, OutputTokens: 1},
	})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}

	checks := map[string]string{
		"id":                  "msg_1",
		"type":                "message",
		"role":                "assistant",
		"content.0.type":      "text",
		"content.0.text":      "6",
		"stop_reason":         "max_tokens",
		"usage.input_tokens":  "12",
		"usage.output_tokens": "1",
	}
	for path, want := range checks {
		if got := gjson.GetBytes(out, path).String(); got != want {
			t.Fatalf("%s = %q, want %q (body %s)", path, got, want, out)
		}
	}
}

func TestEncodeResponseZeroOutput(t *testing.T) {
	t.Parallel()

	out, err := New().EncodeResponse(&canonical.Response{ID: "msg_2", FinishReason: canonical.FinishOther})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if gjson.GetBytes(out, "content.#").Int() != 1 || gjson.GetBytes(out, "content.0.text").String() != "" {
		t.Fatalf("expected a single empty text block: %s", out)
	}
	if gjson.GetBytes(out, "stop_reason").String() != "end_turn" {
		t.Fatalf("unknown finish reason must map to end_turn: %s", out)
	}
	if gjson.GetBytes(out, "usage.output_tokens").Int() != 0 {
		t.Fatalf("expected zero usage: %s", out)
	}
}

func TestStopReasonTable(t *testing.T) {
	t.Parallel()

	table := map[canonical.FinishReason]string{
		canonical.FinishStop:          "end_turn",
		canonical.FinishLength:        "max_tokens",
		canonical.FinishContentFilter: "stop_sequence",
		canonical.FinishToolUse:       "tool_use",
		canonical.FinishError:         "end_turn",
		canonical.FinishOther:         "end_turn",
		"something_new":               "end_turn",
	}
	for in, want := range table {
		if got := stopReason(in); got != want {
			t.Fatalf("stopReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEncodeError(t *testing.T) {
	t.Parallel()

	status, body := New().EncodeError(canonical.Decodef("messages: at least one message is required"))
	if status != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", status)
	}
	if gjson.GetBytes(body, "type").String() != "error" ||
		gjson.GetBytes(body, "error.type").String() != "invalid_request_error" {
		t.Fatalf("unexpected envelope %s", body)
	}

	status, body = New().EncodeError(canonical.NewBackendError("upstream call failed", canonical.ErrIdleTimeout))
	if status != http.StatusGatewayTimeout || gjson.GetBytes(body, "error.type").String() != "timeout_error" {
		t.Fatalf("unexpected timeout envelope %d %s", status, body)
	}
}

func TestStreamFraming(t *testing.T) {
	t.Parallel()

	a := New()
	meta := canonical.StreamMeta{ID: "msg_s", Model: "claude-sonnet-4"}

	start, err := a.EncodeStreamStart(meta)
	if err != nil {
		t.Fatalf("EncodeStreamStart: %v", err)
	}
	if strings.Count(string(start), "event: ") != 2 ||
		!strings.HasPrefix(string(start), "event: message_start\n") ||
		!strings.Contains(string(start), "event: content_block_start\n") {
		t.Fatalf("unexpected start framing %q", start)
	}

	delta, err := a.EncodeStreamDelta(meta, canonical.Delta{Text: "Hel"})
	if err != nil {
		t.Fatalf("EncodeStreamDelta: %v", err)
	}
	if !strings.Contains(string(delta), `"delta":{"type":"text_delta","text":"Hel"}`) {
		t.Fatalf("unexpected delta framing %q", delta)
	}

	empty, err := a.EncodeStreamDelta(meta, canonical.Delta{IsFinal: true})
	if err != nil || empty != nil {
		t.Fatalf("empty delta must produce no frame, got %q %v", empty, err)
	}

	end, err := a.EncodeStreamEnd(meta, canonical.StreamEnd{
		FinishReason: canonical.FinishLength,
		Usage:        &canonical.Usage{OutputTokens: 7},
	})
	if err != nil {
		t.Fatalf("EncodeStreamEnd: %v", err)
	}
	s := string(end)
	if strings.Count(s, "event: ") != 3 || !strings.HasSuffix(s, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n") {
		t.Fatalf("unexpected end framing %q", s)
	}
	if !strings.Contains(s, `"stop_reason":"max_tokens"`) || !strings.Contains(s, `"output_tokens":7`) {
		t.Fatalf("message_delta missing stop reason or usage: %q", s)
	}

	errFrame := string(a.EncodeStreamError(meta, canonical.NewBackendError("upstream reset", nil)))
	if !strings.HasPrefix(errFrame, "event: error\n") || !strings.Contains(errFrame, `"type":"api_error"`) {
		t.Fatalf("unexpected error framing %q", errFrame)
	}
}
