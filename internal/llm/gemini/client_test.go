package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"dialectgate/internal/canonical"
	"dialectgate/internal/llm"
)

type capturedRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
	GenerationConfig struct {
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), llm.Config{
		BaseURL: srv.URL,
		APIKey:  "gemini-key",
		Model:   "gemini-test",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func request() *canonical.Request {
	maxTokens := 64
	temp := 0.5
	return &canonical.Request{
		SystemInstruction: "answer in French",
		MaxOutputTokens:   &maxTokens,
		Temperature:       &temp,
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Content: []canonical.ContentBlock{canonical.TextBlock("hi")}},
			{Role: canonical.RoleAssistant, Content: []canonical.ContentBlock{canonical.TextBlock("salut")}},
			{Role: canonical.RoleUser, Content: []canonical.ContentBlock{canonical.TextBlock("ca va?")}},
		},
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var got capturedRequest
	var path, key string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[`+
			`{"text":"thinking...","thought":true},{"text":"oui"}]},"finishReason":"MAX_TOKENS","index":0}],`+
			`"usageMetadata":{"promptTokenCount":6,"candidatesTokenCount":1,"totalTokenCount":7},`+
			`"modelVersion":"gemini-test-001","responseId":"resp-1"}`)
	})

	resp, err := c.Complete(context.Background(), request())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if !strings.HasSuffix(path, "/models/gemini-test:generateContent") {
		t.Fatalf("unexpected upstream path %q", path)
	}
	if key != "gemini-key" {
		t.Fatalf("api key not sent, got %q", key)
	}
	if len(got.Contents) != 3 || got.Contents[1].Role != "model" || got.Contents[2].Parts[0].Text != "ca va?" {
		t.Fatalf("unexpected contents %#v", got.Contents)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "answer in French" {
		t.Fatalf("system instruction not forwarded")
	}
	if got.GenerationConfig.MaxOutputTokens != 64 || got.GenerationConfig.Temperature != 0.5 {
		t.Fatalf("generation config not forwarded: %#v", got.GenerationConfig)
	}

	if resp.Text() != "oui" {
		t.Fatalf("thought parts must be dropped, got %q", resp.Text())
	}
	if resp.ID != "resp-1" || resp.Model != "gemini-test-001" || resp.FinishReason != canonical.FinishLength {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.Usage.InputTokens != 6 || resp.Usage.OutputTokens != 1 {
		t.Fatalf("unexpected usage %#v", resp.Usage)
	}
}

func TestStream(t *testing.T) {
	t.Parallel()

	var path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Bon"}]},"index":0}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"jour"}]},"index":0}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":""}]},"finishReason":"STOP","index":0}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2,"totalTokenCount":7}}`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			w.(http.Flusher).Flush()
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := c.Stream(ctx, request())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var text strings.Builder
	var final *canonical.Delta
	for res := range results {
		if res.Err != nil {
			t.Fatalf("stream error: %v", res.Err)
		}
		if res.Delta.IsFinal {
			final = res.Delta
			continue
		}
		text.WriteString(res.Delta.Text)
	}

	if !strings.HasSuffix(path, ":streamGenerateContent") {
		t.Fatalf("unexpected upstream path %q", path)
	}
	if text.String() != "Bonjour" {
		t.Fatalf("unexpected text %q", text.String())
	}
	if final == nil || final.FinishReason != canonical.FinishStop || final.Usage.OutputTokens != 2 {
		t.Fatalf("unexpected final delta %#v", final)
	}
}

func TestStreamUpstreamError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`)
	})

	results, err := c.Stream(context.Background(), request())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var streamErr error
	for res := range results {
		if res.Err != nil {
			streamErr = res.Err
		}
	}
	if streamErr == nil || !strings.Contains(streamErr.Error(), "gemini backend") {
		t.Fatalf("expected wrapped upstream error, got %v", streamErr)
	}
}

func TestFinishReasonFromGemini(t *testing.T) {
	t.Parallel()

	cases := map[string]canonical.FinishReason{
		"":                        "",
		"STOP":                    canonical.FinishStop,
		"MAX_TOKENS":              canonical.FinishLength,
		"SAFETY":                  canonical.FinishContentFilter,
		"RECITATION":              canonical.FinishContentFilter,
		"MALFORMED_FUNCTION_CALL": canonical.FinishError,
		"LANGUAGE":                canonical.FinishOther,
	}
	for in, want := range cases {
		if got := FinishReasonFromGemini(in); got != want {
			t.Fatalf("FinishReasonFromGemini(%q) = %q, want %q", in, got, want)
		}
	}
}
