package canonical

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestRequestValidate(t *testing.T) {
	t.Parallel()

	ok := []Message{{Role: RoleUser, Content: []ContentBlock{TextBlock("hi")}}}

	cases := []struct {
		name    string
		req     *Request
		wantErr bool
	}{
		{name: "nil", req: nil, wantErr: true},
		{name: "no messages", req: &Request{Model: "m"}, wantErr: true},
		{name: "bad role", req: &Request{Messages: []Message{{Role: "model"}}}, wantErr: true},
		{name: "zero max tokens", req: &Request{Messages: ok, MaxOutputTokens: intPtr(0)}, wantErr: true},
		{name: "max tokens beyond int32", req: &Request{Messages: ok, MaxOutputTokens: intPtr(math.MaxInt32 + 1)}, wantErr: true},
		{name: "max tokens at int32 limit", req: &Request{Messages: ok, MaxOutputTokens: intPtr(math.MaxInt32)}},
		{name: "temperature too high", req: &Request{Messages: ok, Temperature: floatPtr(2.5)}, wantErr: true},
		{name: "top_p negative", req: &Request{Messages: ok, TopP: floatPtr(-0.1)}, wantErr: true},
		{name: "valid minimal", req: &Request{Messages: ok}},
		{
			name: "same role repeated is allowed",
			req: &Request{Messages: []Message{
				{Role: RoleUser, Content: []ContentBlock{TextBlock("a")}},
				{Role: RoleUser, Content: []ContentBlock{TextBlock("b")}},
			}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewRequest(tc.req)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected validation error")
				}
				if KindOf(err) != KindValidation || !IsDecode(err) {
					t.Fatalf("expected validation kind, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	plain := errors.New("connection refused")
	wrapped := NewBackendError("upstream call failed", plain)

	if !IsBackend(plain) {
		t.Fatalf("plain errors must classify as backend")
	}
	if !errors.Is(wrapped, plain) {
		t.Fatalf("backend error must unwrap to its cause")
	}
	if got := MessageOf(wrapped); got != "upstream call failed: connection refused" {
		t.Fatalf("unexpected message: %q", got)
	}

	unsupported := Unsupportedf("content block %q", "image")
	if NewBackendError("x", unsupported) != error(unsupported) {
		t.Fatalf("existing gateway errors must keep their kind")
	}
	if !IsUnsupported(fmt.Errorf("decode: %w", unsupported)) {
		t.Fatalf("wrapped unsupported error not detected")
	}

	timeout := NewBackendError("stream stalled", ErrIdleTimeout)
	if !IsTimeout(timeout) {
		t.Fatalf("idle timeout must be a timeout")
	}
	if !IsTimeout(NewBackendError("deadline", context.DeadlineExceeded)) {
		t.Fatalf("deadline exceeded must be a timeout")
	}
}

func TestResponseText(t *testing.T) {
	t.Parallel()

	resp := &Response{Content: []ContentBlock{
		TextBlock("Hello, "),
		{Kind: "tool_use", Raw: []byte(`{"name":"x"}`)},
		TextBlock("world"),
	}}
	if got := resp.Text(); got != "Hello, world" {
		t.Fatalf("unexpected text: %q", got)
	}
}
