package llm

import (
	"context"
	"strings"

	"dialectgate/internal/canonical"
)

// StreamResult carries one delta or the error that ended the stream.
type StreamResult struct {
	Delta *canonical.Delta
	Err   error
}

// Client is the backend dispatch contract. Stream closes its channel once
// the final delta or an error has been delivered, or when ctx ends.
type Client interface {
	Complete(ctx context.Context, req *canonical.Request) (*canonical.Response, error)
	Stream(ctx context.Context, req *canonical.Request) (<-chan StreamResult, error)
}

// ResolveModel picks the model sent upstream.
func ResolveModel(requested, configured string, override bool) string {
	requested = strings.TrimSpace(requested)
	if configured != "" && (override || requested == "") {
		return configured
	}
	return requested
}

// Send delivers res unless ctx ends first.
func Send(ctx context.Context, ch chan<- StreamResult, res StreamResult) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- res:
		return true
	}
}
