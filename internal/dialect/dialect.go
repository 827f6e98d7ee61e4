// Package dialect defines the contract every wire format adapter satisfies
// and the framing helpers they share.
package dialect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dialectgate/internal/canonical"
)

// Route carries request facts that live outside the body, such as the
// model and action segments of a Gemini URL.
type Route struct {
	Model  string
	Stream bool
}

// Adapter translates one wire dialect to and from the canonical model.
// Implementations hold no mutable state; one value serves every request.
type Adapter interface {
	Name() string

	DecodeRequest(body []byte, route Route) (*canonical.Request, error)
	EncodeResponse(resp *canonical.Response) ([]byte, error)
	EncodeError(err error) (status int, body []byte)

	StreamContentType() string
	EncodeStreamStart(meta canonical.StreamMeta) ([]byte, error)
	EncodeStreamDelta(meta canonical.StreamMeta, d canonical.Delta) ([]byte, error)
	EncodeStreamEnd(meta canonical.StreamMeta, end canonical.StreamEnd) ([]byte, error)
	EncodeStreamError(meta canonical.StreamMeta, err error) []byte
}

const EventStream = "text/event-stream"

// StatusFor maps an error to the HTTP status every dialect uses for it.
func StatusFor(err error) int {
	switch canonical.KindOf(err) {
	case canonical.KindDecode, canonical.KindValidation, canonical.KindUnsupported:
		return http.StatusBadRequest
	case canonical.KindNotFound:
		return http.StatusNotFound
	}
	if canonical.IsTimeout(err) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// SSEFrame renders one server-sent event. An empty event name produces a
// bare data line.
func SSEFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", eventName(event), err)
	}

	var buf bytes.Buffer
	if event != "" {
		buf.WriteString("event: ")
		buf.WriteString(event)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// IsJSONString reports whether raw holds a JSON string literal.
func IsJSONString(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '"'
}

// IsNull reports an absent or explicit null value.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Unix returns t as epoch seconds, using the current time when t is unset.
func Unix(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}

func eventName(event string) string {
	if event == "" {
		return "data"
	}
	return event
}
