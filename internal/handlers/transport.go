package handlers

import (
	"errors"
	"fmt"
	"net/http"
)

// httpTransport writes stream frames to the client, flushing after each one.
type httpTransport struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (t *httpTransport) Open(contentType string) error {
	t.rc = http.NewResponseController(t.w)

	h := t.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// nginx buffers event streams otherwise
	h.Set("X-Accel-Buffering", "no")
	t.w.WriteHeader(http.StatusOK)

	return t.flush()
}

func (t *httpTransport) Send(frame []byte) error {
	if _, err := t.w.Write(frame); err != nil {
		return err
	}
	return t.flush()
}

func (t *httpTransport) Close() error {
	return nil
}

func (t *httpTransport) flush() error {
	if err := t.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
