// Package stream re-emits a backend delta channel in a dialect's streaming
// wire format.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
	"dialectgate/internal/llm"
)

type State int

const (
	StateIdle State = iota
	StateStarted
	StateStreaming
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarted:
		return "started"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transport is the outbound side of one stream. Send must push the frame to
// the client before returning.
type Transport interface {
	Open(contentType string) error
	Send(frame []byte) error
	Close() error
}

// Opener requests the backend delta channel. The context it receives is
// cancelled when the translator returns.
type Opener func(ctx context.Context) (<-chan llm.StreamResult, error)

// ErrNotStarted wraps failures that happened before anything was written,
// so callers can still answer with a regular error response.
var ErrNotStarted = errors.New("stream not started")

type Summary struct {
	Deltas       int
	FinishReason canonical.FinishReason
	Usage        *canonical.Usage
	State        State
}

// Translator drives one stream. A zero IdleTimeout waits forever.
type Translator struct {
	Adapter      dialect.Adapter
	IdleTimeout  time.Duration
	Logger       *zap.Logger
	OnTransition func(from, to State)

	state State
}

func (t *Translator) State() State { return t.state }

func (t *Translator) moveTo(s State) {
	from := t.state
	t.state = s
	if t.OnTransition != nil {
		t.OnTransition(from, s)
	}
}

// Run streams until the backend finishes, fails, goes idle or ctx ends.
func (t *Translator) Run(ctx context.Context, tr Transport, meta canonical.StreamMeta, open Opener) (Summary, error) {
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.state = StateIdle
	sum := Summary{FinishReason: canonical.FinishStop}
	finish := func(err error) (Summary, error) {
		sum.State = t.state
		return sum, err
	}

	results, err := open(ctx)
	if err != nil {
		t.moveTo(StateErrored)
		return finish(fmt.Errorf("%w: %w", ErrNotStarted, canonical.NewBackendError("backend stream failed", err)))
	}

	start, err := t.Adapter.EncodeStreamStart(meta)
	if err != nil {
		t.moveTo(StateErrored)
		return finish(fmt.Errorf("%w: encode stream start: %w", ErrNotStarted, err))
	}
	if err := tr.Open(t.Adapter.StreamContentType()); err != nil {
		t.moveTo(StateErrored)
		return finish(fmt.Errorf("open transport: %w", err))
	}
	defer tr.Close()

	t.moveTo(StateStarted)
	if err := send(tr, start); err != nil {
		t.moveTo(StateErrored)
		return finish(err)
	}

	var idle <-chan time.Time
	var timer *time.Timer
	if t.IdleTimeout > 0 {
		timer = time.NewTimer(t.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	fail := func(cause error) (Summary, error) {
		t.moveTo(StateErrored)
		if werr := send(tr, t.Adapter.EncodeStreamError(meta, cause)); werr != nil {
			logger.Warn("stream error frame not delivered", zap.Error(werr))
		}
		return finish(cause)
	}

	for {
		select {
		case <-ctx.Done():
			t.moveTo(StateErrored)
			logger.Info("stream cancelled", zap.Int("deltas", sum.Deltas), zap.Error(ctx.Err()))
			return finish(ctx.Err())

		case <-idle:
			logger.Warn("backend stream idle", zap.Duration("idle_timeout", t.IdleTimeout))
			return fail(canonical.NewBackendError("no data from backend", canonical.ErrIdleTimeout))

		case res, ok := <-results:
			if !ok {
				res = llm.StreamResult{Delta: &canonical.Delta{IsFinal: true, FinishReason: sum.FinishReason}}
			}
			if res.Err != nil {
				logger.Warn("backend stream failed", zap.Int("deltas", sum.Deltas), zap.Error(res.Err))
				return fail(canonical.NewBackendError("backend stream failed", res.Err))
			}
			if res.Delta == nil {
				continue
			}

			d := *res.Delta
			t.moveTo(StateStreaming)
			frame, err := t.Adapter.EncodeStreamDelta(meta, d)
			if err != nil {
				return fail(fmt.Errorf("encode stream delta: %w", err))
			}
			if err := send(tr, frame); err != nil {
				t.moveTo(StateErrored)
				return finish(err)
			}
			if d.Text != "" {
				sum.Deltas++
			}
			if d.FinishReason != "" {
				sum.FinishReason = d.FinishReason
			}
			if d.Usage != nil {
				sum.Usage = d.Usage
			}

			if d.IsFinal {
				end, err := t.Adapter.EncodeStreamEnd(meta, canonical.StreamEnd{
					FinishReason: sum.FinishReason,
					Usage:        sum.Usage,
				})
				if err != nil {
					return fail(fmt.Errorf("encode stream end: %w", err))
				}
				if err := send(tr, end); err != nil {
					t.moveTo(StateErrored)
					return finish(err)
				}
				t.moveTo(StateCompleted)
				return finish(nil)
			}

			if timer != nil {
				timer.Reset(t.IdleTimeout)
			}
		}
	}
}

func send(tr Transport, frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	if err := tr.Send(frame); err != nil {
		return fmt.Errorf("write stream frame: %w", err)
	}
	return nil
}
