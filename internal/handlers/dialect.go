package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dialectgate/internal/cache"
	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
	"dialectgate/internal/llm"
	"dialectgate/internal/metrics"
	"dialectgate/internal/stream"
	"dialectgate/pkg/logging/logging"
)

// Options carries the dependencies shared by every dialect endpoint.
type Options struct {
	Backend       llm.Client
	BackendKind   string
	DefaultModel  string
	OverrideModel bool

	Cache     cache.ExactCache // nil disables caching
	CacheTTL  time.Duration
	VersionID string

	RequestTimeout time.Duration // non-streaming dispatch, 0 means none
	IdleTimeout    time.Duration // gap between stream deltas, 0 means none
}

// DialectHandler serves one wire dialect: decode, dispatch, re-encode.
type DialectHandler struct {
	adapter dialect.Adapter
	opts    Options
}

func NewDialectHandler(adapter dialect.Adapter, opts Options) *DialectHandler {
	if opts.VersionID == "" {
		opts.VersionID = "v1"
	}
	return &DialectHandler{adapter: adapter, opts: opts}
}

// ServeHTTP handles endpoints whose route carries no model or action.
func (h *DialectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Handle(w, r, dialect.Route{})
}

// Handle runs one request. route supplies facts taken from the URL.
func (h *DialectHandler) Handle(w http.ResponseWriter, r *http.Request, route dialect.Route) {
	name := h.adapter.Name()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = canonical.Decodef("request body exceeds %d bytes", maxErr.Limit)
		} else {
			err = canonical.WrapDecode(err, "could not read request body")
		}
		h.fail(w, r, false, err)
		return
	}

	req, err := h.adapter.DecodeRequest(body, route)
	if err != nil {
		logging.L(r.Context()).Warn("invalid request", zap.String("dialect", name), zap.Error(err))
		h.fail(w, r, false, err)
		return
	}

	ctx := logging.WithFields(r.Context(),
		zap.String("dialect", name),
		zap.String("model", req.Model),
		zap.Bool("stream", req.Stream),
	)
	r = r.WithContext(ctx)

	if req.Stream {
		h.stream(w, r, req)
		return
	}
	h.complete(w, r, req)
}

func (h *DialectHandler) complete(w http.ResponseWriter, r *http.Request, req *canonical.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var cacheKey string
	if h.opts.Cache != nil {
		key, err := cache.BuildExactCacheKey(req, h.opts.BackendKind, h.opts.VersionID)
		if err != nil {
			logger.Warn("key_builder_error", zap.Error(err))
		} else {
			cacheKey = key.String()
		}
	}

	// ---- Tier 1 exact cache lookup ----
	if cacheKey != "" {
		if resp, ok := h.cached(ctx, cacheKey); ok {
			resp.ID = h.newID()
			resp.Created = time.Now()
			logger.Info("cache_decision",
				zap.String("cache_tier", "exact"),
				zap.Bool("cache_hit", true),
				zap.Duration("total_latency_ms", time.Since(start)),
			)
			h.respond(w, r, resp)
			return
		}
	}

	// ---- Backend dispatch ----
	dispatchCtx := ctx
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	llmStart := time.Now()
	resp, err := h.opts.Backend.Complete(dispatchCtx, req)
	llmLatency := time.Since(llmStart)
	if err != nil {
		err = canonical.NewBackendError("backend request failed", err)
		metrics.BackendErrorsTotal.WithLabelValues(h.opts.BackendKind, outcome(err)).Inc()
		logger.Error("backend dispatch failed",
			zap.Duration("llm_latency_ms", llmLatency),
			zap.Error(err),
		)
		h.fail(w, r, false, err)
		return
	}

	h.fillResponse(resp, req)

	if cacheKey != "" {
		if raw, err := json.Marshal(resp); err != nil {
			logger.Warn("marshal_response_error", zap.Error(err))
		} else if err := h.opts.Cache.Set(ctx, cacheKey, raw, h.opts.CacheTTL); err != nil {
			logger.Warn("exact_cache_set_error", zap.Error(err))
		}
	}

	logger.Info("request completed",
		zap.Bool("cache_hit", false),
		zap.String("finish_reason", string(resp.FinishReason)),
		zap.Duration("llm_latency_ms", llmLatency),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	h.respond(w, r, resp)
}

// cached treats every cache failure as a miss.
func (h *DialectHandler) cached(ctx context.Context, key string) (*canonical.Response, bool) {
	raw, hit, err := h.opts.Cache.Get(ctx, key)
	if err != nil || !hit {
		return nil, false
	}
	var resp canonical.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		logging.L(ctx).Warn("exact_cache_unmarshal_error", zap.Error(err))
		return nil, false
	}
	return &resp, true
}

func (h *DialectHandler) fillResponse(resp *canonical.Response, req *canonical.Request) {
	if resp.ID == "" {
		resp.ID = h.newID()
	}
	if resp.Model == "" {
		resp.Model = h.modelFor(req)
	}
	if resp.Role == "" {
		resp.Role = canonical.RoleAssistant
	}
	if resp.FinishReason == "" {
		resp.FinishReason = canonical.FinishStop
	}
	if resp.Created.IsZero() {
		resp.Created = time.Now()
	}
}

func (h *DialectHandler) respond(w http.ResponseWriter, r *http.Request, resp *canonical.Response) {
	body, err := h.adapter.EncodeResponse(resp)
	if err != nil {
		h.fail(w, r, false, canonical.NewBackendError("could not encode response", err))
		return
	}
	metrics.TranslationsTotal.WithLabelValues(h.adapter.Name(), "false", "ok").Inc()
	writeJSON(w, http.StatusOK, body)
}

func (h *DialectHandler) stream(w http.ResponseWriter, r *http.Request, req *canonical.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	name := h.adapter.Name()

	meta := canonical.StreamMeta{
		ID:      h.newID(),
		Model:   h.modelFor(req),
		Created: time.Now(),
	}

	t := &stream.Translator{
		Adapter:     h.adapter,
		IdleTimeout: h.opts.IdleTimeout,
		Logger:      logger,
		OnTransition: func(from, to stream.State) {
			switch {
			case to == stream.StateStarted:
				metrics.ActiveStreams.WithLabelValues(name).Inc()
			case (to == stream.StateCompleted || to == stream.StateErrored) && from != stream.StateIdle:
				metrics.ActiveStreams.WithLabelValues(name).Dec()
			}
		},
	}

	sum, err := t.Run(ctx, &httpTransport{w: w}, meta, func(ctx context.Context) (<-chan llm.StreamResult, error) {
		return h.opts.Backend.Stream(ctx, req)
	})
	metrics.StreamDeltasTotal.WithLabelValues(name).Add(float64(sum.Deltas))

	if errors.Is(err, stream.ErrNotStarted) {
		metrics.BackendErrorsTotal.WithLabelValues(h.opts.BackendKind, outcome(err)).Inc()
		logger.Error("stream could not start", zap.Error(err))
		h.fail(w, r, true, err)
		return
	}
	if err != nil && canonical.IsBackend(err) && !errors.Is(err, context.Canceled) {
		metrics.BackendErrorsTotal.WithLabelValues(h.opts.BackendKind, outcome(err)).Inc()
	}

	metrics.TranslationsTotal.WithLabelValues(name, "true", outcome(err)).Inc()
	logger.Info("stream finished",
		zap.String("state", sum.State.String()),
		zap.Int("deltas", sum.Deltas),
		zap.String("finish_reason", string(sum.FinishReason)),
		zap.Error(err),
	)
}

// fail writes err in the dialect's envelope. Only valid before any byte of
// the response was written.
func (h *DialectHandler) fail(w http.ResponseWriter, r *http.Request, streaming bool, err error) {
	status, body := h.adapter.EncodeError(err)
	metrics.TranslationsTotal.WithLabelValues(h.adapter.Name(), strconv.FormatBool(streaming), outcome(err)).Inc()
	if status >= http.StatusInternalServerError {
		logging.L(r.Context()).Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func (h *DialectHandler) modelFor(req *canonical.Request) string {
	return llm.ResolveModel(req.Model, h.opts.DefaultModel, h.opts.OverrideModel)
}

// newID mints an id in the shape the dialect's clients expect.
func (h *DialectHandler) newID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	switch h.adapter.Name() {
	case "anthropic":
		return "msg_" + id
	case "openai":
		return "chatcmpl-" + id
	}
	return id
}

// outcome labels an error for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case canonical.IsTimeout(err):
		return "timeout"
	case canonical.IsDecode(err):
		return "decode_error"
	case canonical.IsUnsupported(err):
		return "unsupported"
	case canonical.KindOf(err) == canonical.KindNotFound:
		return "not_found"
	}
	return "backend_error"
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
