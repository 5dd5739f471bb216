package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/HendryAvila/archpipe/internal/logging"
)

// PromptHook observes every request issued through a hooked client.
type PromptHook interface {
	Before(ctx context.Context, phase, prompt string, input any)
	After(ctx context.Context, phase string, raw json.RawMessage, err error)
}

// WithHook wraps base so hook sees each GenerateJSON call.
func WithHook(base Client, hook PromptHook) Client {
	return &hooked{base: base, hook: hook}
}

type hooked struct {
	base Client
	hook PromptHook
}

func (h *hooked) Name() string { return h.base.Name() }
func (h *hooked) Close() error { return h.base.Close() }

func (h *hooked) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	phase := PhaseFrom(ctx)
	ctx = context.WithValue(ctx, ctxKeyStart{}, time.Now())
	h.hook.Before(ctx, phase, prompt, input)
	raw, err := h.base.GenerateJSON(ctx, prompt, input)
	h.hook.After(ctx, phase, raw, err)
	return raw, err
}

type ctxKeyStart struct{}

// elapsedFrom returns the time since the hooked call started.
func elapsedFrom(ctx context.Context) time.Duration {
	if t, ok := ctx.Value(ctxKeyStart{}).(time.Time); ok {
		return time.Since(t)
	}
	return 0
}

// LogHook logs request sizes, latency and failures.
type LogHook struct {
	log    *logging.Logger
	client string
}

// NewLogHook returns a hook logging through log under the client's name.
func NewLogHook(log *logging.Logger, client string) *LogHook {
	return &LogHook{log: logging.OrNop(log), client: client}
}

func (l *LogHook) Before(_ context.Context, phase, prompt string, _ any) {
	l.log.Debug("llm request", "client", l.client, "phase", phase, "prompt_bytes", len(prompt))
}

func (l *LogHook) After(ctx context.Context, phase string, raw json.RawMessage, err error) {
	elapsed := elapsedFrom(ctx)
	if err != nil {
		l.log.Warn("llm request failed", "client", l.client, "phase", phase, "elapsed", elapsed, "error", err)
		return
	}
	l.log.Debug("llm response", "client", l.client, "phase", phase, "bytes", len(raw), "elapsed", elapsed)
}
