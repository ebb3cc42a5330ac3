package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook wraps message handling. A BeforeHandle error skips the
// handler and sends the message down the failure path (OnError, DLQ,
// commit).
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error)
	AfterHandle(ctx context.Context, km kafka.Message, err error)
	OnError(ctx context.Context, km kafka.Message, err error)
}

// NoopHook does nothing.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ kafka.Message) (context.Context, error) {
	return ctx, nil
}
func (NoopHook) AfterHandle(context.Context, kafka.Message, error) {}
func (NoopHook) OnError(context.Context, kafka.Message, error)     {}

// HookFuncs adapts plain functions to ConsumerHook. Nil functions are no-ops.
type HookFuncs struct {
	Before func(context.Context, kafka.Message) (context.Context, error)
	After  func(context.Context, kafka.Message, error)
	Err    func(context.Context, kafka.Message, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error) {
	if h.Before == nil {
		return ctx, nil
	}
	return h.Before(ctx, km)
}

func (h HookFuncs) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	if h.After != nil {
		h.After(ctx, km, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, km kafka.Message, err error) {
	if h.Err != nil {
		h.Err(ctx, km, err)
	}
}

// HookError is returned when a hook rejects or panics on a message.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

// HookChain runs hooks in order before the handler and in reverse order
// after it. A panicking hook is converted to a HookError and never crashes
// the worker.
type HookChain struct {
	hooks []ConsumerHook
}

func NewHookChain(hooks ...ConsumerHook) *HookChain {
	c := &HookChain{}
	for _, h := range hooks {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
	return c
}

func (c *HookChain) BeforeHandle(ctx context.Context, km kafka.Message) (out context.Context, err error) {
	out = ctx
	for _, h := range c.hooks {
		next, herr := safeBefore(h, out, km)
		if herr != nil {
			c.OnError(out, km, herr)
			return out, herr
		}
		out = next
	}
	return out, nil
}

func (c *HookChain) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		h := c.hooks[i]
		guard(func() { h.AfterHandle(ctx, km, err) })
	}
}

func (c *HookChain) OnError(ctx context.Context, km kafka.Message, err error) {
	for _, h := range c.hooks {
		h := h
		guard(func() { h.OnError(ctx, km, err) })
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, km kafka.Message) (out context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = ctx, &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.BeforeHandle(ctx, km)
}

func guard(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

type ctxKey string

// CtxRequestID holds the request id taken from the message headers.
const CtxRequestID ctxKey = "kafka_request_id"

// Header returns the value of the named header, or "".
func Header(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// RequestIDHook copies the request_id header into the context.
func RequestIDHook() ConsumerHook {
	return HookFuncs{Before: func(ctx context.Context, km kafka.Message) (context.Context, error) {
		if id := Header(km, "request_id"); id != "" {
			ctx = context.WithValue(ctx, CtxRequestID, id)
		}
		return ctx, nil
	}}
}

// RequestID returns the id stored by RequestIDHook.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(CtxRequestID).(string)
	return id
}
