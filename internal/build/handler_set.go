package build

import (
	"context"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// HandlerSet fans every record out to several btclog handlers, so the same
// subsystem logger writes to the console and to the rotating log file.
type HandlerSet struct {
	level btclog.Level
	set   []btclogv2.Handler
}

// NewHandlerSet returns a set over handlers at the Info level.
func NewHandlerSet(handlers ...btclogv2.Handler) *HandlerSet {
	h := &HandlerSet{set: handlers}
	h.SetLevel(btclog.LevelInfo)

	return h
}

// derive builds a new set by applying f to every member, keeping the level.
func (h *HandlerSet) derive(
	f func(btclogv2.Handler) btclogv2.Handler) *HandlerSet {

	derived := &HandlerSet{
		level: h.level,
		set:   make([]btclogv2.Handler, len(h.set)),
	}
	for i, handler := range h.set {
		derived.set[i] = f(handler)
	}

	return derived
}

// Enabled reports whether every member handles records at level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	return slogSet(h.slogHandlers()).Enabled(ctx, level)
}

// Handle dispatches record to every member, stopping at the first error.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	return slogSet(h.slogHandlers()).Handle(ctx, record)
}

// WithAttrs returns a handler adding attrs to every record.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	return slogSet(h.slogHandlers()).WithAttrs(attrs)
}

// WithGroup returns a handler nesting attributes under name.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	return slogSet(h.slogHandlers()).WithGroup(name)
}

// SubSystem returns the set tagged with a subsystem name.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SubSystem(tag string) btclogv2.Handler {
	return h.derive(func(handler btclogv2.Handler) btclogv2.Handler {
		return handler.SubSystem(tag)
	})
}

// WithPrefix returns the set prefixing every message.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) WithPrefix(prefix string) btclogv2.Handler {
	return h.derive(func(handler btclogv2.Handler) btclogv2.Handler {
		return handler.WithPrefix(prefix)
	})
}

// SetLevel changes the level of every member.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, handler := range h.set {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level returns the current level.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) Level() btclog.Level {
	return h.level
}

func (h *HandlerSet) slogHandlers() []slog.Handler {
	handlers := make([]slog.Handler, len(h.set))
	for i, handler := range h.set {
		handlers[i] = handler
	}

	return handlers
}

var _ btclogv2.Handler = (*HandlerSet)(nil)

// slogSet is the plain slog.Handler fan-out that WithAttrs and WithGroup
// produce, since those return slog handlers rather than btclog ones.
type slogSet []slog.Handler

// Enabled implements slog.Handler.
func (s slogSet) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range s {
		if !handler.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

// Handle implements slog.Handler.
func (s slogSet) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range s {
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (s slogSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(slogSet, len(s))
	for i, handler := range s {
		derived[i] = handler.WithAttrs(attrs)
	}

	return derived
}

// WithGroup implements slog.Handler.
func (s slogSet) WithGroup(name string) slog.Handler {
	derived := make(slogSet, len(s))
	for i, handler := range s {
		derived[i] = handler.WithGroup(name)
	}

	return derived
}
