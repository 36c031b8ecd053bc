// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"log/slog"
)

// levelHandler drops records below a runtime adjustable level before the
// wrapped handler sees them.
type levelHandler struct {
	level   *slog.LevelVar
	handler slog.Handler
}

func newLevelHandler(h slog.Handler, level *slog.LevelVar) *levelHandler {
	if lh, ok := h.(*levelHandler); ok {
		h = lh.handler
	}
	return &levelHandler{level: level, handler: h}
}

func (h *levelHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() && h.handler.Enabled(ctx, l)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}
