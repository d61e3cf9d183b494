package log

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

// SlogAdapter mirrors capture events onto a structured logger. Each payload
// is rendered as its own attribute group. Error events are logged at Warn,
// everything else at Debug.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(e Event) {
	level := slog.LevelDebug
	if e.Error != nil {
		level = slog.LevelWarn
	}
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs,
		slog.String("conn_id", e.ConnectionID),
		slog.String("direction", e.Direction.String()),
		slog.String("layer", e.Layer.String()),
	)
	attrs = appendNonEmpty(attrs, "remote", e.RemoteAddr)
	attrs = appendNonEmpty(attrs, "endpoint", e.Endpoint)
	attrs = appendNonEmpty(attrs, "location", e.Location)

	switch {
	case e.Datagram != nil:
		attrs = append(attrs, slog.Group("datagram",
			slog.Int("size", e.Datagram.Size),
			slog.Bool("truncated", e.Datagram.Truncated),
		))
	case e.Message != nil:
		attrs = append(attrs, slog.Attr{Key: "coap", Value: slog.GroupValue(messageAttrs(e.Message)...)})
	case e.StateChange != nil:
		sc := e.StateChange
		attrs = append(attrs, slog.Group("state",
			slog.String("entity", sc.Entity.String()),
			slog.String("from", sc.OldState),
			slog.String("to", sc.NewState),
			slog.String("reason", sc.Reason),
		))
	case e.Control != nil:
		attrs = append(attrs, slog.Group("control",
			slog.String("type", e.Control.Type.String()),
			slog.Uint64("msg_id", uint64(e.Control.MessageID)),
		))
	case e.Error != nil:
		errAttrs := []any{
			slog.String("layer", e.Error.Layer.String()),
			slog.String("text", e.Error.Message),
		}
		if e.Error.Context != "" {
			errAttrs = append(errAttrs, slog.String("context", e.Error.Context))
		}
		if e.Error.Code != nil {
			errAttrs = append(errAttrs, slog.Int("code", *e.Error.Code))
		}
		attrs = append(attrs, slog.Group("error", errAttrs...))
	}

	a.logger.LogAttrs(ctx, level, "capture "+e.Category.String(), attrs...)
}

func messageAttrs(m *MessageEvent) []slog.Attr {
	out := []slog.Attr{
		slog.String("kind", m.Type.String()),
		slog.String("code", coap.Code(m.Code).String()),
		slog.Uint64("id", uint64(m.MessageID)),
		slog.String("token", hex.EncodeToString(m.Token)),
	}
	out = appendNonEmpty(out, "op", m.Operation)
	out = appendNonEmpty(out, "path", m.Path)
	out = appendNonEmpty(out, "block", m.Block)
	if m.Observe != nil {
		out = append(out, slog.Uint64("observe", uint64(*m.Observe)))
	}
	if m.ProcessingTime != nil {
		out = append(out, slog.Duration("took", *m.ProcessingTime))
	}
	return out
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}

var _ Logger = (*SlogAdapter)(nil)
