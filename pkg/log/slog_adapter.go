package log

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event as one "protocol" record.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Variant != "" {
		attrs = append(attrs, slog.String("variant", event.Variant))
	}

	switch {
	case event.Packet != nil:
		p := event.Packet
		attrs = append(attrs,
			slog.String("tcode", p.TCode.String()),
			slog.String("offset", hex48(p.Offset)),
			slog.Int("size", p.Size),
		)
		if p.RCode != nil {
			attrs = append(attrs, slog.String("rcode", p.RCode.String()))
		}
		if p.Latency != nil {
			attrs = append(attrs, slog.Duration("latency", *p.Latency))
		}
	case event.Vendor != nil:
		v := event.Vendor
		attrs = append(attrs,
			slog.String("protocol", v.Protocol.String()),
			slog.Int("size", v.Size),
		)
		if v.Protocol == VendorEFW {
			attrs = append(attrs,
				slog.Uint64("seqnum", uint64(v.Seqnum)),
				slog.Uint64("efw_category", uint64(v.Category)),
				slog.Uint64("efw_command", uint64(v.Command)),
			)
		}
		if v.Status != nil {
			attrs = append(attrs, slog.Uint64("status", uint64(*v.Status)))
		}
	case event.Notification != nil:
		attrs = append(attrs,
			slog.String("kind", event.Notification.Kind),
			slog.Uint64("value", uint64(event.Notification.Value)),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

func hex48(v uint64) string {
	return fmt.Sprintf("0x%012x", v)
}

var _ Logger = (*SlogAdapter)(nil)
