package observability

import (
	"context"

	"github.com/rs/zerolog"
)

// ZerologObserver emits events through a zerolog.Logger. Event levels map to
// zerolog's level set, the event type becomes the log message, and Data keys
// are attached as structured fields.
type ZerologObserver struct {
	logger zerolog.Logger
}

// NewZerologObserver creates a ZerologObserver that emits to the given logger.
func NewZerologObserver(logger zerolog.Logger) *ZerologObserver {
	return &ZerologObserver{logger: logger}
}

func (o *ZerologObserver) OnEvent(ctx context.Context, event Event) {
	zl := o.logger.WithLevel(event.Level.zerologLevel()).
		Str("source", event.Source).
		Time("timestamp", event.Timestamp)
	for k, v := range event.Data {
		zl = zl.Interface(k, v)
	}
	zl.Msg(string(event.Type))
}

// zerologLevel maps a Level to the nearest zerolog.Level.
func (l Level) zerologLevel() zerolog.Level {
	switch {
	case l <= 8:
		return zerolog.DebugLevel
	case l <= 12:
		return zerolog.InfoLevel
	case l <= 16:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
