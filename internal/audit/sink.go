package audit

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// LogSink writes entries as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Write(_ context.Context, e Entry) error {
	ev := s.log.Info().
		Str("type", "audit").
		Str("audit_id", e.ID).
		Str("event", string(e.Event)).
		Time("ts", e.Timestamp)
	if e.UserID != "" {
		ev = ev.Str("user_id", e.UserID)
	}
	if e.Email != "" {
		ev = ev.Str("email", e.Email)
	}
	if e.TokenID != "" {
		ev = ev.Str("token_id", e.TokenID)
	}
	if e.IP != "" {
		ev = ev.Str("ip", e.IP)
	}
	if e.UserAgent != "" {
		ev = ev.Str("user_agent", e.UserAgent)
	}
	if e.RequestID != "" {
		ev = ev.Str("request_id", e.RequestID)
	}
	if len(e.Details) > 0 {
		d := zerolog.Dict()
		for k, v := range e.Details {
			d = d.Str(k, v)
		}
		ev = ev.Dict("details", d)
	}
	ev.Msg("audit")
	return nil
}

// Fanout writes every entry to each sink and joins their errors.
func Fanout(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, e Entry) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Write(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
