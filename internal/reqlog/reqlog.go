// Package reqlog writes the one log line every served request gets, for
// both the gRPC service and the admin HTTP surface.
package reqlog

import (
	"context"
	"log/slog"
	"time"
)

// Outcome classifies how a request ended.
type Outcome int

const (
	// Succeeded requests log at Info.
	Succeeded Outcome = iota
	// CallerFault requests were rejected because of their input and log at
	// Warn.
	CallerFault
	// Failed requests broke inside the server or its backend and log at Error.
	Failed
)

func (o Outcome) level() slog.Level {
	switch o {
	case Succeeded:
		return slog.LevelInfo
	case CallerFault:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Entry describes one served request.
type Entry struct {
	Transport string
	IP        string
	Method    string
	Duration  time.Duration
	Code      string
	Reason    string
	Outcome   Outcome
	Err       error
}

func (e Entry) User() slog.Attr {
	return slog.Group("user", "ip", e.IP)
}

func (e Entry) Request() slog.Attr {
	attrs := []any{
		"transport", e.Transport,
		"method", e.Method,
		"duration_ms", float64(e.Duration.Nanoseconds()) / float64(time.Millisecond),
		"code", e.Code,
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	return slog.Group("request", attrs...)
}

// Log writes e to the default logger at the level its Outcome implies.
func (e Entry) Log(ctx context.Context) {
	args := []any{e.User(), e.Request()}
	if e.Err != nil {
		args = append(args, "error", e.Err)
	}
	slog.Log(ctx, e.Outcome.level(), "Request", args...)
}
