package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a JSON slog logger configured at the provided level. If the
// level string is invalid it defaults to info.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New writing to w.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With(slog.String("service", "onboarding"))
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// MaskIdentifier hides all but the last four characters of a phone number or
// the local part of an email, for log lines.
func MaskIdentifier(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == '@' {
			if i <= 1 {
				return v
			}
			return v[:1] + "***" + v[i:]
		}
	}
	if len(v) <= 4 {
		return v
	}
	return "******" + v[len(v)-4:]
}
