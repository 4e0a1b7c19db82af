package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if l, ok := logLevels[strings.ToLower(*logLevel)]; ok {
		level = l
	}
	handler := &loggingHandler{
		level: level,
	}
	return slog.New(handler)
}

type loggingHandler struct {
	level slog.Level
	attrs []slog.Attr
}

var _ slog.Handler = (*loggingHandler)(nil)

func (lh *loggingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lh.level
}

func (lh *loggingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(lh.attrs)+len(attrs))
	combined = append(combined, lh.attrs...)
	for _, attr := range attrs {
		if !attr.Equal(slog.Attr{}) {
			combined = append(combined, attr)
		}
	}
	return &loggingHandler{
		level: lh.level,
		attrs: combined,
	}
}

func (lh *loggingHandler) WithGroup(_ string) slog.Handler {
	panic("not implemented")
}

const copyOutcomeAttrKey = "__copy_outcome"

func (lh *loggingHandler) Handle(_ context.Context, record slog.Record) error {
	var builder strings.Builder

	if !record.Time.IsZero() {
		builder.WriteRune('[')
		builder.WriteString(record.Time.Format(time.RFC3339))
		builder.WriteString("] ")
	}

	switch record.Level {
	case slog.LevelWarn:
		builder.WriteString("[WARN] ")
	case slog.LevelError:
		builder.WriteString("[ERROR] ")
	default:
	}

	var outcomeStr string
	for _, attr := range lh.attrs {
		if attr.Key == copyOutcomeAttrKey {
			outcomeStr = attr.Value.String()
			break
		}
	}
	if outcomeStr == "" {
		record.Attrs(func(a slog.Attr) bool {
			if a.Key == copyOutcomeAttrKey {
				outcomeStr = a.Value.String()
				return false
			}
			return true
		})
	}
	if oc := copyOutcome(outcomeStr); oc.valid() {
		switch oc {
		case outcomeCopied: // green (32)
			builder.WriteString("\x1b[32m")
		case outcomeLinked: // cyan (36)
			builder.WriteString("\x1b[36m")
		case outcomeReplaced: // yellow (33)
			builder.WriteString("\x1b[33m")
		case outcomeFailed: // red (31)
			builder.WriteString("\x1b[31m")
		default:
			panic("unreachable")
		}
		builder.WriteRune('[')
		builder.WriteString(string(oc))
		builder.WriteString("]\x1b[0m ")
	}

	builder.WriteString(record.Message)

	for _, attr := range lh.attrs {
		if attr.Key == copyOutcomeAttrKey {
			continue
		}
		builder.WriteRune(' ')
		builder.WriteString(attr.Key)
		builder.WriteString("=")
		builder.WriteString(attr.Value.String())
	}

	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == copyOutcomeAttrKey {
			return true
		}
		builder.WriteRune(' ')
		builder.WriteString(attr.Key)
		builder.WriteString("=")
		builder.WriteString(attr.Value.String())
		return true
	})

	fmt.Println(builder.String())

	return nil
}
