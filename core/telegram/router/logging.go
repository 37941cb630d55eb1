package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// handled runs fn as handler name and reports it once: a handler.handled
// line plus the handled and latency collectors.
func handled(c tele.Context, name string, start time.Time, fn tele.HandlerFunc, extra ...slog.Attr) error {
	tghelpers.WithHandler(c, name)
	err := fn(c)
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	report(c, name, outcome, outcome, time.Since(start), err, extra)
	return err
}

// skipped reports an update that no handler took.
func skipped(c tele.Context, name string, start time.Time) {
	tghelpers.WithHandler(c, name)
	report(c, name, "skip", "ok", time.Since(start), nil, nil)
}

func report(c tele.Context, name, status, outcome string, took time.Duration, err error, extra []slog.Attr) {
	middleware.CollectorsFrom(c).ObserveHandled(name, outcome, took)

	msgs, kb := middleware.GetCounters(c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", took),
	}, extra...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	// Rebuilt after the handler ran so an owner it attached is included.
	ctx := tghelpers.BuildContext(c)
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// errorCode prefers an explicit Code() anywhere in the chain and falls back
// to the error's type name, e.g. WRAPERROR.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	typ := fmt.Sprintf("%T", err)
	return strings.ToUpper(typ[strings.LastIndexByte(typ, '.')+1:])
}
