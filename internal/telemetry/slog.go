package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// logHandler tees slog records into the global OTel LoggerProvider. Until
// Setup installs a provider the OTel side is a no-op.
type logHandler struct {
	next   slog.Handler
	logger otellog.Logger
	attrs  []otellog.KeyValue
	prefix string
}

// NewLogHandler wraps next so every record it accepts is also emitted as an
// OTel log record under the given instrumentation scope.
func NewLogHandler(next slog.Handler, scope string) slog.Handler {
	return &logHandler{next: next, logger: global.GetLoggerProvider().Logger(scope)}
}

func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	var rec otellog.Record
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(r.Message))
	rec.SetSeverity(severity(r.Level))
	rec.SetSeverityText(r.Level.String())
	rec.AddAttributes(h.attrs...)

	var kvs []otellog.KeyValue
	r.Attrs(func(a slog.Attr) bool {
		kvs = appendAttr(kvs, h.prefix, a)
		return true
	})
	rec.AddAttributes(kvs...)
	h.logger.Emit(ctx, rec)

	return h.next.Handle(ctx, r)
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	c.attrs = append([]otellog.KeyValue(nil), h.attrs...)
	for _, a := range attrs {
		c.attrs = appendAttr(c.attrs, h.prefix, a)
	}
	return &c
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.next = h.next.WithGroup(name)
	c.prefix = h.prefix + name + "."
	return &c
}

func severity(l slog.Level) otellog.Severity {
	switch {
	case l >= slog.LevelError:
		return otellog.SeverityError
	case l >= slog.LevelWarn:
		return otellog.SeverityWarn
	case l >= slog.LevelInfo:
		return otellog.SeverityInfo
	default:
		return otellog.SeverityDebug
	}
}

// appendAttr flattens groups into dotted keys.
func appendAttr(kvs []otellog.KeyValue, prefix string, a slog.Attr) []otellog.KeyValue {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return kvs
	}
	key := prefix + a.Key

	switch v.Kind() {
	case slog.KindGroup:
		p := prefix
		if a.Key != "" {
			p = key + "."
		}
		for _, ga := range v.Group() {
			kvs = appendAttr(kvs, p, ga)
		}
		return kvs
	case slog.KindString:
		return append(kvs, otellog.String(key, v.String()))
	case slog.KindInt64:
		return append(kvs, otellog.Int64(key, v.Int64()))
	case slog.KindUint64:
		return append(kvs, otellog.Int64(key, int64(v.Uint64())))
	case slog.KindFloat64:
		return append(kvs, otellog.Float64(key, v.Float64()))
	case slog.KindBool:
		return append(kvs, otellog.Bool(key, v.Bool()))
	case slog.KindDuration:
		return append(kvs, otellog.String(key, v.Duration().String()))
	case slog.KindTime:
		return append(kvs, otellog.String(key, v.Time().Format(time.RFC3339Nano)))
	default:
		if err, ok := v.Any().(error); ok {
			return append(kvs, otellog.String(key, err.Error()))
		}
		return append(kvs, otellog.String(key, fmt.Sprint(v.Any())))
	}
}
