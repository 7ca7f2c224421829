package log

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/onronder/ContentLabTech-sub011/pkg/requestid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StructuredLogger traces named operations. Steps and successes are written at debug
// level, errors at error level.
type StructuredLogger struct {
	logger *zap.Logger
	ctx    context.Context
}

func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{logger: zap.L().Named(name)}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *StructuredLogger {
	return &StructuredLogger{logger: l.logger, ctx: ctx}
}

func (l *StructuredLogger) Operation(name string) *OperationBuilder {
	fields := []zap.Field{zap.String("operation", name)}
	if l.ctx != nil {
		if id := requestid.FromContext(l.ctx); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
	}
	return &OperationBuilder{logger: l.logger, operation: name, fields: fields}
}

type OperationBuilder struct {
	logger    *zap.Logger
	operation string
	fields    []zap.Field
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value))
	return b
}

func (b *OperationBuilder) WithInt(key string, value int) *OperationBuilder {
	b.fields = append(b.fields, zap.Int(key, value))
	return b
}

func (b *OperationBuilder) WithBool(key string, value bool) *OperationBuilder {
	b.fields = append(b.fields, zap.Bool(key, value))
	return b
}

func (b *OperationBuilder) WithUUID(key string, value uuid.UUID) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value.String()))
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, zap.Any(key, value))
	return b
}

func (b *OperationBuilder) Build() *OperationTracer {
	logger := b.logger.With(b.fields...)
	logger.Debug(fmt.Sprintf("%s started", b.operation))
	return &OperationTracer{logger: logger, operation: b.operation, start: time.Now()}
}

type OperationTracer struct {
	logger    *zap.Logger
	operation string
	start     time.Time
}

func (t *OperationTracer) Step(name string) *Entry {
	return &Entry{
		logger: t.logger,
		level:  zapcore.DebugLevel,
		msg:    fmt.Sprintf("%s: %s", t.operation, name),
		fields: []zap.Field{zap.String("step", name)},
	}
}

func (t *OperationTracer) Error(err error) *Entry {
	return &Entry{
		logger: t.logger,
		level:  zapcore.ErrorLevel,
		msg:    fmt.Sprintf("%s failed", t.operation),
		fields: []zap.Field{zap.Error(err), zap.Duration("duration", time.Since(t.start))},
	}
}

func (t *OperationTracer) Success() *Entry {
	return &Entry{
		logger: t.logger,
		level:  zapcore.DebugLevel,
		msg:    fmt.Sprintf("%s succeeded", t.operation),
		fields: []zap.Field{zap.Duration("duration", time.Since(t.start))},
	}
}

// Entry is a single log line of an operation. Nothing is written until Log is called.
type Entry struct {
	logger *zap.Logger
	level  zapcore.Level
	msg    string
	fields []zap.Field
}

func (e *Entry) WithString(key, value string) *Entry {
	e.fields = append(e.fields, zap.String(key, value))
	return e
}

func (e *Entry) WithInt(key string, value int) *Entry {
	e.fields = append(e.fields, zap.Int(key, value))
	return e
}

func (e *Entry) WithBool(key string, value bool) *Entry {
	e.fields = append(e.fields, zap.Bool(key, value))
	return e
}

func (e *Entry) WithUUID(key string, value uuid.UUID) *Entry {
	e.fields = append(e.fields, zap.String(key, value.String()))
	return e
}

func (e *Entry) WithParam(key string, value any) *Entry {
	e.fields = append(e.fields, zap.Any(key, value))
	return e
}

func (e *Entry) Log() {
	if ce := e.logger.Check(e.level, e.msg); ce != nil {
		ce.Write(e.fields...)
	}
}
