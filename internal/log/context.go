// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

// Correlation keys, in the order they are added to log lines.
var correlationFields = []struct {
	key   ctxKey
	field string
}{
	{ctxKey(FieldRequestID), FieldRequestID},
	{ctxKey(FieldJobID), FieldJobID},
	{ctxKey(FieldStage), FieldStage},
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func valueOf(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID tags ctx with an HTTP request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, ctxKey(FieldRequestID), id)
}

// ContextWithJobID tags ctx with an update job ID.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	return withValue(ctx, ctxKey(FieldJobID), id)
}

// ContextWithStage tags ctx with the lifecycle stage being dispatched.
func ContextWithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, ctxKey(FieldStage), stage)
}

func RequestIDFromContext(ctx context.Context) string { return valueOf(ctx, ctxKey(FieldRequestID)) }

func JobIDFromContext(ctx context.Context) string { return valueOf(ctx, ctxKey(FieldJobID)) }

func StageFromContext(ctx context.Context) string { return valueOf(ctx, ctxKey(FieldStage)) }

// WithContext adds the correlation fields found in ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	for _, f := range correlationFields {
		if v := valueOf(ctx, f.key); v != "" {
			builder = builder.Str(f.field, v)
			added = true
		}
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a component logger enriched with the
// correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
