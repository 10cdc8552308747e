package core

import (
	"context"
	"fmt"
	"time"
)

type runIDKey struct{}

// NewRunID returns an identifier for one synchronization pass.
func NewRunID() string {
	return fmt.Sprintf("run-%d", time.Now().UnixNano())
}

func WithRunID(ctx context.Context, runID string) context.Context {
	if ctx == nil || runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(runIDKey{}).(string); ok {
		return v
	}
	return ""
}
