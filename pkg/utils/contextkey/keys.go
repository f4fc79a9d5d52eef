package contextkey

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	UserID    key = "user_id"
	RoomCode  key = "room_code"
)

// WithTrace stores the trace and request ids carried by every log line of a request.
func WithTrace(ctx context.Context, traceID, requestID string) context.Context {
	ctx = context.WithValue(ctx, TraceID, traceID)
	return context.WithValue(ctx, RequestID, requestID)
}

// WithUserID stores the authenticated caller.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserID, strconv.FormatInt(userID, 10))
}

// WithRoomCode tags ctx with a competition room. Codes are stored upper-cased.
func WithRoomCode(ctx context.Context, code string) context.Context {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ctx
	}
	return context.WithValue(ctx, RoomCode, code)
}

// String returns the value stored under k, or "" when absent.
func String(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	v := ctx.Value(k)
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
