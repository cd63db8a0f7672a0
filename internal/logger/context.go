package logger

import (
	"context"

	"github.com/google/uuid"
)

// WithEventID adds a change event ID to the context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, ContextKeyEventID, eventID)
}

// WithGroupID adds a group ID to the context.
func WithGroupID(ctx context.Context, groupID string) context.Context {
	return context.WithValue(ctx, ContextKeyGroupID, groupID)
}

// WithRecipient adds the recipient user ID to the context.
func WithRecipient(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ContextKeyRecipient, uid)
}

// WithOperation adds an operation name to the context.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, ContextKeyOperation, operation)
}

// GenerateEventID generates a new change event ID.
func GenerateEventID() string {
	return uuid.New().String()
}
