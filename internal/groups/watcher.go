package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/eternisai/group-notifier/internal/logger"
)

// Sink receives change events from the watcher. It may block to apply back-pressure.
type Sink func(ctx context.Context, ev ChangeEvent) error

// Watcher holds a standing snapshot listener on the groups collection.
type Watcher struct {
	client     *firestore.Client
	collection string
	retryDelay time.Duration
	logger     *logger.Logger
}

// NewWatcher creates a change feed watcher for the given collection.
func NewWatcher(client *firestore.Client, collection string, retryDelay time.Duration, logger *logger.Logger) *Watcher {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &Watcher{
		client:     client,
		collection: collection,
		retryDelay: retryDelay,
		logger:     logger.WithComponent("watcher"),
	}
}

// Run listens until ctx is cancelled, re-subscribing after stream failures.
func (w *Watcher) Run(ctx context.Context, sink Sink) error {
	w.logger.Info("listening for group changes", slog.String("collection", w.collection))

	for {
		err := w.listen(ctx, sink)
		if ctx.Err() != nil {
			w.logger.Info("group watcher stopped")
			return nil
		}

		w.logger.Error("group snapshot stream failed, re-subscribing",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", w.retryDelay))

		select {
		case <-ctx.Done():
			w.logger.Info("group watcher stopped")
			return nil
		case <-time.After(w.retryDelay):
		}
	}
}

func (w *Watcher) listen(ctx context.Context, sink Sink) error {
	it := w.client.Collection(w.collection).Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("snapshot iterator: %w", err)
		}

		for _, change := range snap.Changes {
			ev, err := eventFromChange(change)
			if err != nil {
				w.logger.Warn("skipping undecodable group document",
					slog.String("doc_id", change.Doc.Ref.ID),
					slog.String("error", err.Error()))
				continue
			}

			if err := sink(ctx, ev); err != nil {
				return fmt.Errorf("dispatch sink rejected event for group %s: %w", ev.Group.ID, err)
			}
		}
	}
}

func eventFromChange(change firestore.DocumentChange) (ChangeEvent, error) {
	var group Group
	if err := change.Doc.DataTo(&group); err != nil {
		return ChangeEvent{}, err
	}
	return newChangeEvent(change.Kind, change.Doc.Ref.ID, group), nil
}

func newChangeEvent(kind firestore.DocumentChangeKind, docID string, group Group) ChangeEvent {
	if group.ID == "" {
		group.ID = docID
	}

	ev := ChangeEvent{
		ID:         logger.GenerateEventID(),
		Kind:       kindOf(kind),
		Group:      group,
		ReceivedAt: time.Now(),
	}
	ev.Kind = ev.EffectiveKind()
	return ev
}

func kindOf(kind firestore.DocumentChangeKind) ChangeKind {
	switch kind {
	case firestore.DocumentAdded:
		return ChangeCreated
	case firestore.DocumentRemoved:
		return ChangeDeleted
	default:
		return ChangeUpdated
	}
}
