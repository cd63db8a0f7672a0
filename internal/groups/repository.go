package groups

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrGroupNotFound is returned when the group document no longer exists.
var ErrGroupNotFound = errors.New("group not found")

// Repository writes dispatch bookkeeping back onto group documents.
type Repository struct {
	client     *firestore.Client
	collection string
}

// NewRepository creates a repository over the given groups collection.
func NewRepository(client *firestore.Client, collection string) *Repository {
	return &Repository{
		client:     client,
		collection: collection,
	}
}

// MarkNotified advances the group's lastNotified watermark to the server time.
func (r *Repository) MarkNotified(ctx context.Context, groupID string) error {
	if groupID == "" {
		return status.Error(codes.InvalidArgument, "groupID must be non-empty")
	}

	_, err := r.client.Collection(r.collection).Doc(groupID).Update(ctx, []firestore.Update{
		{Path: "lastNotified", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
		}
		return fmt.Errorf("failed to update lastNotified for group %s: %w", groupID, err)
	}

	return nil
}
