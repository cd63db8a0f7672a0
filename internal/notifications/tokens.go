package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/eternisai/group-notifier/internal/logger"
)

// TokenStore reads and deletes push notification tokens in Firestore.
// Tokens are stored at /{collection}/{token} with structure:
//
//	{uid: "user id", token: "fcm_token_...", timestamp: registeredAt}
type TokenStore struct {
	firestoreClient *firestore.Client
	collection      string
	logger          *logger.Logger
}

// NewTokenStore creates a new token store.
func NewTokenStore(firestoreClient *firestore.Client, collection string, logger *logger.Logger) *TokenStore {
	return &TokenStore{
		firestoreClient: firestoreClient,
		collection:      collection,
		logger:          logger.WithComponent("token-store"),
	}
}

// TokensFor returns every token registered by uid. No registrations is an empty slice.
func (ts *TokenStore) TokensFor(ctx context.Context, uid string) ([]DeliveryToken, error) {
	if uid == "" {
		return nil, status.Error(codes.InvalidArgument, "uid must be non-empty")
	}

	docs, err := ts.firestoreClient.Collection(ts.collection).
		Where("uid", "==", uid).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query push tokens for user %s: %w", uid, err)
	}

	tokens := make([]DeliveryToken, 0, len(docs))
	for _, doc := range docs {
		tokens = append(tokens, tokenFromData(doc.Ref.ID, doc.Data()))
	}

	return tokens, nil
}

// tokenFromData decodes a registration field by field so that an unexpected
// timestamp type never hides a deliverable token.
func tokenFromData(docID string, data map[string]interface{}) DeliveryToken {
	token := DeliveryToken{}
	token.UID, _ = data["uid"].(string)
	token.Token, _ = data["token"].(string)
	// Older registrations only carry the token as the document ID.
	if token.Token == "" {
		token.Token = docID
	}
	token.RegisteredAt = registeredAt(data["timestamp"])
	return token
}

// registeredAt accepts a Firestore timestamp or epoch milliseconds.
func registeredAt(v interface{}) time.Time {
	switch ts := v.(type) {
	case time.Time:
		return ts
	case int64:
		return time.UnixMilli(ts)
	case float64:
		return time.UnixMilli(int64(ts))
	default:
		return time.Time{}
	}
}

// DeleteToken removes a single token. Deleting a missing token succeeds.
func (ts *TokenStore) DeleteToken(ctx context.Context, token string) error {
	if token == "" {
		return status.Error(codes.InvalidArgument, "token must be non-empty")
	}

	_, err := ts.firestoreClient.Collection(ts.collection).Doc(token).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete push token: %w", err)
	}

	return nil
}

// DeleteExpiredBefore deletes every token registered before cutoff and returns
// how many were removed. Registrations store timestamp either as a Firestore
// timestamp or as epoch milliseconds; Firestore only compares values of the same
// type, so both forms are queried.
func (ts *TokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	col := ts.firestoreClient.Collection(ts.collection)
	queries := []firestore.Query{
		col.Where("timestamp", "<", cutoff).Select(),
		col.Where("timestamp", "<", cutoff.UnixMilli()).Select(),
	}

	bw := ts.firestoreClient.BulkWriter(ctx)
	var jobs []writeJob
	var queryErr error

	for _, q := range queries {
		if queryErr = enqueueDeletes(ctx, q, bw, &jobs); queryErr != nil {
			break
		}
	}

	// Deletes enqueued before a query failure still run.
	bw.End()

	ts.logger.WithContext(ctx).Debug("expired push tokens enqueued for deletion",
		slog.Time("cutoff", cutoff),
		slog.Int("count", len(jobs)))

	return countDeleted(jobs, queryErr)
}

func enqueueDeletes(ctx context.Context, q firestore.Query, bw *firestore.BulkWriter, jobs *[]writeJob) error {
	iter := q.Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query expired push tokens: %w", err)
		}

		job, err := bw.Delete(doc.Ref)
		if err != nil {
			return fmt.Errorf("failed to enqueue token deletion: %w", err)
		}
		*jobs = append(*jobs, job)
	}
}

// writeJob is the result side of a *firestore.BulkWriterJob.
type writeJob interface {
	Results() (*firestore.WriteResult, error)
}

// countDeleted waits for every job and reports the deletes that succeeded
// alongside any query or write failures.
func countDeleted(jobs []writeJob, queryErr error) (int, error) {
	deleted := 0
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}

	var err error
	if len(errs) > 0 {
		err = fmt.Errorf("failed to delete %d of %d expired push tokens: %w", len(errs), len(jobs), errors.Join(errs...))
	}

	return deleted, errors.Join(queryErr, err)
}
