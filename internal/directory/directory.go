package directory

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UserGetter is the subset of *auth.Client used to resolve email addresses.
type UserGetter interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

// Directory resolves member profile names from Firestore and email addresses from
// Firebase Auth.
type Directory struct {
	firestoreClient   *firestore.Client
	profileCollection string
	users             UserGetter
}

// New creates a directory. users may be nil when email lookups are not needed.
func New(firestoreClient *firestore.Client, profileCollection string, users UserGetter) *Directory {
	return &Directory{
		firestoreClient:   firestoreClient,
		profileCollection: profileCollection,
		users:             users,
	}
}

// DisplayName returns the profile name of uid.
// Path: /{profileCollection}/{uid}.name. A missing profile or name yields "".
func (d *Directory) DisplayName(ctx context.Context, uid string) (string, error) {
	doc, err := d.firestoreClient.Collection(d.profileCollection).Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to get profile for user %s: %w", uid, err)
	}

	name, _ := doc.Data()["name"].(string)
	return name, nil
}

// Email returns the account email of uid, or "" when the user has none.
func (d *Directory) Email(ctx context.Context, uid string) (string, error) {
	if d.users == nil {
		return "", nil
	}

	user, err := d.users.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get auth user %s: %w", uid, err)
	}

	if user == nil || user.UserInfo == nil {
		return "", nil
	}
	return user.Email, nil
}
