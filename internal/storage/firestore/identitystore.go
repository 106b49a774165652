package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

const collectionName = "installations"

// IdentityStore implements push.IdentityStore using Google Cloud Firestore.
// One document per app id: installations/{appID}.
type IdentityStore struct {
	client *firestore.Client
	now    func() time.Time
}

var _ push.IdentityStore = (*IdentityStore)(nil)

func NewIdentityStore(client *firestore.Client) *IdentityStore {
	return &IdentityStore{client: client, now: time.Now}
}

// identityRecord is the internal DB representation.
type identityRecord struct {
	AppID          string    `firestore:"app_id"`
	PlayerID       string    `firestore:"player_id,omitempty"`
	DeviceToken    string    `firestore:"device_token,omitempty"`
	InstallationID string    `firestore:"installation_id,omitempty"`
	UpdatedAt      time.Time `firestore:"updated_at"`
}

func (s *IdentityStore) Load(ctx context.Context, appID string) (*push.Identity, error) {
	doc, err := s.docRef(appID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, push.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("firestore get failed: %w", err)
	}

	var record identityRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("corrupt identity document %s: %w", appID, err)
	}

	return &push.Identity{
		AppID:          record.AppID,
		PlayerID:       record.PlayerID,
		DeviceToken:    record.DeviceToken,
		InstallationID: record.InstallationID,
	}, nil
}

func (s *IdentityStore) Save(ctx context.Context, identity push.Identity) error {
	record := identityRecord{
		AppID:          identity.AppID,
		PlayerID:       identity.PlayerID,
		DeviceToken:    identity.DeviceToken,
		InstallationID: identity.InstallationID,
		UpdatedAt:      s.now().UTC(),
	}

	// Set overwrites the whole document so cleared fields do not linger.
	if _, err := s.docRef(identity.AppID).Set(ctx, record); err != nil {
		return fmt.Errorf("firestore set failed: %w", err)
	}
	return nil
}

func (s *IdentityStore) Clear(ctx context.Context, appID string) error {
	// Deleting a missing document is not an error in Firestore.
	if _, err := s.docRef(appID).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete failed: %w", err)
	}
	return nil
}

// --- Helpers ---

func (s *IdentityStore) docRef(appID string) *firestore.DocumentRef {
	return s.client.Collection(collectionName).Doc(appID)
}
