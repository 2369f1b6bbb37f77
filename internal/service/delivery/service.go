// Package delivery posts signed activities to remote inboxes.
package delivery

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/labstack/gommon/log"

	"uk.co.dudmesh.hive/internal/model"
	"uk.co.dudmesh.hive/pkg/activitypub"
	"uk.co.dudmesh.hive/pkg/crypt"
)

type StatusError struct {
	Inbox string
	Code  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("delivery: %s responded with status %d", e.Inbox, e.Code)
}

type Keys interface {
	PrivateKeyByUserID(ctx context.Context, id model.UserID) (string, error)
}

type Poster interface {
	PostSigned(ctx context.Context, url string, contentType string, body []byte, keyID string, privateKey *rsa.PrivateKey) (int, []byte, error)
}

type service struct {
	keys   Keys
	client Poster
}

func New(keys Keys, client Poster) *service {
	return &service{
		keys:   keys,
		client: client,
	}
}

// Deliver signs activity as sender and posts it to inbox. The private key is
// looked up for this call only. Retries are left to the caller.
func (s *service) Deliver(ctx context.Context, sender *model.User, inbox string, activity interface{}) error {
	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}

	privateKeyPem, err := s.keys.PrivateKeyByUserID(ctx, sender.ID)
	if err != nil {
		return fmt.Errorf("looking up signing key for %s: %w", sender.Name, err)
	}
	privateKey, err := crypt.DecodePrivateKey(privateKeyPem)
	if err != nil {
		return fmt.Errorf("decoding signing key for %s: %w", sender.Name, err)
	}

	status, _, err := s.client.PostSigned(ctx, inbox, activitypub.ContentTypeActivityJSON, body,
		sender.FederationID+activitypub.MainKeyFragment, privateKey)
	if err != nil {
		return fmt.Errorf("delivering to %s: %w", inbox, err)
	}
	if status < 200 || status > 299 {
		return &StatusError{Inbox: inbox, Code: status}
	}

	log.Debugf("delivered activity from %s to %s", sender.FederationID, inbox)
	return nil
}

// Accept answers follow on behalf of user, embedding the original activity.
func (s *service) Accept(ctx context.Context, user *model.User, follow *model.Activity, inbox string) error {
	object, err := json.Marshal(follow)
	if err != nil {
		return fmt.Errorf("encoding follow: %w", err)
	}

	accept := &model.Activity{
		Context: activitypub.ActivityStreamsContext,
		ID:      fmt.Sprintf("%s#accepts/follows/%s", user.FederationID, model.CreateID()),
		Type:    model.ActivityTypeAccept,
		Actor:   user.FederationID,
		Object:  object,
	}

	return s.Deliver(ctx, user, inbox, accept)
}
