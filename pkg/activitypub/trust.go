package activitypub

import (
	"fmt"
	"time"

	"uk.co.dudmesh.hive/pkg/identifier"
)

// TrustedKeyRecord is only ever produced by ValidateKeyOwnership.
type TrustedKeyRecord struct {
	ActorURL     string    `json:"actorUrl"`
	PublicKeyPem string    `json:"publicKeyPem"`
	VerifiedAt   time.Time `json:"verifiedAt"`
}

type OwnerMismatchError struct {
	Expected string
	Actual   string
}

func (e *OwnerMismatchError) Error() string {
	return fmt.Sprintf("activitypub: key owner mismatch: expected %q, got %q", e.Expected, e.Actual)
}

// ValidateKeyOwnership accepts the key in actor only when its declared owner
// is byte-for-byte the URL that was dereferenced to obtain it. No
// normalization is applied: a trailing slash or a different scheme is a
// mismatch.
func ValidateKeyOwnership(requestedURL identifier.ActorURL, actor *RemoteActor) (*TrustedKeyRecord, error) {
	if actor.PublicKey.Owner != string(requestedURL) {
		return nil, &OwnerMismatchError{
			Expected: string(requestedURL),
			Actual:   actor.PublicKey.Owner,
		}
	}

	return &TrustedKeyRecord{
		ActorURL:     string(requestedURL),
		PublicKeyPem: actor.PublicKey.PublicKeyPem,
		VerifiedAt:   time.Now().UTC(),
	}, nil
}
