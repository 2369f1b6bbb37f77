package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"uk.co.dudmesh.hive/internal/model"
)

type keyRow struct {
	UserID     int64          `db:"user_id"`
	PublicKey  sql.NullString `db:"public_key"`
	PrivateKey sql.NullString `db:"private_key"`
}

// KeyPairFor joins the selected user with its signing key. A missing user is
// ErrorUserNotFound; a user without a key row is ErrorNoKeyProvisioned.
func (s *Store) KeyPairFor(ctx context.Context, sel Selector) (*model.SigningKeyPair, error) {
	if sel.empty {
		return nil, model.ErrorUserNotFound
	}
	row := &keyRow{}
	err := s.db.GetContext(ctx, row, s.db.Rebind(`select u.id as user_id, k.public_key, k.private_key
		from users u left join signing_keys k on k.user_id = u.id
		where u.`+sel.column+` = ?`), sel.value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorUserNotFound
		}
		return nil, fmt.Errorf("fetching signing key for %s: %w", sel, err)
	}

	if !row.PrivateKey.Valid || !row.PublicKey.Valid {
		return nil, model.ErrorNoKeyProvisioned
	}

	return &model.SigningKeyPair{
		UserID:        model.UserID(row.UserID),
		PublicKeyPem:  row.PublicKey.String,
		PrivateKeyPem: row.PrivateKey.String,
	}, nil
}

func (s *Store) privateKeyFor(ctx context.Context, sel Selector) (string, error) {
	keys, err := s.KeyPairFor(ctx, sel)
	if err != nil {
		return "", err
	}
	return keys.PrivateKeyPem, nil
}

func (s *Store) PrivateKeyByUserID(ctx context.Context, id model.UserID) (string, error) {
	return s.privateKeyFor(ctx, ByUserID(id))
}

func (s *Store) PrivateKeyByUsername(ctx context.Context, name string) (string, error) {
	return s.privateKeyFor(ctx, ByUsername(name))
}

func (s *Store) PrivateKeyByFederationID(ctx context.Context, federationID string) (string, error) {
	return s.privateKeyFor(ctx, ByFederationID(federationID))
}

// PutKeyPair provisions or rotates the key pair of an existing user.
func (s *Store) PutKeyPair(ctx context.Context, keys *model.SigningKeyPair) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`insert into signing_keys (user_id, public_key, private_key)
		values (?, ?, ?)
		on conflict (user_id) do update set public_key = excluded.public_key, private_key = excluded.private_key`),
		int64(keys.UserID), keys.PublicKeyPem, keys.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("storing signing key: %w", err)
	}
	return nil
}
