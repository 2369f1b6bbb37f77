package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"uk.co.dudmesh.hive/internal/model"
)

// Selector picks a single local user by one of its unique columns.
type Selector struct {
	column string
	value  interface{}
	// matches no row, e.g. an id beyond what the id column can hold
	empty bool
}

func ByUserID(id model.UserID) Selector {
	if uint64(id) > math.MaxInt64 {
		return Selector{column: "id", value: uint64(id), empty: true}
	}
	return Selector{column: "id", value: int64(id)}
}

func ByUsername(name string) Selector {
	return Selector{column: "name", value: name}
}

func ByFederationID(federationID string) Selector {
	return Selector{column: "federation_id", value: federationID}
}

func (s Selector) String() string {
	return fmt.Sprintf("%s=%v", s.column, s.value)
}

type userRow struct {
	ID                        int64  `db:"id"`
	FederationID              string `db:"federation_id"`
	Name                      string `db:"name"`
	DisplayName               string `db:"display_name"`
	Email                     string `db:"email"`
	Summary                   string `db:"summary"`
	URL                       string `db:"url"`
	Inbox                     string `db:"inbox"`
	Outbox                    string `db:"outbox"`
	Following                 string `db:"following"`
	Followers                 string `db:"followers"`
	Featured                  string `db:"featured"`
	FeaturedTags              string `db:"featured_tags"`
	IconLocation              string `db:"icon_location"`
	ImageLocation             string `db:"image_location"`
	Discoverable              bool   `db:"discoverable"`
	ManuallyApprovesFollowers bool   `db:"manually_approves_followers"`
	Indexable                 bool   `db:"indexable"`
	Published                 int64  `db:"published"`
	Password                  string `db:"password"`
}

func (r *userRow) toModel() *model.User {
	return &model.User{
		ID:                        model.UserID(r.ID),
		FederationID:              r.FederationID,
		Name:                      r.Name,
		DisplayName:               r.DisplayName,
		Email:                     r.Email,
		Summary:                   r.Summary,
		URL:                       r.URL,
		Inbox:                     r.Inbox,
		Outbox:                    r.Outbox,
		Following:                 r.Following,
		Followers:                 r.Followers,
		Featured:                  r.Featured,
		FeaturedTags:              r.FeaturedTags,
		IconLocation:              r.IconLocation,
		ImageLocation:             r.ImageLocation,
		Discoverable:              r.Discoverable,
		ManuallyApprovesFollowers: r.ManuallyApprovesFollowers,
		Indexable:                 r.Indexable,
		Published:                 time.Unix(r.Published, 0).UTC(),
		Password:                  r.Password,
	}
}

// CreateUser inserts user and, when keys is not nil, its signing key pair in
// one transaction. user.ID is set from the generated id.
func (s *Store) CreateUser(ctx context.Context, user *model.User, keys *model.SigningKeyPair) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowxContext(ctx, tx.Rebind(`insert into users
		(federation_id, name, display_name, email, summary, url, inbox, outbox, following, followers,
		 featured, featured_tags, icon_location, image_location, discoverable,
		 manually_approves_followers, indexable, published, password)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		returning id`),
		user.FederationID, user.Name, user.DisplayName, user.Email, user.Summary, user.URL,
		user.Inbox, user.Outbox, user.Following, user.Followers, user.Featured, user.FeaturedTags,
		user.IconLocation, user.ImageLocation, user.Discoverable, user.ManuallyApprovesFollowers,
		user.Indexable, user.Published.Unix(), user.Password,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrorUserExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	if keys != nil {
		_, err = tx.ExecContext(ctx, tx.Rebind(`insert into signing_keys (user_id, public_key, private_key) values (?, ?, ?)`),
			id, keys.PublicKeyPem, keys.PrivateKeyPem)
		if err != nil {
			return fmt.Errorf("inserting signing key: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user: %w", err)
	}

	user.ID = model.UserID(id)
	if keys != nil {
		keys.UserID = user.ID
	}
	return nil
}

func (s *Store) UserBy(ctx context.Context, sel Selector) (*model.User, error) {
	if sel.empty {
		return nil, model.ErrorUserNotFound
	}
	row := &userRow{}
	err := s.db.GetContext(ctx, row, s.db.Rebind(`select * from users where `+sel.column+` = ?`), sel.value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrorUserNotFound
		}
		return nil, fmt.Errorf("fetching user %s: %w", sel, err)
	}
	return row.toModel(), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
