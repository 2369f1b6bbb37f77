package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"uk.co.dudmesh.hive/internal/model"
)

type followerRow struct {
	ID           string        `db:"id"`
	UserID       int64         `db:"user_id"`
	FederationID string        `db:"federation_id"`
	Inbox        string        `db:"inbox"`
	Object       string        `db:"object"`
	FollowAt     int64         `db:"follow_at"`
	UnfollowAt   sql.NullInt64 `db:"unfollow_at"`
}

func (r *followerRow) toModel() model.Follower {
	f := model.Follower{
		ID:           r.ID,
		UserID:       model.UserID(r.UserID),
		FederationID: r.FederationID,
		Inbox:        r.Inbox,
		Object:       []byte(r.Object),
		FollowAt:     time.Unix(r.FollowAt, 0).UTC(),
	}
	if r.UnfollowAt.Valid {
		at := time.Unix(r.UnfollowAt.Int64, 0).UTC()
		f.UnfollowAt = &at
	}
	return f
}

// AddFollower records follower, reactivating a previous follow from the same
// actor.
func (s *Store) AddFollower(ctx context.Context, follower *model.Follower) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`insert into followers
		(id, user_id, federation_id, inbox, object, follow_at, unfollow_at)
		values (?, ?, ?, ?, ?, ?, null)
		on conflict (user_id, federation_id) do update set
			inbox = excluded.inbox,
			object = excluded.object,
			follow_at = excluded.follow_at,
			unfollow_at = null`),
		follower.ID, int64(follower.UserID), follower.FederationID, follower.Inbox,
		string(follower.Object), follower.FollowAt.Unix())
	if err != nil {
		return fmt.Errorf("inserting follower: %w", err)
	}
	return nil
}

func (s *Store) RemoveFollower(ctx context.Context, userID model.UserID, federationID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`update followers set unfollow_at = ?
		where user_id = ? and federation_id = ? and unfollow_at is null`),
		at.Unix(), int64(userID), federationID)
	if err != nil {
		return fmt.Errorf("removing follower: %w", err)
	}
	if rows, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	} else if rows == 0 {
		return model.ErrorFollowerNotFound
	}
	return nil
}

// Followers lists the active followers of userID, oldest first.
func (s *Store) Followers(ctx context.Context, userID model.UserID) ([]model.Follower, error) {
	rows := []followerRow{}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`select * from followers
		where user_id = ? and unfollow_at is null
		order by follow_at, id`), int64(userID))
	if err != nil {
		return nil, fmt.Errorf("fetching followers: %w", err)
	}

	followers := make([]model.Follower, 0, len(rows))
	for i := range rows {
		followers = append(followers, rows[i].toModel())
	}
	return followers, nil
}
