package redis

import (
	"context"
	"time"

	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/repository"

	goredis "github.com/redis/go-redis/v9"
)

const (
	presenceOnlineSet    = "presence:online"
	presenceLastSeenHash = "presence:last_seen"
)

// PresenceStore tracks which users have a live connection. Redis holds
// the authoritative online set so every process instance sees the same
// answer; last-seen is mirrored into the users table for history.
type PresenceStore struct {
	client *goredis.Client
	users  repository.UserRepository
}

func NewPresenceStore(client *goredis.Client, users repository.UserRepository) *PresenceStore {
	return &PresenceStore{client: client, users: users}
}

// SetOnline marks a user as having at least one live connection.
func (p *PresenceStore) SetOnline(ctx context.Context, u identity.Ref) error {
	if err := p.client.SAdd(ctx, presenceOnlineSet, u.Key()).Err(); err != nil {
		return err
	}
	if u.Role == identity.RolePatient && p.users != nil {
		return p.users.UpdateOnlineStatus(ctx, u.ID, true, time.Now())
	}
	return nil
}

// SetOffline marks a user's last connection as closed and records when.
func (p *PresenceStore) SetOffline(ctx context.Context, u identity.Ref, lastSeen time.Time) error {
	pipe := p.client.Pipeline()
	pipe.SRem(ctx, presenceOnlineSet, u.Key())
	pipe.HSet(ctx, presenceLastSeenHash, u.Key(), lastSeen.UTC().Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if u.Role == identity.RolePatient && p.users != nil {
		return p.users.UpdateOnlineStatus(ctx, u.ID, false, lastSeen)
	}
	return nil
}

// IsOnline reports whether the user has a live connection anywhere.
func (p *PresenceStore) IsOnline(ctx context.Context, u identity.Ref) (bool, error) {
	return p.client.SIsMember(ctx, presenceOnlineSet, u.Key()).Result()
}

// LastSeen returns the recorded disconnect time, or zero when the user
// was never seen.
func (p *PresenceStore) LastSeen(ctx context.Context, u identity.Ref) (time.Time, error) {
	raw, err := p.client.HGet(ctx, presenceLastSeenHash, u.Key()).Result()
	if err == goredis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}
