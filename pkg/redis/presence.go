package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	PresenceKeyPrefix = "im:presence:user:"  // presence record per user, with TTL
	LastSeenKeyPrefix = "im:last_seen:user:" // unix seconds of the last disconnect
	OnlineUsersKey    = "im:online:users"    // set of online user IDs
	PresenceTTL       = 2 * time.Minute      // twice the heartbeat period
)

// PresenceData is the mirrored presence record
type PresenceData struct {
	UserID      uint      `json:"user_id"`
	ConnID      string    `json:"conn_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// PresenceStore mirrors the in-process presence registry into Redis so
// other processes and the admin console can read it.
type PresenceStore struct {
	client *redis.Client
}

// NewPresenceStore creates the redis presence mirror
func NewPresenceStore(client *redis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

func presenceKey(userID uint) string { return fmt.Sprintf("%s%d", PresenceKeyPrefix, userID) }
func lastSeenKey(userID uint) string { return fmt.Sprintf("%s%d", LastSeenKeyPrefix, userID) }

// SetOnline stores the record and adds the user to the online set
func (s *PresenceStore) SetOnline(ctx context.Context, userID uint, connID string, at time.Time) error {
	data, err := json.Marshal(PresenceData{UserID: userID, ConnID: connID, ConnectedAt: at})
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, presenceKey(userID), data, PresenceTTL)
	pipe.SAdd(ctx, OnlineUsersKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// SetOffline drops the record and stores the last seen time
func (s *PresenceStore) SetOffline(ctx context.Context, userID uint, lastSeen time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, presenceKey(userID))
	pipe.SRem(ctx, OnlineUsersKey, userID)
	pipe.Set(ctx, lastSeenKey(userID), lastSeen.Unix(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear presence: %w", err)
	}
	return nil
}

// Refresh extends the record TTL on heartbeat
func (s *PresenceStore) Refresh(ctx context.Context, userID uint) error {
	ok, err := s.client.Expire(ctx, presenceKey(userID), PresenceTTL).Result()
	if err != nil {
		return fmt.Errorf("refresh presence: %w", err)
	}
	if !ok {
		return errors.New("presence record expired")
	}
	return nil
}

// Get returns nil, nil when the user has no live record
func (s *PresenceStore) Get(ctx context.Context, userID uint) (*PresenceData, error) {
	raw, err := s.client.Get(ctx, presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	var p PresenceData
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode presence: %w", err)
	}
	return &p, nil
}

// Online lists users with a live record. Set members whose record
// expired are removed on the way.
func (s *PresenceStore) Online(ctx context.Context) ([]PresenceData, error) {
	members, err := s.client.SMembers(ctx, OnlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list online users: %w", err)
	}

	out := make([]PresenceData, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		p, err := s.Get(ctx, uint(id))
		if err != nil {
			return nil, err
		}
		if p == nil {
			s.client.SRem(ctx, OnlineUsersKey, member)
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// LastSeen returns the zero time when unknown
func (s *PresenceStore) LastSeen(ctx context.Context, userID uint) (time.Time, error) {
	sec, err := s.client.Get(ctx, lastSeenKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last seen: %w", err)
	}
	return time.Unix(sec, 0), nil
}
