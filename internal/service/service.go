// Package service holds the message delivery, reaction and recall logic.
// Services take their collaborators explicitly and publish every
// mutation through the notification bus.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"im-social/internal/model"
	"im-social/internal/repository"
	"im-social/pkg/apperr"
	"im-social/pkg/bus"
	"im-social/pkg/db"
)

// Publisher is implemented by bus.Bus
type Publisher interface {
	Publish(ev bus.Event, userIDs ...uint)
	PublishAdmin(ev bus.Event)
	Emit(ev bus.Event, userIDs ...uint)
}

// OnlineChecker is implemented by websocket.Presence
type OnlineChecker interface {
	IsOnline(userID uint) bool
}

// BlockChecker is symmetric: IsBlocked(a, b) == IsBlocked(b, a)
type BlockChecker interface {
	IsBlocked(ctx context.Context, a, b uint) (bool, error)
}

// Clock returns the current time; tests replace it
type Clock func() time.Time

// eventName picks the direct or group variant of an event
func eventName(m *model.Message, direct, group string) string {
	if m.IsGroup() {
		return group
	}
	return direct
}

// conversations resolves who takes part in a message's conversation
type conversations struct {
	groups *repository.GroupRepository
}

// participants lists every user who can see m
func (c conversations) participants(ctx context.Context, m *model.Message) ([]uint, error) {
	if !m.IsGroup() {
		return []uint{m.SenderID, m.ReceiverID}, nil
	}
	ids, err := c.groups.MemberIDs(ctx, *m.GroupID)
	if err != nil {
		return nil, fmt.Errorf("load group members: %w", err)
	}
	return ids, nil
}

func (c conversations) isParticipant(ctx context.Context, m *model.Message, userID uint) (bool, error) {
	if !m.IsGroup() {
		return m.SenderID == userID || m.ReceiverID == userID, nil
	}
	member, err := c.groups.GetMember(ctx, *m.GroupID, userID)
	if err != nil {
		return false, fmt.Errorf("load group member: %w", err)
	}
	return member != nil, nil
}

// loadVisible fetches a message userID takes part in. Messages outside
// the user's conversations are reported as missing.
func loadVisible(ctx context.Context, messages *repository.MessageRepository, conv conversations, origin string, messageID, userID uint) (*model.Message, error) {
	m, err := messages.GetByID(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(origin, "message %d not found", messageID)
	}
	if err != nil {
		return nil, storeErr(origin, err)
	}
	ok, err := conv.isParticipant(ctx, m, userID)
	if err != nil {
		return nil, storeErr(origin, err)
	}
	if !ok {
		return nil, apperr.NotFound(origin, "message %d not found", messageID)
	}
	return m, nil
}

// dedupe keeps the first occurrence of each non-zero ID
func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// storeErr classifies a repository failure: lock contention surfaces as
// a transient storage error the caller may retry, anything else is internal.
func storeErr(origin string, err error) *apperr.AppError {
	if db.IsTransient(err) {
		return apperr.Transient(origin, err)
	}
	return apperr.Internal(origin, err)
}
