package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"im-social/internal/model"
	"im-social/internal/repository"
	"im-social/pkg/apperr"
	"im-social/pkg/bus"
	"im-social/pkg/logger"

	"go.uber.org/zap"
)

const (
	defaultMaxReactionTypes = 3
	maxReactionTypeLen      = 32
)

// ReactResult describes one react call
type ReactResult struct {
	Reaction *model.Reaction `json:"reaction,omitempty"`
	Evicted  string          `json:"evicted,omitempty"`
	Applied  bool            `json:"applied"`
}

// ReactionService keeps at most maxTypes reaction types per user and
// message. Adding one more evicts the newest of the ones held, so the
// oldest stay.
type ReactionService struct {
	reactions *repository.ReactionRepository
	messages  *repository.MessageRepository
	bus       Publisher
	conv      conversations
	locks     *keyedMutex
	maxTypes  int
	now       Clock
}

// NewReactionService creates the reaction ledger. maxTypes <= 0 keeps the default of 3.
func NewReactionService(
	reactions *repository.ReactionRepository,
	messages *repository.MessageRepository,
	groups *repository.GroupRepository,
	publisher Publisher,
	maxTypes int,
) *ReactionService {
	if maxTypes <= 0 {
		maxTypes = defaultMaxReactionTypes
	}
	return &ReactionService{
		reactions: reactions,
		messages:  messages,
		bus:       publisher,
		conv:      conversations{groups: groups},
		locks:     newKeyedMutex(),
		maxTypes:  maxTypes,
		now:       time.Now,
	}
}

func reactionKey(userID, messageID uint) string {
	return fmt.Sprintf("%d:%d", userID, messageID)
}

// target loads the message and reports whether reactions on it apply
func (s *ReactionService) target(ctx context.Context, origin string, userID, messageID uint) (*model.Message, bool, error) {
	m, err := loadVisible(ctx, s.messages, s.conv, origin, messageID, userID)
	if err != nil {
		return nil, false, err
	}
	if m.IsDeletedForAll {
		return m, false, nil
	}
	hidden, err := s.messages.IsHidden(ctx, m.ID, userID)
	if err != nil {
		return nil, false, storeErr(origin, err)
	}
	return m, !hidden, nil
}

// ReactionSummary aggregates one reaction type on a message
type ReactionSummary struct {
	Type    string `json:"type"`
	Total   int    `json:"total"`
	UserIDs []uint `json:"user_ids"`
}

// Summary groups the reactions on messageID by type, ordered by the
// earliest reacted_at held for each type. Messages deleted for all or hidden by the viewer
// have none.
func (s *ReactionService) Summary(ctx context.Context, viewerID, messageID uint) ([]ReactionSummary, error) {
	const origin = "reaction.summary"

	m, applies, err := s.target(ctx, origin, viewerID, messageID)
	if err != nil {
		return nil, err
	}
	out := []ReactionSummary{}
	if !applies {
		return out, nil
	}

	rows, err := s.reactions.ListForMessage(ctx, m.ID)
	if err != nil {
		return nil, storeErr(origin, err)
	}
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.Type]
		if !ok {
			i = len(out)
			index[r.Type] = i
			out = append(out, ReactionSummary{Type: r.Type, UserIDs: []uint{}})
		}
		out[i].Total += r.Count
		out[i].UserIDs = append(out[i].UserIDs, r.UserID)
	}
	return out, nil
}

// React adds reactionType for userID on messageID
func (s *ReactionService) React(ctx context.Context, userID, messageID uint, reactionType string) (ReactResult, error) {
	const origin = "reaction.react"

	reactionType = strings.TrimSpace(reactionType)
	if reactionType == "" || utf8.RuneCountInString(reactionType) > maxReactionTypeLen {
		return ReactResult{}, apperr.Validation(origin, "reaction type must be 1-%d characters", maxReactionTypeLen)
	}

	m, ok, err := s.target(ctx, origin, userID, messageID)
	if err != nil || !ok {
		return ReactResult{}, err
	}

	unlock := s.locks.Lock(reactionKey(userID, messageID))
	defer unlock()

	var result ReactResult
	at := s.now()
	err = s.reactions.Transaction(ctx, func(tx *repository.ReactionRepository) error {
		held, err := tx.ListForUser(ctx, userID, messageID)
		if err != nil {
			return err
		}

		for i := range held {
			if held[i].Type == reactionType {
				if err := tx.Bump(ctx, held[i].ID, at); err != nil {
					return err
				}
				held[i].Count++
				held[i].ReactedAt = at
				result.Reaction = &held[i]
				return nil
			}
		}

		if len(held) >= s.maxTypes {
			victim := held[s.maxTypes-1]
			if err := tx.DeleteByID(ctx, victim.ID); err != nil {
				return err
			}
			result.Evicted = victim.Type
		}

		r := &model.Reaction{UserID: userID, MessageID: messageID, Type: reactionType, Count: 1, ReactedAt: at}
		if err := tx.Insert(ctx, r); err != nil {
			return err
		}
		result.Reaction = r
		return nil
	})
	if err != nil {
		return ReactResult{}, storeErr(origin, err)
	}
	result.Applied = true

	participants, err := s.conv.participants(ctx, m)
	if err != nil {
		logger.Warn("reaction fan-out skipped", zap.Uint("message_id", m.ID), zap.Error(err))
		return result, nil
	}
	if result.Evicted != "" {
		s.bus.Emit(bus.Event{
			Type: eventName(m, EventMessageUnreacted, EventGroupUnreacted),
			Data: reactionPayload{MessageID: m.ID, GroupID: m.GroupID, UserID: userID, Type: result.Evicted},
		}, participants...)
	}
	s.bus.Emit(bus.Event{
		Type: eventName(m, EventMessageReacted, EventGroupReacted),
		Data: reactionPayload{MessageID: m.ID, GroupID: m.GroupID, UserID: userID, Type: reactionType, Count: result.Reaction.Count},
	}, participants...)

	return result, nil
}

// Unreact removes reactionType, or every reaction of userID on the
// message when reactionType is empty. It returns the removed types.
func (s *ReactionService) Unreact(ctx context.Context, userID, messageID uint, reactionType string) ([]string, error) {
	const origin = "reaction.unreact"

	m, err := loadVisible(ctx, s.messages, s.conv, origin, messageID, userID)
	if err != nil {
		return nil, err
	}
	reactionType = strings.TrimSpace(reactionType)

	unlock := s.locks.Lock(reactionKey(userID, messageID))
	defer unlock()

	var removed []string
	err = s.reactions.Transaction(ctx, func(tx *repository.ReactionRepository) error {
		held, err := tx.ListForUser(ctx, userID, messageID)
		if err != nil {
			return err
		}
		for _, r := range held {
			if reactionType != "" && r.Type != reactionType {
				continue
			}
			if err := tx.DeleteByID(ctx, r.ID); err != nil {
				return err
			}
			removed = append(removed, r.Type)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(origin, err)
	}
	if len(removed) == 0 {
		return removed, nil
	}

	participants, err := s.conv.participants(ctx, m)
	if err != nil {
		logger.Warn("unreaction fan-out skipped", zap.Uint("message_id", m.ID), zap.Error(err))
		return removed, nil
	}
	for _, t := range removed {
		s.bus.Emit(bus.Event{
			Type: eventName(m, EventMessageUnreacted, EventGroupUnreacted),
			Data: reactionPayload{MessageID: m.ID, GroupID: m.GroupID, UserID: userID, Type: t},
		}, participants...)
	}
	return removed, nil
}
