package service

import (
	"context"
	"encoding/json"
	"time"

	"im-social/internal/repository"
	"im-social/pkg/apperr"
	"im-social/pkg/bus"
	"im-social/pkg/logger"
	"im-social/pkg/outbox"
	"im-social/pkg/websocket"

	"go.uber.org/zap"
)

// PresenceMirror copies presence to a shared store; implemented by
// redis.PresenceStore.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID uint, connID string, at time.Time) error
	SetOffline(ctx context.Context, userID uint, lastSeen time.Time) error
	Refresh(ctx context.Context, userID uint) error
}

// FrameRouter is implemented by websocket.Gateway
type FrameRouter interface {
	Handle(msgType string, fn websocket.HandlerFunc)
}

// SessionService reacts to connection lifecycle events and serves the
// inbound websocket frames. It implements websocket.Lifecycle.
type SessionService struct {
	delivery    *DeliveryService
	reactions   *ReactionService
	users       *repository.UserRepository
	friendships *repository.FriendshipRepository
	bus         Publisher
	mirror      PresenceMirror
	tasks       outbox.Submitter
	now         Clock
}

// NewSessionService wires the session hooks. mirror may be nil.
func NewSessionService(
	delivery *DeliveryService,
	reactions *ReactionService,
	users *repository.UserRepository,
	friendships *repository.FriendshipRepository,
	publisher Publisher,
	mirror PresenceMirror,
	tasks outbox.Submitter,
) *SessionService {
	return &SessionService{
		delivery:    delivery,
		reactions:   reactions,
		users:       users,
		friendships: friendships,
		bus:         publisher,
		mirror:      mirror,
		tasks:       tasks,
		now:         time.Now,
	}
}

// OnConnect runs the delivery sweep and announces the user online
func (s *SessionService) OnConnect(ctx context.Context, userID uint, connID string) {
	at := s.now()
	if s.mirror != nil {
		s.tasks.Submit("presence.online", func(ctx context.Context) error {
			return s.mirror.SetOnline(ctx, userID, connID, at)
		})
	}

	if _, err := s.delivery.SweepOnConnect(ctx, userID); err != nil {
		logger.Error("delivery sweep failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	s.announce(ctx, userID, bus.Event{Type: EventUserOnline, Data: presencePayload{UserID: userID}})
}

// OnDisconnect persists the last seen time and announces the user offline
func (s *SessionService) OnDisconnect(ctx context.Context, userID uint, connID string) {
	at := s.now()
	if err := s.users.UpdateLastSeen(ctx, userID, at); err != nil {
		logger.Warn("persist last seen failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	if s.mirror != nil {
		s.tasks.Submit("presence.offline", func(ctx context.Context) error {
			return s.mirror.SetOffline(ctx, userID, at)
		})
	}

	s.announce(ctx, userID, bus.Event{Type: EventUserOffline, Data: presencePayload{UserID: userID, LastSeen: &at}})
}

// OnHeartbeat refreshes the mirrored presence TTL
func (s *SessionService) OnHeartbeat(ctx context.Context, userID uint) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Refresh(ctx, userID); err != nil {
		logger.Debug("presence refresh failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

func (s *SessionService) announce(ctx context.Context, userID uint, ev bus.Event) {
	friends, err := s.friendships.AcceptedFriendIDs(ctx, userID)
	if err != nil {
		logger.Warn("load friends for presence failed", zap.Uint("user_id", userID), zap.Error(err))
		s.bus.PublishAdmin(ev)
		return
	}
	s.bus.Emit(ev, friends...)
}

type messageRef struct {
	MessageID uint `json:"message_id" validate:"required"`
}

type peerRef struct {
	PeerID uint `json:"peer_id" validate:"required"`
}

type groupRef struct {
	GroupID uint `json:"group_id" validate:"required"`
}

type reactionFrame struct {
	MessageID uint   `json:"message_id" validate:"required"`
	Type      string `json:"type" validate:"omitempty,max=32"`
}

type callFrame struct {
	To      uint            `json:"to" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

type noteFrame struct {
	NoteID uint   `json:"note_id" validate:"required"`
	Title  string `json:"title" validate:"max=200"`
}

type callPayload struct {
	From    uint            `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type notePayload struct {
	From   uint   `json:"from"`
	NoteID uint   `json:"note_id"`
	Title  string `json:"title"`
}

// RegisterHandlers routes the chat, group, reaction, call and note frames
func (s *SessionService) RegisterHandlers(r FrameRouter) {
	r.Handle("chat.read", func(ctx context.Context, userID uint, data json.RawMessage) error {
		var in messageRef
		if err := websocket.Bind(data, &in); err != nil {
			return err
		}
		_, err := s.delivery.MarkMessageRead(ctx, userID, in.MessageID)
		return err
	})
	r.Handle("chat.open", func(ctx context.Context, userID uint, data json.RawMessage) error {
		var in peerRef
		if err := websocket.Bind(data, &in); err != nil {
			return err
		}
		_, err := s.delivery.MarkConversationRead(ctx, userID, in.PeerID)
		return err
	})
	r.Handle("group.read", func(ctx context.Context, userID uint, data json.RawMessage) error {
		var in messageRef
		if err := websocket.Bind(data, &in); err != nil {
			return err
		}
		_, err := s.delivery.MarkMessageRead(ctx, userID, in.MessageID)
		return err
	})
	r.Handle("group.open", func(ctx context.Context, userID uint, data json.RawMessage) error {
		var in groupRef
		if err := websocket.Bind(data, &in); err != nil {
			return err
		}
		_, err := s.delivery.MarkGroupRead(ctx, userID, in.GroupID)
		return err
	})
	r.Handle("reaction.add", func(ctx context.Context, userID uint, data json.RawMessage) error {
		var in reactionFrame
		if err := websocket.Bind(data, &in); err != nil {
			return err
		}
		_, err := s.reactions.React(ctx, userID, in.MessageID, in.Type)
		return err
	})
	r.Handle("reaction.remove", func(ctx context.Context, userID uint, data json.RawMessage) error {
		var in reactionFrame
		if err := websocket.Bind(data, &in); err != nil {
			return err
		}
		_, err := s.reactions.Unreact(ctx, userID, in.MessageID, in.Type)
		return err
	})

	for frame, event := range map[string]string{
		"call.offer":     EventCallOffer,
		"call.answer":    EventCallAnswer,
		"call.candidate": EventCallCandidate,
		"call.end":       EventCallEnd,
	} {
		r.Handle(frame, s.relayCall(event))
	}

	r.Handle("note.share", s.shareNote)
}

// relayCall forwards signaling to the callee unless the pair is blocked
func (s *SessionService) relayCall(event string) websocket.HandlerFunc {
	return func(ctx context.Context, userID uint, data json.RawMessage) error {
		var in callFrame
		if err := websocket.Bind(data, &in); err != nil {
			return err
		}
		if in.To == userID {
			return apperr.Validation("session.call", "cannot call yourself")
		}
		blocked, err := s.friendships.IsBlocked(ctx, userID, in.To)
		if err != nil {
			return storeErr("session.call", err)
		}
		if blocked {
			return apperr.Forbidden("session.call", "calls between these users are blocked")
		}
		s.bus.Publish(bus.Event{Type: event, Data: callPayload{From: userID, Payload: in.Payload}}, in.To)
		return nil
	}
}

// shareNote tells the user's friends about a note
func (s *SessionService) shareNote(ctx context.Context, userID uint, data json.RawMessage) error {
	var in noteFrame
	if err := websocket.Bind(data, &in); err != nil {
		return err
	}
	friends, err := s.friendships.AcceptedFriendIDs(ctx, userID)
	if err != nil {
		return storeErr("session.note", err)
	}
	s.bus.Emit(bus.Event{Type: EventNoteShared, Data: notePayload{From: userID, NoteID: in.NoteID, Title: in.Title}}, friends...)
	return nil
}
