package service

import (
	"context"
	"errors"
	"time"

	"im-social/internal/model"
	"im-social/internal/repository"
	"im-social/pkg/apperr"
	"im-social/pkg/bus"
	"im-social/pkg/logger"
	"im-social/pkg/outbox"
	"im-social/pkg/permission"
	"im-social/pkg/storage"

	"go.uber.org/zap"
)

// Recall scopes
const (
	ScopeSelf = "self"
	ScopeAll  = "all"
)

const maxRecallBatch = 100

// RecallResult lists the messages a recall or delete changed
type RecallResult struct {
	Scope    string `json:"scope"`
	Affected []uint `json:"affected"`
}

// RecallService implements self-scope hiding and all-scope redaction for
// end users and administrators.
type RecallService struct {
	messages    *repository.MessageRepository
	users       *repository.UserRepository
	conv        conversations
	store       storage.Store
	perms       permission.Evaluator
	bus         Publisher
	tasks       outbox.Submitter
	placeholder string
	now         Clock
}

// NewRecallService creates the recall and delete engine
func NewRecallService(
	messages *repository.MessageRepository,
	users *repository.UserRepository,
	groups *repository.GroupRepository,
	store storage.Store,
	perms permission.Evaluator,
	publisher Publisher,
	tasks outbox.Submitter,
	placeholder string,
) *RecallService {
	return &RecallService{
		messages:    messages,
		users:       users,
		conv:        conversations{groups: groups},
		store:       store,
		perms:       perms,
		bus:         publisher,
		tasks:       tasks,
		placeholder: placeholder,
		now:         time.Now,
	}
}

// Recall is the end-user path. Scope self hides the messages for the
// actor; scope all redacts them for everyone and only the sender may
// ask for it. Nothing changes unless every message passes the checks.
func (s *RecallService) Recall(ctx context.Context, actorID uint, ids []uint, scope string) (RecallResult, error) {
	const origin = "recall.user"

	ids, err := validateBatch(origin, ids, scope)
	if err != nil {
		return RecallResult{}, err
	}

	found, err := s.messages.GetByIDs(ctx, ids)
	if err != nil {
		return RecallResult{}, storeErr(origin, err)
	}
	if len(found) != len(ids) {
		return RecallResult{}, apperr.NotFound(origin, "message not found")
	}
	for _, m := range found {
		ok, err := s.conv.isParticipant(ctx, m, actorID)
		if err != nil {
			return RecallResult{}, storeErr(origin, err)
		}
		if !ok {
			return RecallResult{}, apperr.NotFound(origin, "message %d not found", m.ID)
		}
		if scope == ScopeAll && m.SenderID != actorID {
			return RecallResult{}, apperr.Forbidden(origin, "only the sender can recall message %d for everyone", m.ID)
		}
	}

	if scope == ScopeSelf {
		return s.hideFor(ctx, origin, found, actorID, actorID, false)
	}

	var redacted []*model.Message
	for _, m := range found {
		if m.IsDeletedForAll {
			continue
		}
		if err := s.messages.RedactForAll(ctx, m.ID); err != nil {
			return RecallResult{}, storeErr(origin, err)
		}
		s.removeAttachment(m)
		redacted = append(redacted, m)
	}

	s.announceRecall(ctx, redacted, actorID, false)
	logger.Info("messages recalled", zap.Uint("actor_id", actorID), zap.Int("count", len(redacted)))
	return RecallResult{Scope: ScopeAll, Affected: messageIDs(redacted)}, nil
}

// AdminRecall replaces the messages with the recall placeholder for
// everyone. Missing or already recalled messages are skipped.
func (s *RecallService) AdminRecall(ctx context.Context, adminID uint, ids []uint) (RecallResult, error) {
	const origin = "recall.admin"

	ids, err := validateBatch(origin, ids, ScopeAll)
	if err != nil {
		return RecallResult{}, err
	}
	if err := s.authorize(ctx, origin, adminID, permission.ChatMessageRecall); err != nil {
		return RecallResult{}, err
	}

	found, err := s.messages.GetByIDs(ctx, ids)
	if err != nil {
		return RecallResult{}, storeErr(origin, err)
	}

	var recalled []*model.Message
	for _, m := range found {
		if m.IsRecalled {
			continue
		}
		if err := s.messages.AdminRecall(ctx, m.ID, s.placeholder); err != nil {
			return RecallResult{}, storeErr(origin, err)
		}
		s.removeAttachment(m)
		recalled = append(recalled, m)
	}

	s.announceRecall(ctx, recalled, adminID, true)
	logger.Info("messages recalled by admin", zap.Uint("admin_id", adminID), zap.Int("count", len(recalled)))
	return RecallResult{Scope: ScopeAll, Affected: messageIDs(recalled)}, nil
}

// AdminDeleteForUser hides the messages for one participant chosen by
// the administrator. Missing messages are skipped.
func (s *RecallService) AdminDeleteForUser(ctx context.Context, adminID uint, ids []uint, targetUserID uint) (RecallResult, error) {
	const origin = "recall.admin_delete"

	ids, err := validateBatch(origin, ids, ScopeSelf)
	if err != nil {
		return RecallResult{}, err
	}
	if targetUserID == 0 {
		return RecallResult{}, apperr.Validation(origin, "target user is required")
	}
	if err := s.authorize(ctx, origin, adminID, permission.ChatMessageDelete); err != nil {
		return RecallResult{}, err
	}

	found, err := s.messages.GetByIDs(ctx, ids)
	if err != nil {
		return RecallResult{}, storeErr(origin, err)
	}
	for _, m := range found {
		ok, err := s.conv.isParticipant(ctx, m, targetUserID)
		if err != nil {
			return RecallResult{}, storeErr(origin, err)
		}
		if !ok {
			return RecallResult{}, apperr.Forbidden(origin, "user %d is not a participant of message %d", targetUserID, m.ID)
		}
	}

	return s.hideFor(ctx, origin, found, adminID, targetUserID, true)
}

func (s *RecallService) authorize(ctx context.Context, origin string, adminID uint, action string) error {
	admin, err := s.users.GetByID(ctx, adminID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Forbidden(origin, "permission %s required", action)
	}
	if err != nil {
		return storeErr(origin, err)
	}
	if !s.perms.HasPermission(admin, action) {
		return apperr.Forbidden(origin, "permission %s required", action)
	}
	return nil
}

// hideFor deletes the messages for userID only and drops that user's pins
func (s *RecallService) hideFor(ctx context.Context, origin string, msgs []*model.Message, actorID, userID uint, byAdmin bool) (RecallResult, error) {
	ids := messageIDs(msgs)
	if len(ids) == 0 {
		return RecallResult{Scope: ScopeSelf, Affected: []uint{}}, nil
	}

	if err := s.messages.Hide(ctx, ids, userID, s.now()); err != nil {
		return RecallResult{}, storeErr(origin, err)
	}
	if err := s.messages.Unpin(ctx, userID, ids); err != nil {
		return RecallResult{}, storeErr(origin, err)
	}

	for _, part := range partition(msgs) {
		s.bus.Emit(bus.Event{
			Type: eventName(part[0], EventMessagesDeleted, EventGroupDeleted),
			Data: removalPayload{
				MessageIDs: messageIDs(part),
				GroupID:    part[0].GroupID,
				ActorID:    actorID,
				UserID:     userID,
				Scope:      ScopeSelf,
				ByAdmin:    byAdmin,
			},
		}, userID)
	}
	return RecallResult{Scope: ScopeSelf, Affected: ids}, nil
}

// announceRecall notifies every participant of each conversation touched
func (s *RecallService) announceRecall(ctx context.Context, msgs []*model.Message, actorID uint, byAdmin bool) {
	for _, part := range partition(msgs) {
		participants, err := s.conv.participants(ctx, part[0])
		if err != nil {
			logger.Warn("recall fan-out skipped", zap.Uint("message_id", part[0].ID), zap.Error(err))
			continue
		}
		s.bus.Emit(bus.Event{
			Type: eventName(part[0], EventMessagesRecalled, EventGroupRecalled),
			Data: removalPayload{
				MessageIDs: messageIDs(part),
				GroupID:    part[0].GroupID,
				ActorID:    actorID,
				Scope:      ScopeAll,
				ByAdmin:    byAdmin,
			},
		}, participants...)
	}
}

// removeAttachment deletes the stored resource after the response.
// m must still carry the original content.
func (s *RecallService) removeAttachment(m *model.Message) {
	if s.store == nil || !m.HasAttachment() || !s.store.IsManaged(m.Content) {
		return
	}
	ref := m.Content
	s.tasks.Submit("recall.attachment", func(ctx context.Context) error {
		return s.store.Remove(ctx, ref)
	})
}

func validateBatch(origin string, ids []uint, scope string) ([]uint, error) {
	if scope != ScopeSelf && scope != ScopeAll {
		return nil, apperr.Validation(origin, "scope must be %q or %q", ScopeSelf, ScopeAll)
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, apperr.Validation(origin, "message_ids is required")
	}
	if len(ids) > maxRecallBatch {
		return nil, apperr.Validation(origin, "at most %d messages per request", maxRecallBatch)
	}
	return ids, nil
}

type conversationKey struct {
	group uint
	a, b  uint
}

func keyOf(m *model.Message) conversationKey {
	if m.IsGroup() {
		return conversationKey{group: *m.GroupID}
	}
	a, b := m.SenderID, m.ReceiverID
	if a > b {
		a, b = b, a
	}
	return conversationKey{a: a, b: b}
}

// partition splits messages by conversation, keeping first-seen order
func partition(msgs []*model.Message) [][]*model.Message {
	index := make(map[conversationKey]int)
	var parts [][]*model.Message
	for _, m := range msgs {
		k := keyOf(m)
		i, ok := index[k]
		if !ok {
			i = len(parts)
			index[k] = i
			parts = append(parts, nil)
		}
		parts[i] = append(parts[i], m)
	}
	return parts
}
