package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"im-social/config"
	"im-social/internal/model"
	"im-social/internal/repository"
	"im-social/internal/testutil"
	"im-social/pkg/bus"
	"im-social/pkg/jwt"
	"im-social/pkg/outbox"
	"im-social/pkg/permission"
	"im-social/pkg/websocket"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPlaceholder = "This message was recalled by an administrator"

type sentFrame struct {
	UserID uint
	Type   string
	Data   json.RawMessage
}

// recordingHub captures everything the bus writes to broadcast groups
type recordingHub struct {
	mu        sync.Mutex
	frames    []sentFrame
	connected []uint
}

func (h *recordingHub) SendToUser(userID uint, payload []byte) int {
	var f struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	_ = json.Unmarshal(payload, &f)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, sentFrame{UserID: userID, Type: f.Type, Data: f.Data})
	return 1
}

func (h *recordingHub) ConnectedUsers() []uint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint(nil), h.connected...)
}

// types lists the event types userID received, in order
func (h *recordingHub) types(userID uint) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, f := range h.frames {
		if f.UserID == userID {
			out = append(out, f.Type)
		}
	}
	return out
}

// data returns the payloads of typ received by userID
func (h *recordingHub) data(userID uint, typ string) []json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []json.RawMessage
	for _, f := range h.frames {
		if f.UserID == userID && f.Type == typ {
			out = append(out, f.Data)
		}
	}
	return out
}

func (h *recordingHub) reset() {
	h.mu.Lock()
	h.frames = nil
	h.mu.Unlock()
}

// fakeClock moves one second forward on every reading
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fakeStore struct {
	mu      sync.Mutex
	removed []string
}

func (s *fakeStore) IsManaged(ref string) bool { return strings.HasPrefix(ref, "/uploads/") }

func (s *fakeStore) Remove(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, ref)
	return nil
}

type fakeMirror struct {
	mu    sync.Mutex
	calls []string
}

func (m *fakeMirror) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return nil
}

func (m *fakeMirror) SetOnline(context.Context, uint, string, time.Time) error { return m.record("online") }
func (m *fakeMirror) SetOffline(context.Context, uint, time.Time) error        { return m.record("offline") }
func (m *fakeMirror) Refresh(context.Context, uint) error                      { return m.record("refresh") }

type harness struct {
	ctx      context.Context
	db       *gorm.DB
	hub      *recordingHub
	presence *websocket.Presence
	clock    *fakeClock
	store    *fakeStore
	mirror   *fakeMirror

	userRepo    *repository.UserRepository
	messageRepo *repository.MessageRepository

	users     *UserService
	messages  *MessageService
	delivery  *DeliveryService
	reactions *ReactionService
	recall    *RecallService
	sessions  *SessionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gdb := testutil.NewDB(t)
	h := &harness{
		ctx:      context.Background(),
		db:       gdb,
		hub:      &recordingHub{},
		presence: websocket.NewPresence(),
		clock:    &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		store:    &fakeStore{},
		mirror:   &fakeMirror{},
	}

	userRepo := repository.NewUserRepository(gdb)
	friendRepo := repository.NewFriendshipRepository(gdb)
	groupRepo := repository.NewGroupRepository(gdb)
	messageRepo := repository.NewMessageRepository(gdb)
	receiptRepo := repository.NewReceiptRepository(gdb)
	reactionRepo := repository.NewReactionRepository(gdb)
	h.userRepo, h.messageRepo = userRepo, messageRepo

	perms := permission.NewStringEvaluator()
	tasks := outbox.Inline{}
	b := bus.New(h.hub, NewAdminDirectory(userRepo, perms), nil, tasks)

	jwtService := jwt.NewJWTService(config.JWTConfig{Secret: "harness-secret", Issuer: "im-social", ExpireTime: time.Hour})

	h.users = NewUserService(userRepo, friendRepo, jwtService)
	h.messages = NewMessageService(messageRepo, userRepo, groupRepo, friendRepo, h.presence, b, 0)
	h.delivery = NewDeliveryService(messageRepo, receiptRepo, userRepo, groupRepo, friendRepo, b)
	h.reactions = NewReactionService(reactionRepo, messageRepo, groupRepo, b, 3)
	h.recall = NewRecallService(messageRepo, userRepo, groupRepo, h.store, perms, b, tasks, testPlaceholder)
	h.sessions = NewSessionService(h.delivery, h.reactions, userRepo, friendRepo, b, h.mirror, tasks)

	h.messages.now = h.clock.Now
	h.delivery.now = h.clock.Now
	h.reactions.now = h.clock.Now
	h.recall.now = h.clock.Now
	h.sessions.now = h.clock.Now

	return h
}

func (h *harness) user(t *testing.T, name string, opts ...func(*model.User)) *model.User {
	t.Helper()
	return testutil.CreateUser(t, h.db, name, opts...)
}

func (h *harness) send(t *testing.T, from, to uint, content string) *model.Message {
	t.Helper()
	m, err := h.messages.SendMessage(h.ctx, SendMessageInput{SenderID: from, ReceiverID: to, Content: content})
	require.NoError(t, err)
	return m
}

func (h *harness) sendGroup(t *testing.T, from, groupID uint, content string) *model.Message {
	t.Helper()
	m, err := h.messages.SendMessage(h.ctx, SendMessageInput{SenderID: from, GroupID: groupID, Content: content})
	require.NoError(t, err)
	return m
}

func (h *harness) online(userID uint) {
	h.presence.Connect(userID, websocket.ConnDescriptor{ConnID: "test", ConnectedAt: time.Now()})
}

func (h *harness) reload(t *testing.T, id uint) *model.Message {
	t.Helper()
	return testutil.Reload(t, h.db, id)
}

func (h *harness) count(t *testing.T, table interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(table).Where(query, args...).Count(&n).Error)
	return n
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}
