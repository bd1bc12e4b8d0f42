package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"im-social/pkg/outbox"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	mu        sync.Mutex
	sent      map[uint][]string
	connected []uint
}

func (h *fakeHub) SendToUser(userID uint, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var f struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(payload, &f)
	if h.sent == nil {
		h.sent = map[uint][]string{}
	}
	h.sent[userID] = append(h.sent[userID], f.Type)
	return 1
}

func (h *fakeHub) ConnectedUsers() []uint { return h.connected }

type adminsOnly map[uint]bool

func (a adminsOnly) MonitoringAdmins(_ context.Context, candidates []uint) ([]uint, error) {
	var out []uint
	for _, id := range candidates {
		if a[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

type recordingSink struct {
	events []Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, ev Event) error {
	s.events = append(s.events, ev)
	return s.err
}
func (s *recordingSink) Close() error { return nil }

func TestPublishDedupesRecipients(t *testing.T) {
	hub := &fakeHub{}
	b := New(hub, nil, nil, outbox.Inline{})

	b.Publish(Event{Type: "message_reacted"}, 1, 2, 1, 0)

	assert.Equal(t, []string{"message_reacted"}, hub.sent[1])
	assert.Equal(t, []string{"message_reacted"}, hub.sent[2])
	assert.NotContains(t, hub.sent, uint(0))
}

func TestEmitMirrorsToPermittedAdmins(t *testing.T) {
	hub := &fakeHub{connected: []uint{1, 2, 9}}
	sink := &recordingSink{}
	b := New(hub, adminsOnly{9: true}, sink, outbox.Inline{})

	b.Emit(Event{Type: "messages_recalled", Data: map[string]uint{"message_id": 5}}, 1, 2)

	assert.Equal(t, []string{"messages_recalled"}, hub.sent[1])
	assert.Equal(t, []string{"admin_messages_recalled"}, hub.sent[9])
	require.Len(t, sink.events, 1)
	assert.Equal(t, "admin_messages_recalled", sink.events[0].Type)
}

func TestAdminSinkFailureDoesNotBlockConsole(t *testing.T) {
	hub := &fakeHub{connected: []uint{9}}
	sink := &recordingSink{err: errors.New("broker down")}
	b := New(hub, adminsOnly{9: true}, sink, outbox.Inline{})

	b.PublishAdmin(Event{Type: "user_online"})

	assert.Equal(t, []string{"admin_user_online"}, hub.sent[9])
}

type flakyWriter struct {
	calls int
	err   error
}

func (w *flakyWriter) WriteMessages(context.Context, ...kafka.Message) error {
	w.calls++
	return w.err
}
func (w *flakyWriter) Close() error { return nil }

func TestKafkaSinkBreakerOpens(t *testing.T) {
	w := &flakyWriter{err: errors.New("no broker")}
	s := newKafkaSink(w, 2, time.Minute)

	for i := 0; i < 2; i++ {
		assert.Error(t, s.Publish(context.Background(), Event{Type: "admin_x"}))
	}
	err := s.Publish(context.Background(), Event{Type: "admin_x"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, w.calls)
}
