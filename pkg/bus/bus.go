// Package bus fans events out to per-user broadcast groups and mirrors
// them, prefixed with "admin_", to the administrative monitoring bus.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"im-social/pkg/logger"
	"im-social/pkg/metrics"
	"im-social/pkg/outbox"
	"im-social/pkg/websocket"

	"go.uber.org/zap"
)

const AdminPrefix = "admin_"

// Event is a typed server push
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Broadcaster writes to broadcast groups; implemented by websocket.Hub
type Broadcaster interface {
	SendToUser(userID uint, payload []byte) int
	ConnectedUsers() []uint
}

// AdminResolver picks, among connected users, the admins allowed to
// watch the monitoring bus.
type AdminResolver interface {
	MonitoringAdmins(ctx context.Context, candidates []uint) ([]uint, error)
}

// Bus publishes events. Participant delivery is immediate; the admin
// mirror runs on the outbox and is eventually consistent.
type Bus struct {
	hub    Broadcaster
	admins AdminResolver
	sink   AdminSink
	tasks  outbox.Submitter
	now    func() time.Time
}

// New creates the bus. A nil sink means no external admin mirror.
func New(hub Broadcaster, admins AdminResolver, sink AdminSink, tasks outbox.Submitter) *Bus {
	if sink == nil {
		sink = NopSink{}
	}
	return &Bus{hub: hub, admins: admins, sink: sink, tasks: tasks, now: time.Now}
}

func (b *Bus) frame(ev Event) ([]byte, error) {
	return json.Marshal(websocket.Frame{Type: ev.Type, Data: ev.Data, Timestamp: b.now().UnixMilli()})
}

// Publish writes ev to the broadcast group of each user once
func (b *Bus) Publish(ev Event, userIDs ...uint) {
	if len(userIDs) == 0 {
		return
	}
	payload, err := b.frame(ev)
	if err != nil {
		logger.Error("marshal event failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	seen := make(map[uint]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		b.hub.SendToUser(id, payload)
	}
	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
}

// PublishAdmin defers the admin mirror of ev to the outbox
func (b *Bus) PublishAdmin(ev Event) {
	adminEv := Event{Type: AdminPrefix + ev.Type, Data: ev.Data}
	b.tasks.Submit("bus.admin."+ev.Type, func(ctx context.Context) error {
		return b.deliverAdmin(ctx, adminEv)
	})
}

// Emit is Publish plus PublishAdmin
func (b *Bus) Emit(ev Event, userIDs ...uint) {
	b.Publish(ev, userIDs...)
	b.PublishAdmin(ev)
}

func (b *Bus) deliverAdmin(ctx context.Context, ev Event) error {
	var firstErr error

	if b.admins != nil {
		admins, err := b.admins.MonitoringAdmins(ctx, b.hub.ConnectedUsers())
		if err != nil {
			firstErr = err
		} else if len(admins) > 0 {
			b.Publish(ev, admins...)
		}
	}

	if err := b.sink.Publish(ctx, ev); err != nil {
		logger.Warn("admin sink publish failed", zap.String("type", ev.Type), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases the admin sink
func (b *Bus) Close() error {
	return b.sink.Close()
}
