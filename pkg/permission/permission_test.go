package permission

import (
	"testing"

	"im-social/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		grant, action string
		want          bool
	}{
		{"*", "chat.message.recall", true},
		{"chat.*", "chat.message.recall", true},
		{"chat.*", "chat.monitor", true},
		{"chat.*", "chat", false},
		{"chat.message.recall", "chat.message.recall", true},
		{"chat.message.recall", "chat.message.delete", false},
		{"chat.*.delete", "chat.message.delete", true},
		{"chat.*.delete", "chat.message.recall", false},
		{"notes.*", "chat.monitor", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Match(tc.grant, tc.action), "%s vs %s", tc.grant, tc.action)
	}
}

func TestStringEvaluator(t *testing.T) {
	ev := NewStringEvaluator()
	admin := &model.User{Role: model.RoleAdmin, IsActive: true, Permissions: "chat.monitor, chat.message.*"}

	assert.True(t, ev.HasPermission(admin, ChatMonitor))
	assert.True(t, ev.HasPermission(admin, ChatMessageRecall))
	assert.False(t, ev.HasPermission(admin, PresenceView))

	inactive := *admin
	inactive.IsActive = false
	assert.False(t, ev.HasPermission(&inactive, ChatMonitor))

	user := &model.User{Role: model.RoleUser, IsActive: true, Permissions: "*"}
	assert.False(t, ev.HasPermission(user, ChatMonitor))
	assert.False(t, ev.HasPermission(nil, ChatMonitor))
}
