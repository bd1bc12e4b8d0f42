// Package permission evaluates dotted permission strings such as
// "chat.message.recall" against grants like "chat.*" or "*".
package permission

import (
	"strings"

	"im-social/internal/model"
)

const (
	ChatMonitor       = "chat.monitor"
	ChatMessageRecall = "chat.message.recall"
	ChatMessageDelete = "chat.message.delete"
	PresenceView      = "presence.view"
)

// Evaluator decides whether a user may perform action
type Evaluator interface {
	HasPermission(user *model.User, action string) bool
}

// StringEvaluator grants actions to active admins through their permission list
type StringEvaluator struct{}

func NewStringEvaluator() *StringEvaluator { return &StringEvaluator{} }

// HasPermission matches action against the user's comma separated grants
func (StringEvaluator) HasPermission(user *model.User, action string) bool {
	if user == nil || !user.IsActive || !user.IsAdmin() {
		return false
	}
	for _, grant := range user.PermissionList() {
		if Match(grant, action) {
			return true
		}
	}
	return false
}

// Match reports whether grant covers action. A "*" segment matches one
// segment, a trailing "*" matches the rest.
func Match(grant, action string) bool {
	if grant == "*" || grant == action {
		return true
	}
	g := strings.Split(grant, ".")
	a := strings.Split(action, ".")
	for i, seg := range g {
		if seg == "*" && i == len(g)-1 {
			return len(a) >= len(g)
		}
		if i >= len(a) {
			return false
		}
		if seg != "*" && seg != a[i] {
			return false
		}
	}
	return len(g) == len(a)
}
