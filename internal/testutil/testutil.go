// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"im-social/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var dbSeq int64

// NewDB returns a migrated in-memory sqlite database private to the test
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	gdb, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NamingStrategy:         schema.NamingStrategy{SingularTable: true},
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(model.AllModels()...))
	return gdb
}

// CreateUser inserts an active user with receipts enabled
func CreateUser(t *testing.T, gdb *gorm.DB, username string, opts ...func(*model.User)) *model.User {
	t.Helper()

	u := &model.User{
		Username:              username,
		Email:                 username + "@example.test",
		PasswordHash:          "x",
		Role:                  model.RoleUser,
		IsActive:              true,
		ReadReceiptsEnabled:   true,
		AllowStrangerMessages: true,
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

// AsAdmin makes the user an administrator with the given permissions
func AsAdmin(perms string) func(*model.User) {
	return func(u *model.User) {
		u.Role = model.RoleAdmin
		u.Permissions = perms
	}
}

// Relate stores a friendship row from a to b
func Relate(t *testing.T, gdb *gorm.DB, a, b uint, status string) {
	t.Helper()
	require.NoError(t, gdb.Create(&model.Friendship{UserID: a, FriendID: b, Status: status}).Error)
}

// CreateGroup creates a group owned by the first member
func CreateGroup(t *testing.T, gdb *gorm.DB, name string, members ...uint) *model.Group {
	t.Helper()
	require.NotEmpty(t, members)

	g := &model.Group{Name: name, OwnerID: members[0]}
	require.NoError(t, gdb.Create(g).Error)
	for i, uid := range members {
		role := model.GroupRoleMember
		if i == 0 {
			role = model.GroupRoleOwner
		}
		require.NoError(t, gdb.Create(&model.GroupMember{GroupID: g.ID, UserID: uid, Role: role, JoinedAt: time.Now()}).Error)
	}
	return g
}

// CreateDirect inserts a direct message in the given status
func CreateDirect(t *testing.T, gdb *gorm.DB, from, to uint, content, status string) *model.Message {
	t.Helper()
	m := &model.Message{
		SessionType: model.SessionDirect,
		SenderID:    from,
		ReceiverID:  to,
		Content:     content,
		MsgType:     model.MsgTypeText,
		Status:      status,
	}
	require.NoError(t, gdb.Create(m).Error)
	return m
}

// CreateGroupMessage inserts a group message
func CreateGroupMessage(t *testing.T, gdb *gorm.DB, groupID, from uint, content string) *model.Message {
	t.Helper()
	gid := groupID
	m := &model.Message{
		SessionType: model.SessionGroup,
		SenderID:    from,
		GroupID:     &gid,
		Content:     content,
		MsgType:     model.MsgTypeText,
		Status:      model.StatusSent,
	}
	require.NoError(t, gdb.Create(m).Error)
	return m
}

// Reload fetches the message again
func Reload(t *testing.T, gdb *gorm.DB, id uint) *model.Message {
	t.Helper()
	var m model.Message
	require.NoError(t, gdb.First(&m, id).Error)
	return &m
}
