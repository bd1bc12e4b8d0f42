package service

import (
	"testing"
	"time"

	"im-social/internal/model"
	"im-social/internal/testutil"
	"im-social/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRecallForAll(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")

	first := h.send(t, alice.ID, bob.ID, "look at this")
	img, err := h.messages.SendMessage(h.ctx, SendMessageInput{
		SenderID:         alice.ID,
		ReceiverID:       bob.ID,
		Content:          "/uploads/2026/cat.png",
		MsgType:          model.MsgTypeImage,
		ReplyToMessageID: &first.ID,
	})
	require.NoError(t, err)

	_, err = h.delivery.MarkMessageRead(h.ctx, bob.ID, img.ID)
	require.NoError(t, err)
	_, err = h.reactions.React(h.ctx, bob.ID, img.ID, "😻")
	require.NoError(t, err)
	require.NoError(t, h.messages.PinMessage(h.ctx, bob.ID, img.ID))
	h.hub.reset()

	res, err := h.recall.Recall(h.ctx, alice.ID, []uint{img.ID}, ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, []uint{img.ID}, res.Affected)

	got := h.reload(t, img.ID)
	assert.True(t, got.IsDeletedForAll)
	assert.False(t, got.IsRecalled)
	assert.Empty(t, got.Content)
	assert.Nil(t, got.ReplyToMessageID)
	assert.Equal(t, model.MsgTypeImage, got.MsgType)
	assert.Equal(t, model.StatusRead, got.Status)

	assert.Zero(t, h.count(t, &model.ReadReceipt{}, "message_id = ?", img.ID))
	assert.Zero(t, h.count(t, &model.Reaction{}, "message_id = ?", img.ID))
	assert.Zero(t, h.count(t, &model.PinnedMessage{}, "message_id = ?", img.ID))
	assert.Equal(t, []string{"/uploads/2026/cat.png"}, h.store.removed)

	for _, uid := range []uint{alice.ID, bob.ID} {
		assert.Equal(t, []string{EventMessagesRecalled}, h.hub.types(uid))
	}

	// recalling again is a no-op
	res, err = h.recall.Recall(h.ctx, alice.ID, []uint{img.ID}, ScopeAll)
	require.NoError(t, err)
	assert.Empty(t, res.Affected)
	assert.Len(t, h.store.removed, 1)
}

func TestRecallForAllRequiresSender(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	mine := h.send(t, bob.ID, alice.ID, "bob's")
	theirs := h.send(t, alice.ID, bob.ID, "alice's")

	_, err := h.recall.Recall(h.ctx, bob.ID, []uint{mine.ID, theirs.ID}, ScopeAll)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	// nothing changed, not even the message bob was allowed to recall
	assert.False(t, h.reload(t, mine.ID).IsDeletedForAll)
	assert.Equal(t, "alice's", h.reload(t, theirs.ID).Content)
}

func TestRecallValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	eve := h.user(t, "eve")
	m := h.send(t, alice.ID, bob.ID, "x")

	cases := []struct {
		name  string
		actor uint
		ids   []uint
		scope string
		code  apperr.Code
	}{
		{"bad scope", alice.ID, []uint{m.ID}, "everyone", apperr.CodeValidation},
		{"no ids", alice.ID, nil, ScopeAll, apperr.CodeValidation},
		{"missing message", alice.ID, []uint{m.ID, 9999}, ScopeSelf, apperr.CodeNotFound},
		{"not a participant", eve.ID, []uint{m.ID}, ScopeSelf, apperr.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.recall.Recall(h.ctx, tc.actor, tc.ids, tc.scope)
			assert.True(t, apperr.Is(err, tc.code), "got %v", err)
		})
	}
}

func TestSelfDeleteOnlyAffectsActor(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	m := h.send(t, alice.ID, bob.ID, "keep for bob")
	require.NoError(t, h.messages.PinMessage(h.ctx, alice.ID, m.ID))
	require.NoError(t, h.messages.PinMessage(h.ctx, bob.ID, m.ID))
	h.hub.reset()

	res, err := h.recall.Recall(h.ctx, alice.ID, []uint{m.ID, m.ID}, ScopeSelf)
	require.NoError(t, err)
	assert.Equal(t, []uint{m.ID}, res.Affected)

	aliceView, err := h.messages.GetConversation(h.ctx, alice.ID, bob.ID, 0, 0)
	require.NoError(t, err)
	bobView, err := h.messages.GetConversation(h.ctx, bob.ID, alice.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, aliceView)
	require.Len(t, bobView, 1)
	assert.Equal(t, "keep for bob", bobView[0].Content)

	assert.Zero(t, h.count(t, &model.PinnedMessage{}, "user_id = ?", alice.ID))
	assert.EqualValues(t, 1, h.count(t, &model.PinnedMessage{}, "user_id = ?", bob.ID))

	assert.Equal(t, []string{EventMessagesDeleted}, h.hub.types(alice.ID))
	assert.Empty(t, h.hub.types(bob.ID))

	// repeating adds no second hide row
	_, err = h.recall.Recall(h.ctx, alice.ID, []uint{m.ID}, ScopeSelf)
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.count(t, &model.MessageHide{}, "message_id = ?", m.ID))
}

func TestAdminRecall(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	carol := h.user(t, "carol")
	admin := h.user(t, "root", testutil.AsAdmin("chat.message.*"))
	g := testutil.CreateGroup(t, h.db, "g", alice.ID, bob.ID, carol.ID)

	file, err := h.messages.SendMessage(h.ctx, SendMessageInput{
		SenderID: alice.ID, GroupID: g.ID, Content: "/uploads/report.pdf", MsgType: model.MsgTypeFile,
	})
	require.NoError(t, err)
	before := h.reload(t, file.ID)
	h.hub.reset()

	time.Sleep(10 * time.Millisecond)
	res, err := h.recall.AdminRecall(h.ctx, admin.ID, []uint{file.ID, 424242})
	require.NoError(t, err)
	assert.Equal(t, []uint{file.ID}, res.Affected)

	got := h.reload(t, file.ID)
	assert.Equal(t, testPlaceholder, got.Content)
	assert.Equal(t, model.MsgTypeRecalled, got.MsgType)
	assert.True(t, got.IsRecalled)
	assert.True(t, got.IsDeletedForAll)
	assert.True(t, got.UpdatedAt.Equal(before.UpdatedAt), "updated_at must not move")
	assert.Equal(t, []string{"/uploads/report.pdf"}, h.store.removed)

	for _, uid := range []uint{alice.ID, bob.ID, carol.ID} {
		assert.Equal(t, []string{EventGroupRecalled}, h.hub.types(uid))
	}

	// already recalled or missing: success with nothing affected
	res, err = h.recall.AdminRecall(h.ctx, admin.ID, []uint{file.ID})
	require.NoError(t, err)
	assert.Empty(t, res.Affected)
}

func TestAdminRecallNeedsPermission(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	monitorOnly := h.user(t, "watcher", testutil.AsAdmin("chat.monitor"))
	m := h.send(t, alice.ID, bob.ID, "x")

	for _, actor := range []uint{alice.ID, monitorOnly.ID} {
		_, err := h.recall.AdminRecall(h.ctx, actor, []uint{m.ID})
		assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	}
	assert.Equal(t, "x", h.reload(t, m.ID).Content)
}

func TestAdminDeleteForUser(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	eve := h.user(t, "eve")
	admin := h.user(t, "root", testutil.AsAdmin("chat.message.delete,chat.monitor"))
	m := h.send(t, alice.ID, bob.ID, "delete for bob")

	h.hub.connected = []uint{admin.ID}
	h.hub.reset()

	_, err := h.recall.AdminDeleteForUser(h.ctx, admin.ID, []uint{m.ID}, eve.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	res, err := h.recall.AdminDeleteForUser(h.ctx, admin.ID, []uint{m.ID}, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{m.ID}, res.Affected)

	hidden, err := h.messageRepo.IsHidden(h.ctx, m.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, hidden)
	hidden, err = h.messageRepo.IsHidden(h.ctx, m.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, hidden)

	assert.Equal(t, []string{EventMessagesDeleted}, h.hub.types(bob.ID))
	assert.Empty(t, h.hub.types(alice.ID))
	assert.Equal(t, []string{"admin_" + EventMessagesDeleted}, h.hub.types(admin.ID))

	var p removalPayload
	decode(t, h.hub.data(bob.ID, EventMessagesDeleted)[0], &p)
	assert.True(t, p.ByAdmin)
	assert.Equal(t, bob.ID, p.UserID)
}

func TestAdminMirrorFollowsPermissions(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	watcher := h.user(t, "watcher", testutil.AsAdmin("chat.*"))
	blind := h.user(t, "blind", testutil.AsAdmin("notes.*"))
	h.hub.connected = []uint{alice.ID, watcher.ID, blind.ID}

	h.send(t, alice.ID, bob.ID, "observed")

	assert.Equal(t, []string{"admin_" + EventNewMessage}, h.hub.types(watcher.ID))
	assert.Empty(t, h.hub.types(blind.ID))
	assert.NotContains(t, h.hub.types(alice.ID), "admin_"+EventNewMessage)
}
