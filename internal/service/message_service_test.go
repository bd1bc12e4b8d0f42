package service

import (
	"strings"
	"testing"

	"im-social/internal/model"
	"im-social/internal/repository"
	"im-social/internal/testutil"
	"im-social/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendToBlockedUserFails(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	testutil.Relate(t, h.db, alice.ID, bob.ID, model.FriendshipAccepted)

	friends := repository.NewFriendshipRepository(h.db)
	require.NoError(t, friends.Block(h.ctx, bob.ID, alice.ID))

	for _, pair := range [][2]uint{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		_, err := h.messages.SendMessage(h.ctx, SendMessageInput{SenderID: pair[0], ReceiverID: pair[1], Content: "hey"})
		assert.True(t, apperr.Is(err, apperr.CodeForbidden), "got %v", err)
	}
	assert.Zero(t, h.count(t, &model.Message{}, "1 = 1"))
	assert.Empty(t, h.hub.types(alice.ID))
	assert.Empty(t, h.hub.types(bob.ID))
}

func TestStrangerMessagesNeedFriendship(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	private := h.user(t, "private", func(u *model.User) { u.AllowStrangerMessages = false })

	_, err := h.messages.SendMessage(h.ctx, SendMessageInput{SenderID: alice.ID, ReceiverID: private.ID, Content: "hi"})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	testutil.Relate(t, h.db, private.ID, alice.ID, model.FriendshipAccepted)
	_, err = h.messages.SendMessage(h.ctx, SendMessageInput{SenderID: alice.ID, ReceiverID: private.ID, Content: "hi"})
	assert.NoError(t, err)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	inactive := h.user(t, "gone", func(u *model.User) { u.IsActive = false })

	cases := []struct {
		name string
		in   SendMessageInput
		code apperr.Code
	}{
		{"empty content", SendMessageInput{SenderID: alice.ID, ReceiverID: bob.ID, Content: "   "}, apperr.CodeValidation},
		{"too long", SendMessageInput{SenderID: alice.ID, ReceiverID: bob.ID, Content: strings.Repeat("a", 4001)}, apperr.CodeValidation},
		{"bad type", SendMessageInput{SenderID: alice.ID, ReceiverID: bob.ID, Content: "x", MsgType: "sticker"}, apperr.CodeValidation},
		{"recalled type", SendMessageInput{SenderID: alice.ID, ReceiverID: bob.ID, Content: "x", MsgType: model.MsgTypeRecalled}, apperr.CodeValidation},
		{"no target", SendMessageInput{SenderID: alice.ID, Content: "x"}, apperr.CodeValidation},
		{"two targets", SendMessageInput{SenderID: alice.ID, ReceiverID: bob.ID, GroupID: 1, Content: "x"}, apperr.CodeValidation},
		{"self", SendMessageInput{SenderID: alice.ID, ReceiverID: alice.ID, Content: "x"}, apperr.CodeValidation},
		{"unknown receiver", SendMessageInput{SenderID: alice.ID, ReceiverID: 9999, Content: "x"}, apperr.CodeNotFound},
		{"inactive receiver", SendMessageInput{SenderID: alice.ID, ReceiverID: inactive.ID, Content: "x"}, apperr.CodeNotFound},
		{"unknown group", SendMessageInput{SenderID: alice.ID, GroupID: 9999, Content: "x"}, apperr.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.messages.SendMessage(h.ctx, tc.in)
			assert.True(t, apperr.Is(err, tc.code), "got %v", err)
		})
	}
	assert.Zero(t, h.count(t, &model.Message{}, "1 = 1"))
}

func TestGroupPostingRules(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "owner")
	member := h.user(t, "member")
	outsider := h.user(t, "outsider")
	g := testutil.CreateGroup(t, h.db, "announcements", owner.ID, member.ID)

	_, err := h.messages.SendMessage(h.ctx, SendMessageInput{SenderID: outsider.ID, GroupID: g.ID, Content: "let me in"})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	require.NoError(t, h.db.Model(g).UpdateColumn("only_admins_post", true).Error)
	_, err = h.messages.SendMessage(h.ctx, SendMessageInput{SenderID: member.ID, GroupID: g.ID, Content: "me too"})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	m := h.sendGroup(t, owner.ID, g.ID, "welcome")
	assert.Equal(t, model.SessionGroup, m.SessionType)
	assert.Equal(t, []string{EventGroupMessage}, h.hub.types(member.ID))
	assert.Equal(t, []string{EventGroupMessageSent}, h.hub.types(owner.ID))

	_, err = h.messages.GetGroupMessages(h.ctx, outsider.ID, g.ID, 0, 10)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	history, err := h.messages.GetGroupMessages(h.ctx, member.ID, g.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestReplyMustStayInConversation(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	carol := h.user(t, "carol")

	withCarol := h.send(t, alice.ID, carol.ID, "for carol")
	withBob := h.send(t, bob.ID, alice.ID, "for alice")

	_, err := h.messages.SendMessage(h.ctx, SendMessageInput{SenderID: alice.ID, ReceiverID: bob.ID, Content: "re", ReplyToMessageID: &withCarol.ID})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	missing := uint(9999)
	_, err = h.messages.SendMessage(h.ctx, SendMessageInput{SenderID: alice.ID, ReceiverID: bob.ID, Content: "re", ReplyToMessageID: &missing})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	reply, err := h.messages.SendMessage(h.ctx, SendMessageInput{SenderID: alice.ID, ReceiverID: bob.ID, Content: "re", ReplyToMessageID: &withBob.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToMessageID)
	assert.Equal(t, withBob.ID, *reply.ReplyToMessageID)
}

func TestEditMessage(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	m := h.send(t, alice.ID, bob.ID, "teh")
	h.hub.reset()

	_, err := h.messages.EditMessage(h.ctx, bob.ID, m.ID, "not mine")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	edited, err := h.messages.EditMessage(h.ctx, alice.ID, m.ID, "the")
	require.NoError(t, err)
	assert.NotNil(t, edited.EditedAt)
	assert.Equal(t, "the", h.reload(t, m.ID).Content)
	assert.Equal(t, []string{EventMessageEdited}, h.hub.types(bob.ID))

	_, err = h.recall.Recall(h.ctx, alice.ID, []uint{m.ID}, ScopeAll)
	require.NoError(t, err)
	_, err = h.messages.EditMessage(h.ctx, alice.ID, m.ID, "again")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestConversationPaging(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")

	var ids []uint
	for i := 0; i < 5; i++ {
		ids = append(ids, h.send(t, alice.ID, bob.ID, "m").ID)
	}

	page, err := h.messages.GetConversation(h.ctx, bob.ID, alice.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)

	older, err := h.messages.GetConversation(h.ctx, bob.ID, alice.ID, page[1].ID, 10)
	require.NoError(t, err)
	assert.Len(t, older, 3)
}

func TestPins(t *testing.T) {
	h := newHarness(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	m1 := h.send(t, alice.ID, bob.ID, "one")
	m2 := h.send(t, alice.ID, bob.ID, "two")

	require.NoError(t, h.messages.PinMessage(h.ctx, bob.ID, m1.ID))
	require.NoError(t, h.messages.PinMessage(h.ctx, bob.ID, m2.ID))
	require.NoError(t, h.messages.PinMessage(h.ctx, bob.ID, m2.ID))

	pinned, err := h.messages.PinnedMessages(h.ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pinned, 2)
	assert.Equal(t, m2.ID, pinned[0].ID)

	require.NoError(t, h.messages.UnpinMessage(h.ctx, bob.ID, m2.ID))
	pinned, err = h.messages.PinnedMessages(h.ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, pinned, 1)

	assert.Empty(t, h.hub.data(alice.ID, EventMessagePinned))
}
