package repository_test

import (
	"context"
	"testing"
	"time"

	"im-social/internal/model"
	"im-social/internal/repository"
	"im-social/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptCreateIfAbsentKeepsEarliest(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := repository.NewReceiptRepository(gdb)

	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	created, err := repo.CreateIfAbsent(ctx, 1, 7, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, created)

	// Step 1: an earlier duplicate lowers read_at
	created, err = repo.CreateIfAbsent(ctx, 1, 7, base)
	require.NoError(t, err)
	assert.False(t, created)

	// Step 2: a later duplicate changes nothing
	created, err = repo.CreateIfAbsent(ctx, 1, 7, base.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)

	readers, err := repo.Readers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, readers, 1)
	assert.True(t, readers[0].ReadAt.Equal(base), "got %v", readers[0].ReadAt)
}

func TestAdvanceStatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := repository.NewMessageRepository(gdb)

	a := testutil.CreateUser(t, gdb, "alice")
	b := testutil.CreateUser(t, gdb, "bob")
	sent := testutil.CreateDirect(t, gdb, a.ID, b.ID, "one", model.StatusSent)
	read := testutil.CreateDirect(t, gdb, a.ID, b.ID, "two", model.StatusRead)

	advanced, err := repo.AdvanceStatus(ctx, []uint{sent.ID, read.ID}, model.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, []uint{sent.ID}, advanced)

	assert.Equal(t, model.StatusDelivered, testutil.Reload(t, gdb, sent.ID).Status)
	assert.Equal(t, model.StatusRead, testutil.Reload(t, gdb, read.ID).Status)

	// sent is the lowest state, nothing can move to it
	advanced, err = repo.AdvanceStatus(ctx, []uint{sent.ID}, model.StatusSent)
	require.NoError(t, err)
	assert.Empty(t, advanced)
}

func TestHideIsIdempotentAndPerUser(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := repository.NewMessageRepository(gdb)

	a := testutil.CreateUser(t, gdb, "alice")
	b := testutil.CreateUser(t, gdb, "bob")
	m := testutil.CreateDirect(t, gdb, a.ID, b.ID, "hello", model.StatusSent)

	require.NoError(t, repo.Hide(ctx, []uint{m.ID}, a.ID, time.Now()))
	require.NoError(t, repo.Hide(ctx, []uint{m.ID}, a.ID, time.Now()))

	var count int64
	require.NoError(t, gdb.Model(&model.MessageHide{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	forA, err := repo.Conversation(ctx, a.ID, b.ID, 0, 50)
	require.NoError(t, err)
	assert.Empty(t, forA)

	forB, err := repo.Conversation(ctx, b.ID, a.ID, 0, 50)
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, "hello", forB[0].Content)
}

func TestUnreadGroupCountsMissingReceipts(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	messages := repository.NewMessageRepository(gdb)
	receipts := repository.NewReceiptRepository(gdb)

	a := testutil.CreateUser(t, gdb, "alice")
	b := testutil.CreateUser(t, gdb, "bob")
	g := testutil.CreateGroup(t, gdb, "g", a.ID, b.ID)

	m1 := testutil.CreateGroupMessage(t, gdb, g.ID, a.ID, "1")
	testutil.CreateGroupMessage(t, gdb, g.ID, a.ID, "2")
	testutil.CreateGroupMessage(t, gdb, g.ID, b.ID, "own message")

	count, err := messages.CountUnreadGroup(ctx, b.ID, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, err = receipts.CreateIfAbsent(ctx, m1.ID, b.ID, time.Now())
	require.NoError(t, err)

	count, err = messages.CountUnreadGroup(ctx, b.ID, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedactForAllPurgesDependents(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := repository.NewMessageRepository(gdb)

	a := testutil.CreateUser(t, gdb, "alice")
	b := testutil.CreateUser(t, gdb, "bob")
	parent := testutil.CreateDirect(t, gdb, b.ID, a.ID, "parent", model.StatusRead)
	m := testutil.CreateDirect(t, gdb, a.ID, b.ID, "photo.png", model.StatusRead)
	require.NoError(t, gdb.Model(m).Updates(map[string]interface{}{"msg_type": model.MsgTypeImage, "reply_to_message_id": parent.ID}).Error)

	require.NoError(t, gdb.Create(&model.ReadReceipt{MessageID: m.ID, UserID: b.ID, ReadAt: time.Now()}).Error)
	require.NoError(t, gdb.Create(&model.Reaction{MessageID: m.ID, UserID: b.ID, Type: "like", Count: 1, ReactedAt: time.Now()}).Error)
	require.NoError(t, repo.Pin(ctx, b.ID, m.ID, time.Now()))

	require.NoError(t, repo.RedactForAll(ctx, m.ID))

	got := testutil.Reload(t, gdb, m.ID)
	assert.True(t, got.IsDeletedForAll)
	assert.Empty(t, got.Content)
	assert.Nil(t, got.ReplyToMessageID)
	assert.Equal(t, model.MsgTypeImage, got.MsgType)

	for _, table := range []interface{}{&model.ReadReceipt{}, &model.Reaction{}, &model.PinnedMessage{}} {
		var count int64
		require.NoError(t, gdb.Model(table).Where("message_id = ?", m.ID).Count(&count).Error)
		assert.Zero(t, count)
	}
}

func TestAdminRecallKeepsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := repository.NewMessageRepository(gdb)

	a := testutil.CreateUser(t, gdb, "alice")
	b := testutil.CreateUser(t, gdb, "bob")
	m := testutil.CreateDirect(t, gdb, a.ID, b.ID, "rude", model.StatusSent)
	before := testutil.Reload(t, gdb, m.ID).UpdatedAt

	require.NoError(t, repo.AdminRecall(ctx, m.ID, "recalled by admin"))

	got := testutil.Reload(t, gdb, m.ID)
	assert.Equal(t, "recalled by admin", got.Content)
	assert.Equal(t, model.MsgTypeRecalled, got.MsgType)
	assert.True(t, got.IsRecalled)
	assert.True(t, got.IsDeletedForAll)
	assert.True(t, got.UpdatedAt.Equal(before))
}

func TestBlockIsSymmetric(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := repository.NewFriendshipRepository(gdb)

	testutil.Relate(t, gdb, 1, 2, model.FriendshipAccepted)
	testutil.Relate(t, gdb, 3, 1, model.FriendshipAccepted)

	friends, err := repo.AcceptedFriendIDs(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{2, 3}, friends)

	require.NoError(t, repo.Block(ctx, 2, 1))

	blocked, err := repo.IsBlocked(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, blocked)
	blocked, err = repo.IsBlocked(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, blocked)

	// the accepted 1->2 row survives, the 2->1 block hides it both ways
	friends, err = repo.AcceptedFriendIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint{3}, friends)
	friends, err = repo.AcceptedFriendIDs(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, friends)

	require.NoError(t, repo.Unblock(ctx, 2, 1))
	blocked, err = repo.IsBlocked(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, blocked)

	friends, err = repo.AcceptedFriendIDs(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{2, 3}, friends)
}

func TestReactionListOrder(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	repo := repository.NewReactionRepository(gdb)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, &model.Reaction{UserID: 1, MessageID: 9, Type: "b", Count: 1, ReactedAt: base.Add(2 * time.Second)}))
	require.NoError(t, repo.Insert(ctx, &model.Reaction{UserID: 1, MessageID: 9, Type: "a", Count: 1, ReactedAt: base}))

	rows, err := repo.ListForUser(ctx, 1, 9)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].Type)

	require.NoError(t, repo.Bump(ctx, rows[0].ID, base.Add(time.Minute)))
	rows, err = repo.ListForUser(ctx, 1, 9)
	require.NoError(t, err)
	assert.Equal(t, "b", rows[0].Type)
	assert.Equal(t, 2, rows[1].Count)
}
