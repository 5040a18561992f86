package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/model"
	"watchparty-backend/internal/notifier"
)

func setupChatRoom(t *testing.T) (*ChatRelay, *fakeNotifier, *model.Room, identity.Actor, identity.Actor) {
	t.Helper()

	db, directory, membership, _, relay, fn := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	member := seedUser(t, db, "user-2", "bob")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party", Username: "alice"}, host)
	require.NoError(t, err)
	_, err = membership.Join(ctx, created.Room.Code, JoinRequest{Username: "bob"}, member)
	require.NoError(t, err)

	return relay, fn, created.Room, host, member
}

func TestSendMessage_UsesRosterUsername(t *testing.T) {
	relay, fn, room, _, member := setupChatRoom(t)

	msg, err := relay.SendMessage(context.Background(), room.ID, SendMessageRequest{
		Message: "hello",
	}, member)
	require.NoError(t, err)

	// 표시 이름은 참가자 명부에서 온다. 클라이언트 주장이 아니라.
	assert.Equal(t, "bob", msg.Username)
	assert.Equal(t, model.MessageTypeText.String(), msg.MessageType)
	assert.Equal(t, 1, fn.published("chat_messages", notifier.OpInsert))
}

func TestSendMessage_NonParticipantForbidden(t *testing.T) {
	relay, _, room, _, _ := setupChatRoom(t)

	_, err := relay.SendMessage(context.Background(), room.ID, SendMessageRequest{Message: "hi"}, identity.Actor{UserID: "stranger"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSendMessage_NoIdentity(t *testing.T) {
	relay, _, room, _, _ := setupChatRoom(t)

	_, err := relay.SendMessage(context.Background(), room.ID, SendMessageRequest{Message: "hi"}, identity.Actor{})
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestSendMessage_TruncatesLongMessage(t *testing.T) {
	relay, _, room, _, member := setupChatRoom(t)

	msg, err := relay.SendMessage(context.Background(), room.ID, SendMessageRequest{
		Message: strings.Repeat("a", maxMessageLength+500),
	}, member)
	require.NoError(t, err)
	assert.Len(t, msg.Message, maxMessageLength)
}

func TestSendMessage_TruncatesOnRuneBoundary(t *testing.T) {
	relay, _, room, _, member := setupChatRoom(t)

	// 3바이트 룬 연속 — 바이트 단위로 자르면 2000번째 바이트가 룬 중간에 떨어진다
	msg, err := relay.SendMessage(context.Background(), room.ID, SendMessageRequest{
		Message: strings.Repeat("한", 700),
	}, member)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(msg.Message))
	assert.LessOrEqual(t, len(msg.Message), maxMessageLength)
	assert.Equal(t, strings.Repeat("한", 666), msg.Message)
}

func TestSendMessage_VoiceDurationOnlyForVoice(t *testing.T) {
	relay, _, room, _, member := setupChatRoom(t)
	duration := 12

	text, err := relay.SendMessage(context.Background(), room.ID, SendMessageRequest{
		Message:       "hi",
		MessageType:   model.MessageTypeText,
		VoiceDuration: &duration,
	}, member)
	require.NoError(t, err)
	assert.Nil(t, text.VoiceDuration)

	voice, err := relay.SendMessage(context.Background(), room.ID, SendMessageRequest{
		Message:       "voice note",
		MessageType:   model.MessageTypeVoice,
		VoiceDuration: &duration,
	}, member)
	require.NoError(t, err)
	require.NotNil(t, voice.VoiceDuration)
	assert.Equal(t, 12, *voice.VoiceDuration)
}

func TestRecentMessages_ChronologicalFromDB(t *testing.T) {
	relay, _, room, _, member := setupChatRoom(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := relay.SendMessage(ctx, room.ID, SendMessageRequest{Message: text}, member)
		require.NoError(t, err)
	}

	messages, err := relay.RecentMessages(ctx, room.ID, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "two", messages[0].Message)
	assert.Equal(t, "three", messages[1].Message)
}
