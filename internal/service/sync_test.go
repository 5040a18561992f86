package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/model"
	"watchparty-backend/internal/notifier"
)

// syncFixture 호스트와 멤버가 있는 방 하나
type syncFixture struct {
	room   *model.Room
	host   identity.Actor
	member identity.Actor
}

func setupRoom(t *testing.T) (*SyncEngine, *Membership, *fakeNotifier, syncFixture, func(string) model.Room) {
	t.Helper()

	db, directory, membership, engine, _, fn := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	member := seedUser(t, db, "user-2", "bob")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party"}, host)
	require.NoError(t, err)
	_, err = membership.Join(ctx, created.Room.Code, JoinRequest{Username: "bob"}, member)
	require.NoError(t, err)

	reload := func(id string) model.Room {
		var room model.Room
		require.NoError(t, db.First(&room, "id = ?", id).Error)
		return room
	}

	return engine, membership, fn, syncFixture{room: created.Room, host: host, member: member}, reload
}

func TestSubmit_PlayPauseSeek(t *testing.T) {
	engine, _, _, fx, reload := setupRoom(t)
	ctx := context.Background()

	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventPlay, json.RawMessage(`{"position":1000}`), 1, fx.member))
	room := reload(fx.room.ID)
	assert.True(t, room.IsPlaying)
	assert.EqualValues(t, 1000, room.CurrentPosition)

	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventPause, json.RawMessage(`{"position":2500}`), 2, fx.member))
	room = reload(fx.room.ID)
	assert.False(t, room.IsPlaying)
	assert.EqualValues(t, 2500, room.CurrentPosition)

	// seek은 재생 여부를 건드리지 않는다
	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventSeek, json.RawMessage(`{"position":120000}`), 3, fx.member))
	room = reload(fx.room.ID)
	assert.False(t, room.IsPlaying)
	assert.EqualValues(t, 120000, room.CurrentPosition)

	// 이벤트 로그에는 셋 다 수신 순서대로 남는다
	events, err := engine.RoomEvents(ctx, fx.room.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, model.EventPlay.String(), events[0].EventType)
	assert.Equal(t, model.EventPause.String(), events[1].EventType)
	assert.Equal(t, model.EventSeek.String(), events[2].EventType)
}

func TestSubmit_ContentChange_ResetsPlayback(t *testing.T) {
	engine, _, _, fx, reload := setupRoom(t)
	ctx := context.Background()

	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventPlay, json.RawMessage(`{"position":9000}`), 1, fx.member))

	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventContentChange, json.RawMessage(`{"url":"https://cdn.example.com/ep2"}`), 2, fx.member))
	room := reload(fx.room.ID)
	require.NotNil(t, room.CurrentContentURL)
	assert.Equal(t, "https://cdn.example.com/ep2", *room.CurrentContentURL)
	assert.EqualValues(t, 0, room.CurrentPosition)
	assert.False(t, room.IsPlaying)
}

func TestSubmit_StartParty_HostOnly(t *testing.T) {
	engine, _, _, fx, reload := setupRoom(t)
	ctx := context.Background()

	// 멤버의 start_party: 이벤트는 기록되지만 방은 그대로
	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventStartParty, nil, 1, fx.member))
	room := reload(fx.room.ID)
	assert.Equal(t, model.RoomStatusWaiting.String(), room.Status)

	events, err := engine.RoomEvents(ctx, fx.room.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "rejected patch still leaves the event in the log")

	// 호스트의 start_party: waiting -> active
	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventStartParty, nil, 2, fx.host))
	room = reload(fx.room.ID)
	assert.Equal(t, model.RoomStatusActive.String(), room.Status)
	assert.True(t, room.IsPlaying)
	assert.EqualValues(t, 0, room.CurrentPosition)
}

func TestSubmit_EndedRoomNeverResurrects(t *testing.T) {
	engine, _, _, fx, reload := setupRoom(t)
	ctx := context.Background()

	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventEndParty, nil, 1, fx.host))
	room := reload(fx.room.ID)
	require.Equal(t, model.RoomStatusEnded.String(), room.Status)

	// 종료 후의 이벤트는 기록만 되고 방 상태는 불변
	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventPlay, json.RawMessage(`{"position":5}`), 2, fx.host))
	room = reload(fx.room.ID)
	assert.Equal(t, model.RoomStatusEnded.String(), room.Status)
	assert.False(t, room.IsPlaying)
	assert.EqualValues(t, 0, room.CurrentPosition)
}

func TestSubmit_MalformedPayload_LogsEventWithoutPatch(t *testing.T) {
	engine, _, _, fx, reload := setupRoom(t)
	ctx := context.Background()

	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventPlay, json.RawMessage(`{"position":"oops"`), 1, fx.member))

	room := reload(fx.room.ID)
	assert.False(t, room.IsPlaying)

	events, err := engine.RoomEvents(ctx, fx.room.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, `{"position":"oops"`, events[0].EventData)
}

func TestSubmit_EmptyPayloadStoredAsEmptyObject(t *testing.T) {
	engine, _, _, fx, _ := setupRoom(t)
	ctx := context.Background()

	require.NoError(t, engine.Submit(ctx, fx.room.ID, model.EventRemoteAction, nil, 1, fx.member))

	events, err := engine.RoomEvents(ctx, fx.room.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "{}", events[0].EventData)
}

func TestSubmit_NonParticipantForbidden(t *testing.T) {
	engine, _, _, fx, _ := setupRoom(t)

	err := engine.Submit(context.Background(), fx.room.ID, model.EventPlay, nil, 1, identity.Actor{UserID: "stranger"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSubmit_PublishesEventAndRoomUpdate(t *testing.T) {
	engine, _, fn, fx, _ := setupRoom(t)

	require.NoError(t, engine.Submit(context.Background(), fx.room.ID, model.EventPlay, json.RawMessage(`{"position":10}`), 1, fx.member))

	assert.Equal(t, 1, fn.published("sync_events", notifier.OpInsert))
	assert.GreaterOrEqual(t, fn.published("rooms", notifier.OpUpdate), 1)
}
