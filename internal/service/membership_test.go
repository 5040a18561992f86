package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/model"
	"watchparty-backend/internal/notifier"
)

func TestJoin_Authenticated_Idempotent(t *testing.T) {
	db, directory, membership, _, _, _ := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	guest := seedUser(t, db, "user-2", "bob")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party"}, host)
	require.NoError(t, err)

	first, err := membership.Join(ctx, created.Room.Code, JoinRequest{
		Username:   "bob",
		DeviceType: model.DeviceMobile,
	}, guest)
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember.String(), first.Participant.Role)

	// 재참가는 새 행을 만들지 않고 기존 행을 갱신한다
	second, err := membership.Join(ctx, created.Room.Code, JoinRequest{
		Username:   "bobby",
		DeviceType: model.DeviceFireTV,
	}, guest)
	require.NoError(t, err)
	assert.Equal(t, first.Participant.ID, second.Participant.ID)
	assert.Equal(t, "bobby", second.Participant.Username)
	assert.Equal(t, model.DeviceFireTV.String(), second.Participant.DeviceType)

	var count int64
	require.NoError(t, db.Model(&model.Participant{}).
		Where("room_id = ? AND user_id = ?", created.Room.ID, "user-2").
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestJoin_Rejoin_ReloadFailureSurfaces(t *testing.T) {
	db, directory, membership, _, _, fn := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	guest := seedUser(t, db, "user-2", "bob")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party"}, host)
	require.NoError(t, err)
	_, err = membership.Join(ctx, created.Room.Code, JoinRequest{Username: "bob"}, guest)
	require.NoError(t, err)

	// 재참가 경로는 참가자 조회를 두 번 한다: 기존 행 탐색, 갱신 후 재조회.
	// 재조회 쪽을 실패시켜서 stale 행이 반환/발행되지 않는지 본다
	var participantQueries int
	require.NoError(t, db.Callback().Query().Before("gorm:query").
		Register("membership_test:fail_reload", func(tx *gorm.DB) {
			if tx.Statement.Table != "participants" {
				return
			}
			participantQueries++
			if participantQueries == 2 {
				tx.AddError(errors.New("connection reset"))
			}
		}))
	defer db.Callback().Query().Remove("membership_test:fail_reload")

	before := fn.published("participants", notifier.OpUpdate)
	_, err = membership.Join(ctx, created.Room.Code, JoinRequest{Username: "bobby"}, guest)
	require.Error(t, err)
	assert.Equal(t, before, fn.published("participants", notifier.OpUpdate),
		"failed reload must not publish an update")
}

func TestJoin_HostRejoin_KeepsRole(t *testing.T) {
	db, directory, membership, _, _, _ := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party"}, host)
	require.NoError(t, err)

	rejoined, err := membership.Join(ctx, created.Room.Code, JoinRequest{Username: "alice"}, host)
	require.NoError(t, err)
	assert.Equal(t, model.RoleHost.String(), rejoined.Participant.Role, "rejoin must not demote the host")
}

func TestJoin_Anonymous_AlwaysInserts(t *testing.T) {
	db, directory, membership, _, _, _ := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party"}, host)
	require.NoError(t, err)

	anon := identity.Actor{AnonID: "device-42"}

	first, err := membership.Join(ctx, created.Room.Code, JoinRequest{Username: "tv"}, anon)
	require.NoError(t, err)
	require.NotEmpty(t, first.ParticipantToken)

	// 같은 익명 ID라도 중복 제거하지 않는다
	second, err := membership.Join(ctx, created.Room.Code, JoinRequest{Username: "tv"}, anon)
	require.NoError(t, err)
	assert.NotEqual(t, first.Participant.ID, second.Participant.ID)
	assert.NotEqual(t, first.ParticipantToken, second.ParticipantToken)

	var count int64
	require.NoError(t, db.Model(&model.Participant{}).
		Where("room_id = ? AND user_id = ?", created.Room.ID, "device-42").
		Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestJoin_Anonymous_GeneratesIDWhenMissing(t *testing.T) {
	db, directory, membership, _, _, _ := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party"}, host)
	require.NoError(t, err)

	result, err := membership.Join(ctx, created.Room.Code, JoinRequest{Username: "tv"}, identity.Actor{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Participant.UserID)
}

func TestFindParticipant_AnonymousNeedsToken(t *testing.T) {
	db, directory, membership, _, _, _ := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party"}, host)
	require.NoError(t, err)

	joined, err := membership.Join(ctx, created.Room.Code, JoinRequest{Username: "tv"}, identity.Actor{AnonID: "device-42"})
	require.NoError(t, err)

	// 토큰 없이: 식별 불가
	_, err = membership.FindParticipant(ctx, created.Room.ID, identity.Actor{AnonID: "device-42"})
	assert.ErrorIs(t, err, ErrMissingIdentity)

	// 틀린 토큰: 참가자 아님
	_, err = membership.FindParticipant(ctx, created.Room.ID, identity.Actor{AnonID: "device-42", AnonToken: "bogus"})
	assert.ErrorIs(t, err, ErrNotAParticipant)

	// 올바른 토큰
	found, err := membership.FindParticipant(ctx, created.Room.ID, identity.Actor{
		AnonID:    "device-42",
		AnonToken: joined.ParticipantToken,
	})
	require.NoError(t, err)
	assert.Equal(t, joined.Participant.ID, found.ID)
}

func TestLeave_RemovesRecord(t *testing.T) {
	db, directory, membership, _, _, fn := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	guest := seedUser(t, db, "user-2", "bob")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party"}, host)
	require.NoError(t, err)

	_, err = membership.Join(ctx, created.Room.Code, JoinRequest{Username: "bob"}, guest)
	require.NoError(t, err)

	require.NoError(t, membership.Leave(ctx, created.Room.ID, guest))
	assert.Equal(t, 1, fn.published("participants", notifier.OpDelete))

	// 두 번째 leave는 레코드가 없으므로 실패한다
	err = membership.Leave(ctx, created.Room.ID, guest)
	assert.ErrorIs(t, err, ErrNotAParticipant)
}

func TestEndParty_HostOnly(t *testing.T) {
	db, directory, membership, _, _, _ := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	guest := seedUser(t, db, "user-2", "bob")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party"}, host)
	require.NoError(t, err)

	_, err = membership.Join(ctx, created.Room.Code, JoinRequest{Username: "bob"}, guest)
	require.NoError(t, err)

	// 멤버는 종료할 수 없다
	err = membership.EndParty(ctx, created.Room.ID, guest)
	assert.ErrorIs(t, err, ErrForbidden)

	// 참가자가 아니면 존재 여부를 숨기고 Forbidden
	outsider := seedUser(t, db, "user-3", "carol")
	err = membership.EndParty(ctx, created.Room.ID, outsider)
	assert.ErrorIs(t, err, ErrForbidden)

	// 호스트는 종료 가능
	require.NoError(t, membership.EndParty(ctx, created.Room.ID, host))

	var room model.Room
	require.NoError(t, db.First(&room, "id = ?", created.Room.ID).Error)
	assert.Equal(t, model.RoomStatusEnded.String(), room.Status)
	assert.False(t, room.IsPlaying)

	var count int64
	require.NoError(t, db.Model(&model.Participant{}).
		Where("room_id = ?", created.Room.ID).
		Count(&count).Error)
	assert.EqualValues(t, 0, count, "ending the party clears the roster")

	// 명부가 비었으니 이후의 leave는 실패한다
	err = membership.Leave(ctx, created.Room.ID, guest)
	assert.ErrorIs(t, err, ErrNotAParticipant)
}

func TestRoomParticipants_OrderedByJoin(t *testing.T) {
	db, directory, membership, _, _, _ := newTestStack(t)
	host := seedUser(t, db, "user-1", "alice")
	guest := seedUser(t, db, "user-2", "bob")
	ctx := context.Background()

	created, err := directory.CreateRoom(ctx, CreateRoomRequest{Name: "party"}, host)
	require.NoError(t, err)

	_, err = membership.Join(ctx, created.Room.Code, JoinRequest{Username: "bob"}, guest)
	require.NoError(t, err)

	roster, err := membership.RoomParticipants(ctx, created.Room.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, model.RoleHost.String(), roster[0].Role)
}
