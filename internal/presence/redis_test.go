package presence

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	m := NewManager(mr.Addr(), "", 0, 60*time.Second)
	t.Cleanup(func() { m.Close() })

	return m, mr
}

func TestTrackAndRoomPresence(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.Track("room-1", "alice", Data{UserID: "user-1", Username: "alice"}))
	require.NoError(t, m.Track("room-1", "bob", Data{UserID: "user-2", Username: "bob"}))

	view, err := m.RoomPresence("room-1")
	require.NoError(t, err)
	require.Len(t, view, 2)
	assert.Equal(t, "user-1", view["alice"].UserID)
	assert.NotZero(t, view["alice"].OnlineAt)

	// 다른 방에는 영향이 없다
	other, err := m.RoomPresence("room-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestHeartbeat_ExtendsTTL(t *testing.T) {
	m, mr := newTestManager(t)

	require.NoError(t, m.Track("room-1", "alice", Data{UserID: "user-1"}))

	// TTL을 소모시킨 뒤 하트비트로 연장
	mr.FastForward(40 * time.Second)
	require.NoError(t, m.Heartbeat("room-1", "alice"))
	mr.FastForward(40 * time.Second)

	view, err := m.RoomPresence("room-1")
	require.NoError(t, err)
	assert.Len(t, view, 1, "heartbeat keeps the entry alive past the original TTL")
}

func TestHeartbeat_ExpiredEntryFails(t *testing.T) {
	m, mr := newTestManager(t)

	require.NoError(t, m.Track("room-1", "alice", Data{UserID: "user-1"}))
	mr.FastForward(61 * time.Second)

	assert.Error(t, m.Heartbeat("room-1", "alice"))
}

func TestRoomPresence_PrunesExpiredEntries(t *testing.T) {
	m, mr := newTestManager(t)

	require.NoError(t, m.Track("room-1", "alice", Data{UserID: "user-1"}))
	require.NoError(t, m.Track("room-1", "bob", Data{UserID: "user-2"}))

	// alice만 만료시키기: bob의 하트비트 이후 시간 경과
	mr.FastForward(30 * time.Second)
	require.NoError(t, m.Heartbeat("room-1", "bob"))
	mr.FastForward(40 * time.Second)

	view, err := m.RoomPresence("room-1")
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Contains(t, view, "bob")

	// 만료된 키는 인덱스 셋에서도 정리됐다
	members, err := mr.SMembers("presence:room:room-1:members")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, members)
}

func TestUntrack(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.Track("room-1", "alice", Data{UserID: "user-1"}))
	require.NoError(t, m.Untrack("room-1", "alice"))

	view, err := m.RoomPresence("room-1")
	require.NoError(t, err)
	assert.Empty(t, view)
}
