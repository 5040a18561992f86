package model

// RoomStatus 방 상태
type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusActive  RoomStatus = "active"
	RoomStatusEnded   RoomStatus = "ended"
)

func (s RoomStatus) String() string {
	return string(s)
}

// ParticipantRole 참가자 역할
type ParticipantRole string

const (
	RoleHost   ParticipantRole = "host"
	RoleMember ParticipantRole = "member"
)

func (r ParticipantRole) String() string {
	return string(r)
}

// DeviceType 디바이스 타입
type DeviceType string

const (
	DeviceFireTV DeviceType = "firetv"
	DeviceMobile DeviceType = "mobile"
)

func (d DeviceType) String() string {
	return string(d)
}

// MessageType 채팅 메시지 타입
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeImage    MessageType = "image"
	MessageTypeReaction MessageType = "reaction"
	MessageTypeEmoji    MessageType = "emoji"
	MessageTypeSystem   MessageType = "system"
)

func (m MessageType) String() string {
	return string(m)
}

// SyncEventType 동기화 이벤트 타입
type SyncEventType string

const (
	EventPlay          SyncEventType = "play"
	EventPause         SyncEventType = "pause"
	EventSeek          SyncEventType = "seek"
	EventContentChange SyncEventType = "content_change"
	EventStartParty    SyncEventType = "start_party"
	EventEndParty      SyncEventType = "end_party"
	EventRemoteAction  SyncEventType = "remote_action"
	EventVolumeChange  SyncEventType = "volume_change"
)

func (e SyncEventType) String() string {
	return string(e)
}
