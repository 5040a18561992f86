package model

import (
	"time"
)

// User 사용자 (인증된 사용자 + 익명 풀 계정)
type User struct {
	ID         string  `gorm:"type:uuid;primaryKey" json:"id"`
	Email      *string `gorm:"type:varchar(255);uniqueIndex" json:"email,omitempty"`
	Nickname   string  `gorm:"type:varchar(100);not null" json:"nickname"`
	ProfileImg *string `gorm:"type:text" json:"profile_img,omitempty"`
	Provider   *string `gorm:"type:varchar(50)" json:"provider,omitempty"`
	ProviderID *string `gorm:"type:varchar(255)" json:"provider_id,omitempty"`

	// 익명 호스트 풀 계정 여부 (파티 생성 시 로드밸런싱 대상)
	IsPoolIdentity bool      `gorm:"default:false;index" json:"is_pool_identity"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	HostedRooms []Room `gorm:"foreignKey:HostID" json:"hosted_rooms,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Room 워치파티 방
type Room struct {
	ID                string  `gorm:"type:uuid;primaryKey" json:"id"`
	Code              string  `gorm:"type:varchar(6);not null;index" json:"code"`
	Name              string  `gorm:"type:varchar(200);not null" json:"name"`
	HostID            string  `gorm:"type:uuid;not null;index" json:"host_id"`
	Status            string  `gorm:"type:varchar(20);default:'waiting'" json:"status"` // waiting, active, ended
	IsPlaying         bool    `gorm:"default:false" json:"is_playing"`
	CurrentPosition   int64   `gorm:"default:0" json:"current_position"` // 밀리초
	CurrentContentURL *string `gorm:"type:text" json:"current_content_url,omitempty"`

	AllowRemoteControl bool      `gorm:"default:true" json:"allow_remote_control"`
	AutoDiscovery      bool      `gorm:"default:false" json:"auto_discovery"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Host         User          `gorm:"foreignKey:HostID" json:"host,omitempty"`
	Participants []Participant `gorm:"foreignKey:RoomID" json:"participants,omitempty"`
	SyncEvents   []SyncEvent   `gorm:"foreignKey:RoomID" json:"sync_events,omitempty"`
	ChatMessages []ChatMessage `gorm:"foreignKey:RoomID" json:"chat_messages,omitempty"`
}

func (Room) TableName() string {
	return "rooms"
}

// Participant 방 참가자
type Participant struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID     string    `gorm:"type:uuid;not null;index" json:"room_id"`
	UserID     string    `gorm:"type:varchar(64);not null;index" json:"user_id"` // 인증 사용자 ID 또는 클라이언트 보관 익명 ID
	Username   string    `gorm:"type:varchar(100);not null" json:"username"`
	Role       string    `gorm:"type:varchar(20);not null" json:"role"`        // host, member
	DeviceType string    `gorm:"type:varchar(20);not null" json:"device_type"` // firetv, mobile
	DeviceName string    `gorm:"type:varchar(100)" json:"device_name"`
	IsConnected bool     `gorm:"default:true" json:"is_connected"`
	AnonToken  *string   `gorm:"type:uuid" json:"-"` // 익명 참가자 능력 토큰 (응답으로 1회 전달, 이후 노출 금지)
	JoinedAt   time.Time `gorm:"autoCreateTime" json:"joined_at"`
	LastSeen   time.Time `gorm:"autoUpdateTime" json:"last_seen"`

	// Relations
	Room Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
}

func (Participant) TableName() string {
	return "participants"
}

// SyncEvent 재생 동기화 이벤트 (append-only 로그)
type SyncEvent struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID      string    `gorm:"type:uuid;not null;index" json:"room_id"`
	UserID      string    `gorm:"type:varchar(64);not null" json:"user_id"`
	EventType   string    `gorm:"type:varchar(30);not null" json:"event_type"`
	EventData   string    `gorm:"type:text" json:"event_data"` // 원문 보존. 잘못된 JSON도 기록 대상이므로 jsonb가 아니다

	TimestampMs int64     `gorm:"not null" json:"timestamp_ms"` // 클라이언트 논리 시각 (참고용)
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// Relations
	Room Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
}

func (SyncEvent) TableName() string {
	return "sync_events"
}

// ChatMessage 채팅 메시지 (불변)
type ChatMessage struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID        string    `gorm:"type:uuid;not null;index" json:"room_id"`
	UserID        string    `gorm:"type:varchar(64);not null" json:"user_id"`
	Username      string    `gorm:"type:varchar(100);not null" json:"username"` // 서버가 참가자 명부에서 확정
	Message       string    `gorm:"type:text;not null" json:"message"`
	MessageType   string    `gorm:"type:varchar(20);default:'text'" json:"message_type"` // text, voice, image, reaction, emoji, system
	VoiceDuration *int      `json:"voice_duration,omitempty"`                            // 초 단위, voice 타입에서만 의미
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// Relations
	Room Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
