package service

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/model"
	"watchparty-backend/internal/notifier"
)

const (
	codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeDigits  = "0123456789"
)

// Directory 방 생성과 코드 조회 담당
type Directory struct {
	db              *gorm.DB
	resolver        *identity.Resolver
	notifier        Notifier
	maxCodeAttempts int
	codeFn          func() (string, error) // 테스트에서 대체 가능
}

// NewDirectory Directory 생성
func NewDirectory(db *gorm.DB, resolver *identity.Resolver, n Notifier, maxCodeAttempts int) *Directory {
	return &Directory{
		db:              db,
		resolver:        resolver,
		notifier:        n,
		maxCodeAttempts: maxCodeAttempts,
		codeFn:          generateRoomCode,
	}
}

// CreateRoomRequest 방 생성 요청
type CreateRoomRequest struct {
	Name               string           `json:"name"`
	AllowRemoteControl bool             `json:"allow_remote_control"`
	AutoDiscovery      bool             `json:"auto_discovery"`
	Username           string           `json:"username"`
	DeviceType         model.DeviceType `json:"device_type"`
	DeviceName         string           `json:"device_name"`
}

// CreateRoomResult 방 생성 결과. ParticipantToken은 익명 경로에서만 채워진다.
type CreateRoomResult struct {
	Room             *model.Room
	Host             *model.Participant
	ParticipantToken string
}

// CreateRoom 방 생성. 인증 경로는 JWT 주체를 호스트로, 익명 경로는 풀 계정을 호스트로 쓴다.
// 익명 경로는 검증할 세션 토큰이 없으므로 서버 측 인가 없이 진행된다(수용된 트레이드오프).
func (d *Directory) CreateRoom(ctx context.Context, req CreateRoomRequest, actor identity.Actor) (*CreateRoomResult, error) {
	code, err := d.generateUniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	var hostID string
	var username string
	var participantToken string

	if actor.Authenticated() {
		hostID = actor.UserID
		username = req.Username
		if username == "" {
			username = actor.Nickname
		}
	} else {
		pooled, err := d.resolver.SelectAnonymousHost(ctx)
		if err != nil {
			return nil, err
		}
		hostID = pooled.ID
		username = req.Username
		if username == "" {
			username = pooled.Nickname
		}
		participantToken = uuid.NewString()
	}

	deviceType := req.DeviceType
	if deviceType == "" {
		deviceType = model.DeviceFireTV
	}

	room := model.Room{
		ID:                 uuid.NewString(),
		Code:               code,
		Name:               req.Name,
		HostID:             hostID,
		Status:             model.RoomStatusWaiting.String(),
		AllowRemoteControl: req.AllowRemoteControl,
		AutoDiscovery:      req.AutoDiscovery,
	}

	host := model.Participant{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		UserID:      hostID,
		Username:    username,
		Role:        model.RoleHost.String(),
		DeviceType:  deviceType.String(),
		DeviceName:  req.DeviceName,
		IsConnected: true,
	}
	if participantToken != "" {
		host.AnonToken = &participantToken
	}

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		return tx.Create(&host).Error
	})
	if err != nil {
		return nil, err
	}

	publishRow(ctx, d.notifier, "rooms", notifier.OpInsert, room.ID, room)
	publishRow(ctx, d.notifier, "participants", notifier.OpInsert, room.ID, host)

	return &CreateRoomResult{
		Room:             &room,
		Host:             &host,
		ParticipantToken: participantToken,
	}, nil
}

// LookupRoomByCode 코드로 방 조회. 대소문자 무시, 종료된 방은 절대 노출하지 않는다.
func (d *Directory) LookupRoomByCode(ctx context.Context, code string) (*model.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	var room model.Room
	err := d.db.WithContext(ctx).
		Where("code = ? AND status <> ?", code, model.RoomStatusEnded.String()).
		First(&room).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	return &room, nil
}

// generateUniqueCode 종료되지 않은 방과 충돌하지 않는 코드를 생성.
// 종료된 방의 코드는 재사용 가능하므로 DB unique 제약이 아니라 여기서 검사한다.
func (d *Directory) generateUniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < d.maxCodeAttempts; attempt++ {
		code, err := d.codeFn()
		if err != nil {
			return "", err
		}

		var count int64
		if err := d.db.WithContext(ctx).Model(&model.Room{}).
			Where("code = ? AND status <> ?", code, model.RoomStatusEnded.String()).
			Count(&count).Error; err != nil {
			return "", err
		}

		if count == 0 {
			return code, nil
		}
	}

	return "", ErrCodeGeneration
}

// generateRoomCode 대문자 3자 + 숫자 3자 코드 생성
func generateRoomCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	code := make([]byte, 6)
	for i := 0; i < 3; i++ {
		code[i] = codeLetters[int(buf[i])%len(codeLetters)]
	}
	for i := 3; i < 6; i++ {
		code[i] = codeDigits[int(buf[i])%len(codeDigits)]
	}

	return string(code), nil
}
