package model

import (
	"encoding/json"
)

// EventPayload 이벤트 타입별 페이로드 (event_type을 태그로 하는 합 타입)
type EventPayload interface {
	isEventPayload()
}

// PlayPayload play 이벤트 페이로드
type PlayPayload struct {
	Position int64 `json:"position"` // 밀리초, 생략 시 0
}

// PausePayload pause 이벤트 페이로드
type PausePayload struct {
	Position int64 `json:"position"`
}

// SeekPayload seek 이벤트 페이로드
type SeekPayload struct {
	Position int64 `json:"position"`
}

// ContentChangePayload content_change 이벤트 페이로드
type ContentChangePayload struct {
	URL string `json:"url"`
}

// StartPartyPayload start_party 이벤트 페이로드 (빈 페이로드)
type StartPartyPayload struct{}

// EndPartyPayload end_party 이벤트 페이로드 (빈 페이로드)
type EndPartyPayload struct{}

// OpaquePayload 방 상태를 바꾸지 않는 이벤트 (remote_action, volume_change 등)
// 원본 그대로 로그에 남고 클라이언트 측에서만 소비된다.
type OpaquePayload struct {
	Raw json.RawMessage
}

func (PlayPayload) isEventPayload()          {}
func (PausePayload) isEventPayload()         {}
func (SeekPayload) isEventPayload()          {}
func (ContentChangePayload) isEventPayload() {}
func (StartPartyPayload) isEventPayload()    {}
func (EndPartyPayload) isEventPayload()      {}
func (OpaquePayload) isEventPayload()        {}

// DecodeEventData event_type에 맞는 타입으로 event_data를 해석한다.
// 필드가 생략된 경우 제로값(position=0)으로 채워진다.
func DecodeEventData(eventType SyncEventType, raw []byte) (EventPayload, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch eventType {
	case EventPlay:
		var p PlayPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventPause:
		var p PausePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventSeek:
		var p SeekPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventContentChange:
		var p ContentChangePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventStartParty:
		return StartPartyPayload{}, nil
	case EventEndParty:
		return EndPartyPayload{}, nil
	default:
		return OpaquePayload{Raw: json.RawMessage(raw)}, nil
	}
}
