package service

import "errors"

var (
	// ErrUnauthorized 유효한 주체 식별 정보가 없음
	ErrUnauthorized = errors.New("authentication required")

	// ErrForbidden 주체는 유효하나 역할/멤버십이 부족함
	ErrForbidden = errors.New("not authorized for this room")

	// ErrRoomNotFound 종료되지 않은 방 중 코드가 일치하는 방이 없음
	ErrRoomNotFound = errors.New("room not found")

	// ErrNotAParticipant 해당 방에 참가자 레코드가 없음
	ErrNotAParticipant = errors.New("not a participant of this room")

	// ErrMissingIdentity 익명 주체가 식별자/토큰 없이 요청함
	ErrMissingIdentity = errors.New("missing sender identity")

	// ErrCodeGeneration 방 코드 재생성 시도 소진
	ErrCodeGeneration = errors.New("failed to generate a unique room code")
)
