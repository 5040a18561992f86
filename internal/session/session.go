package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State 구독 연결 상태
type State int

const (
	StateConnecting State = iota // 스냅샷 전송 전
	StateConnected               // 변경 스트림 수신 중
	StateClosed                  // 연결 종료
)

// String 상태를 문자열로 반환 (클라이언트 connection_status 값과 일치)
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "disconnected"
	default:
		return "error"
	}
}

// Session 방 구독자 세션 (Thread-Safe).
// 구독 시 생성되고 구독 해제 시 반드시 Close된다. 전역 상태를 두지 않는 이유는
// 네트워크 없이도 결정적으로 정리/테스트할 수 있어야 하기 때문이다.
type Session struct {
	ID          string
	RoomID      string
	PresenceKey string
	ConnectedAt time.Time

	// 동시성 제어
	mu    sync.RWMutex
	state State

	// 허브 -> 연결 쓰기 펌프로 가는 송신 버퍼
	Outbound chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	frameCount uint64
}

// New 새 구독자 세션 생성
func New(roomID, presenceKey string, bufferSize int) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		PresenceKey: presenceKey,
		ConnectedAt: time.Now(),
		state:       StateConnecting,
		Outbound:    make(chan []byte, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context 세션 컨텍스트 반환
func (s *Session) Context() context.Context {
	return s.ctx
}

// SetConnected 스냅샷 전송 완료 후 상태 전환
func (s *Session) SetConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnecting {
		s.state = StateConnected
	}
}

// GetState 현재 상태 조회
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// IncrementFrameCount 전송 프레임 카운트 증가
func (s *Session) IncrementFrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frameCount++
	return s.frameCount
}

// FrameCount 지금까지 전송된 프레임 수
func (s *Session) FrameCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.frameCount
}

// Duration 연결 유지 시간
func (s *Session) Duration() time.Duration {
	return time.Since(s.ConnectedAt)
}

// Close 세션 정리 (멱등)
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}

	s.state = StateClosed
	s.cancel()
	close(s.Outbound)
}

// IsClosed 세션 종료 여부 확인
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state == StateClosed
}
