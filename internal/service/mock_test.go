package service_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"chatclient/internal/domain"
)

type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConversationSummary), args.Error(1)
}

func (m *MockChatAPI) ListMessages(ctx context.Context, userID int64, page, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, userID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockChatAPI) SendMessage(ctx context.Context, userID int64, content string) (*domain.Message, error) {
	args := m.Called(ctx, userID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockChatAPI) MarkRead(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockChatAPI) ListRooms(ctx context.Context) ([]domain.ChatRoom, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ChatRoom), args.Error(1)
}

func (m *MockChatAPI) CreateRoom(ctx context.Context, in domain.RoomCreateInput) (*domain.ChatRoom, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatRoom), args.Error(1)
}

func (m *MockChatAPI) GetRoom(ctx context.Context, roomID int64) (*domain.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatRoom), args.Error(1)
}

func (m *MockChatAPI) ListRoomMembers(ctx context.Context, roomID int64) ([]domain.ChatRoomMember, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ChatRoomMember), args.Error(1)
}

func (m *MockChatAPI) AddRoomMember(ctx context.Context, roomID, userID int64) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *MockChatAPI) RemoveRoomMember(ctx context.Context, roomID, userID int64) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *MockChatAPI) ListRoomMessages(ctx context.Context, roomID int64, page, limit int) ([]domain.GroupMessage, error) {
	args := m.Called(ctx, roomID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.GroupMessage), args.Error(1)
}

func (m *MockChatAPI) SendRoomMessage(ctx context.Context, roomID int64, content string) (*domain.GroupMessage, error) {
	args := m.Called(ctx, roomID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GroupMessage), args.Error(1)
}

type MockPreviewCache struct {
	mock.Mock
}

func (m *MockPreviewCache) SavePreviews(ctx context.Context, previews []domain.ConversationSummary) error {
	args := m.Called(ctx, previews)
	return args.Error(0)
}

func (m *MockPreviewCache) LoadPreviews(ctx context.Context) ([]domain.ConversationSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConversationSummary), args.Error(1)
}

// fakePusher records frames handed to Send.
type fakePusher struct {
	mu        sync.Mutex
	connected bool
	sent      []any
}

func (p *fakePusher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePusher) Send(v any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return false
	}
	p.sent = append(p.sent, v)
	return true
}

func (p *fakePusher) frames() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.sent...)
}
