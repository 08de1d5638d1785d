package domain

import (
	"context"
)

// ChatAPI is the REST collaborator the chat core consumes. History endpoints
// return pages ordered oldest to newest; send endpoints return the persisted
// message including its server-assigned id.
type ChatAPI interface {
	ListConversations(ctx context.Context) ([]ConversationSummary, error)
	ListMessages(ctx context.Context, userID int64, page, limit int) ([]Message, error)
	SendMessage(ctx context.Context, userID int64, content string) (*Message, error)
	MarkRead(ctx context.Context, userID int64) error

	ListRooms(ctx context.Context) ([]ChatRoom, error)
	CreateRoom(ctx context.Context, in RoomCreateInput) (*ChatRoom, error)
	GetRoom(ctx context.Context, roomID int64) (*ChatRoom, error)
	ListRoomMembers(ctx context.Context, roomID int64) ([]ChatRoomMember, error)
	AddRoomMember(ctx context.Context, roomID, userID int64) error
	RemoveRoomMember(ctx context.Context, roomID, userID int64) error
	ListRoomMessages(ctx context.Context, roomID int64, page, limit int) ([]GroupMessage, error)
	SendRoomMessage(ctx context.Context, roomID int64, content string) (*GroupMessage, error)
}

// PreviewCache persists conversation list previews between runs.
type PreviewCache interface {
	SavePreviews(ctx context.Context, previews []ConversationSummary) error
	LoadPreviews(ctx context.Context) ([]ConversationSummary, error)
}
