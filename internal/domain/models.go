package domain

import "time"

// User is the subset of the platform user payload the chat client renders.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Message represents a direct message between the current user and one other user.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	Sender     *User     `json:"sender,omitempty"`
	ReceiverID int64     `json:"receiver_id"`
	Receiver   *User     `json:"receiver,omitempty"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`

	// Synthetic is set when ID was assigned locally because the push carried none.
	Synthetic bool `json:"synthetic,omitempty"`
}

// GroupMessage represents a single message posted to a chat room.
type GroupMessage struct {
	ID         int64     `json:"id"`
	ChatRoomID int64     `json:"chat_room_id"`
	SenderID   int64     `json:"sender_id"`
	Sender     *User     `json:"sender,omitempty"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`

	Synthetic bool `json:"synthetic,omitempty"`
}

// ChatRoom represents a named multi-member group chat.
type ChatRoom struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     int64     `json:"owner_id"`
	Owner       *User     `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChatRoomMember represents the membership of a user in a chat room.
type ChatRoomMember struct {
	ID         int64     `json:"id"`
	ChatRoomID int64     `json:"chat_room_id"`
	UserID     int64     `json:"user_id"`
	User       *User     `json:"user,omitempty"`
	JoinedAt   time.Time `json:"joined_at"`
}

// ConversationSummary is one row of the conversation list: the other participant,
// a preview of the last message and the unread counter.
type ConversationSummary struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	LastMessage string `json:"last_message"`
	LastTime    string `json:"last_time"`
	UnreadCount int    `json:"unread_count"`
}

// RoomCreateInput carries the fields accepted when creating a chat room.
type RoomCreateInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	MemberIDs   []int64 `json:"member_ids,omitempty"`
}
