package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"chatclient/internal/domain"
)

// Wire discriminants.
const (
	TypeGroupMessage = "group_message"
	TypeMessage      = "message"
)

var ErrInvalidFrame = errors.New("invalid frame")

// Kind identifies the variant of a Frame.
type Kind int

const (
	KindDirect Kind = iota
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindGroup:
		return "group"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one inbound push. The set of variants is closed:
// *DirectMessageFrame and *GroupMessageFrame.
type Frame interface {
	Kind() Kind
	isFrame()
}

// DirectMessageFrame is the untagged variant: a REST-shaped direct message.
// Legacy relays send only sender_id, receiver_id and content, leaving ID zero.
type DirectMessageFrame struct {
	domain.Message
}

func (*DirectMessageFrame) Kind() Kind { return KindDirect }
func (*DirectMessageFrame) isFrame()   {}

// GroupMessageFrame is a push for a chat room. It carries no server id.
type GroupMessageFrame struct {
	SenderID   int64  `json:"sender_id"`
	RoomID     int64  `json:"room_id"`
	Content    string `json:"content"`
	SenderName string `json:"sender_name"`
}

func (*GroupMessageFrame) Kind() Kind { return KindGroup }
func (*GroupMessageFrame) isFrame()   {}

type envelope struct {
	Type string `json:"type"`
}

// DecodeFrame classifies a JSON text frame by its "type" field. Anything other
// than "group_message", including a missing type, decodes as a direct message.
func DecodeFrame(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Type {
	case TypeGroupMessage:
		f := &GroupMessageFrame{}
		if err := json.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("decode group frame: %w", err)
		}
		if f.RoomID == 0 {
			return nil, fmt.Errorf("group frame without room_id: %w", ErrInvalidFrame)
		}
		return f, nil
	default:
		f := &DirectMessageFrame{}
		if err := json.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("decode direct frame: %w", err)
		}
		if f.SenderID == 0 {
			return nil, fmt.Errorf("direct frame without sender_id: %w", ErrInvalidFrame)
		}
		return f, nil
	}
}

// OutboundDirect is emitted after a direct message was persisted over REST so
// the recipient's open session updates without polling.
type OutboundDirect struct {
	Type       string `json:"type"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

func NewOutboundDirect(receiverID int64, content string) OutboundDirect {
	return OutboundDirect{Type: TypeMessage, ReceiverID: receiverID, Content: content}
}
