package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"chatclient/internal/domain"
	"chatclient/internal/logger"
	"chatclient/internal/ws"
)

// Sink receives normalized pushes. *Store implements it.
type Sink interface {
	ApplyDirectPush(domain.Message) bool
	ApplyGroupPush(domain.GroupMessage) bool
}

// Router turns decoded push frames into domain messages and hands them to the
// sink. Frames without a server id get a synthetic one, unique per process.
type Router struct {
	sink  Sink
	log   *zap.Logger
	clock func() time.Time

	mu     sync.Mutex
	lastID int64
}

func NewRouter(sink Sink, log *zap.Logger) *Router {
	return &Router{
		sink:  sink,
		log:   logger.OrNop(log).Named("router"),
		clock: time.Now,
	}
}

// Route is installed as the session's frame handler.
func (r *Router) Route(f ws.Frame) {
	switch f := f.(type) {
	case *ws.DirectMessageFrame:
		m := f.Message
		if m.ID == 0 {
			m.ID = r.syntheticID()
			m.Synthetic = true
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = r.clock()
		}
		if !r.sink.ApplyDirectPush(m) {
			r.log.Debug("direct push ignored", zap.Int64("id", m.ID), zap.Int64("sender_id", m.SenderID))
		}

	case *ws.GroupMessageFrame:
		m := domain.GroupMessage{
			ID:         r.syntheticID(),
			ChatRoomID: f.RoomID,
			SenderID:   f.SenderID,
			SenderName: f.SenderName,
			Content:    f.Content,
			CreatedAt:  r.clock(),
			Synthetic:  true,
		}
		if f.SenderName != "" {
			m.Sender = &domain.User{ID: f.SenderID, Name: f.SenderName}
		}
		if !r.sink.ApplyGroupPush(m) {
			r.log.Debug("group push ignored", zap.Int64("room_id", m.ChatRoomID))
		}

	default:
		r.log.Warn("unknown frame variant", zap.Stringer("kind", f.Kind()))
	}
}

// syntheticID returns a strictly increasing millisecond timestamp.
func (r *Router) syntheticID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.clock().UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id
	return id
}
