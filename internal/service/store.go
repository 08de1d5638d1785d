package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatclient/internal/domain"
	"chatclient/internal/logger"
	"chatclient/internal/ws"
)

// Pusher is the live channel the store emits frames on after a REST send.
type Pusher interface {
	Connected() bool
	Send(v any) bool
}

type ViewKind int

const (
	ViewNone ViewKind = iota
	ViewDirect
	ViewRoom
)

// View identifies the conversation or room currently open in the UI.
type View struct {
	Kind ViewKind `json:"kind"`
	ID   int64    `json:"id"`
}

type StoreOptions struct {
	SelfID          int64 // current user; 0 when unknown, see SetSelf
	PageSize        int
	MarkReadTimeout time.Duration
	Cache           domain.PreviewCache
	Logger          *zap.Logger
}

func (o *StoreOptions) norm() {
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.MarkReadTimeout <= 0 {
		o.MarkReadTimeout = 10 * time.Second
	}
	o.Logger = logger.OrNop(o.Logger)
}

type directConversation struct {
	log    *timeline[domain.Message]
	unread int
}

type room struct {
	info    *domain.ChatRoom
	members []domain.ChatRoomMember
	log     *timeline[domain.GroupMessage]
}

// RoomSnapshot is a read-only copy of one room's state.
type RoomSnapshot struct {
	Room     *domain.ChatRoom        `json:"room,omitempty"`
	Members  []domain.ChatRoomMember `json:"members"`
	Messages []domain.GroupMessage   `json:"messages"`
}

// Store is the in-memory model of direct conversations and rooms. It is the
// target of both history fetches and router pushes.
type Store struct {
	api  domain.ChatAPI
	push Pusher
	opts StoreOptions
	log  *zap.Logger

	mu        sync.RWMutex
	self      int64
	directs   map[int64]*directConversation
	rooms     map[int64]*room
	active    View
	openSeq   uint64
	summaries []domain.ConversationSummary
	closed    bool

	bg sync.WaitGroup
}

func NewStore(api domain.ChatAPI, push Pusher, opts StoreOptions) *Store {
	opts.norm()
	return &Store{
		api:     api,
		push:    push,
		opts:    opts,
		log:     opts.Logger.Named("store"),
		self:    opts.SelfID,
		directs: make(map[int64]*directConversation),
		rooms:   make(map[int64]*room),
	}
}

// SetSelf records the id of the signed-in user, used to route echoes of the
// user's own direct messages to the right conversation.
func (s *Store) SetSelf(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = userID
}

// OpenDirect makes userID the active conversation and replaces its log with
// the first history page merged with any pushes received during the fetch.
// A response that arrives after the user navigated elsewhere is discarded.
func (s *Store) OpenDirect(ctx context.Context, userID int64) ([]domain.Message, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("open conversation %d: %w", userID, domain.ErrInvalidInput)
	}

	s.mu.Lock()
	seq := s.activateLocked(View{Kind: ViewDirect, ID: userID})
	conv := s.directLocked(userID)
	tok := conv.log.beginFetch()
	s.mu.Unlock()

	msgs, err := s.api.ListMessages(ctx, userID, 1, s.opts.PageSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openSeq != seq {
		s.log.Debug("discarding stale history", zap.Int64("user_id", userID))
		conv.log.abortFetch(tok)
		return nil, domain.ErrStaleResponse
	}
	if err != nil {
		conv.log.abortFetch(tok)
		return nil, fmt.Errorf("list messages with %d: %w", userID, err)
	}

	conv.log.replace(msgs)
	markReadFrom(conv.log, userID)
	conv.unread = 0
	s.touchSummaryLocked(userID, conv)
	s.markReadAsync(userID)
	return conv.log.snapshot(), nil
}

// OpenRoom makes roomID the active room, the only one that accepts group
// pushes, and replaces its state with freshly fetched info, members and history.
func (s *Store) OpenRoom(ctx context.Context, roomID int64) (*RoomSnapshot, error) {
	if roomID <= 0 {
		return nil, fmt.Errorf("open room %d: %w", roomID, domain.ErrInvalidInput)
	}

	s.mu.Lock()
	seq := s.activateLocked(View{Kind: ViewRoom, ID: roomID})
	r := s.roomLocked(roomID)
	tok := r.log.beginFetch()
	s.mu.Unlock()

	var (
		info    *domain.ChatRoom
		members []domain.ChatRoomMember
		msgs    []domain.GroupMessage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if info, err = s.api.GetRoom(gctx, roomID); err != nil {
			return fmt.Errorf("get room %d: %w", roomID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if members, err = s.api.ListRoomMembers(gctx, roomID); err != nil {
			return fmt.Errorf("list members of room %d: %w", roomID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if msgs, err = s.api.ListRoomMessages(gctx, roomID, 1, s.opts.PageSize); err != nil {
			return fmt.Errorf("list messages of room %d: %w", roomID, err)
		}
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openSeq != seq {
		s.log.Debug("discarding stale room history", zap.Int64("room_id", roomID))
		r.log.abortFetch(tok)
		return nil, domain.ErrStaleResponse
	}
	if err != nil {
		r.log.abortFetch(tok)
		return nil, err
	}

	r.info = info
	r.members = members
	r.log.replace(msgs)
	return r.snapshot(), nil
}

// CloseActive deactivates the open conversation or room. Buffers are kept;
// in-flight fetches for the closed view are discarded when they resolve.
func (s *Store) CloseActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activateLocked(View{})
}

// SendDirect persists content over REST, appends the returned message and,
// when the push channel is open, emits a live frame for the recipient.
// REST failures are returned and never retried.
func (s *Store) SendDirect(ctx context.Context, userID int64, content string) (*domain.Message, error) {
	if userID <= 0 || strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("send message: %w", domain.ErrInvalidInput)
	}

	msg, err := s.api.SendMessage(ctx, userID, content)
	if err != nil {
		return nil, fmt.Errorf("send message to %d: %w", userID, err)
	}

	s.mu.Lock()
	conv := s.directLocked(userID)
	if conv.log.add(*msg) {
		s.touchSummaryLocked(userID, conv)
	}
	s.mu.Unlock()

	if s.push != nil && s.push.Connected() {
		s.push.Send(ws.NewOutboundDirect(userID, content))
	}
	out := *msg
	return &out, nil
}

// SendGroup persists content to a room. Delivery to other members is the
// server's job; the persisted message is shown locally if the room is open.
func (s *Store) SendGroup(ctx context.Context, roomID int64, content string) (*domain.GroupMessage, error) {
	if roomID <= 0 || strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("send group message: %w", domain.ErrInvalidInput)
	}

	msg, err := s.api.SendRoomMessage(ctx, roomID, content)
	if err != nil {
		return nil, fmt.Errorf("send message to room %d: %w", roomID, err)
	}

	s.mu.Lock()
	if s.active == (View{Kind: ViewRoom, ID: roomID}) {
		s.roomLocked(roomID).log.add(*msg)
	}
	s.mu.Unlock()

	out := *msg
	return &out, nil
}

// ApplyDirectPush appends a pushed direct message to the counterpart's
// conversation whether or not it is open.
func (s *Store) ApplyDirectPush(m domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer := m.SenderID
	if s.self != 0 && m.SenderID == s.self {
		peer = m.ReceiverID
	}
	if peer == 0 {
		return false
	}
	conv := s.directLocked(peer)
	if !conv.log.add(m) {
		return false
	}
	inbound := m.SenderID == peer
	if inbound && !m.Read && s.active != (View{Kind: ViewDirect, ID: peer}) {
		conv.unread++
	}
	s.touchSummaryLocked(peer, conv)
	return true
}

// ApplyGroupPush appends a pushed group message only when its room is the
// active one. Pushes for other rooms register the room and are dropped.
func (s *Store) ApplyGroupPush(m domain.GroupMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.roomLocked(m.ChatRoomID)
	if s.active != (View{Kind: ViewRoom, ID: m.ChatRoomID}) {
		return false
	}
	return r.log.add(m)
}

// RefreshConversations reloads the conversation list and unread counters.
func (s *Store) RefreshConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	s.mu.Lock()
	s.summaries = slices.Clone(list)
	for i := range s.summaries {
		sum := &s.summaries[i]
		conv := s.directLocked(sum.UserID)
		if s.active == (View{Kind: ViewDirect, ID: sum.UserID}) {
			sum.UnreadCount = 0
		}
		conv.unread = sum.UnreadCount
	}
	out := slices.Clone(s.summaries)
	s.mu.Unlock()

	if s.opts.Cache != nil {
		if err := s.opts.Cache.SavePreviews(ctx, out); err != nil {
			s.log.Warn("save conversation previews", zap.Error(err))
		}
	}
	return out, nil
}

// LoadCachedConversations seeds the conversation list from the preview cache
// until the first RefreshConversations succeeds.
func (s *Store) LoadCachedConversations(ctx context.Context) error {
	if s.opts.Cache == nil {
		return nil
	}
	previews, err := s.opts.Cache.LoadPreviews(ctx)
	if err != nil {
		return fmt.Errorf("load conversation previews: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.summaries) > 0 {
		return nil
	}
	s.summaries = previews
	for _, p := range previews {
		s.directLocked(p.UserID).unread = p.UnreadCount
	}
	return nil
}

func (s *Store) ListRooms(ctx context.Context) ([]domain.ChatRoom, error) {
	rooms, err := s.api.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	s.mu.Lock()
	for i := range rooms {
		info := rooms[i]
		s.roomLocked(info.ID).info = &info
	}
	s.mu.Unlock()
	return rooms, nil
}

func (s *Store) CreateRoom(ctx context.Context, in domain.RoomCreateInput) (*domain.ChatRoom, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("create room: name is required: %w", domain.ErrInvalidInput)
	}
	created, err := s.api.CreateRoom(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	s.mu.Lock()
	info := *created
	s.roomLocked(info.ID).info = &info
	s.mu.Unlock()
	return created, nil
}

func (s *Store) AddRoomMember(ctx context.Context, roomID, userID int64) error {
	if err := s.api.AddRoomMember(ctx, roomID, userID); err != nil {
		return fmt.Errorf("add member %d to room %d: %w", userID, roomID, err)
	}
	s.refreshMembers(ctx, roomID)
	return nil
}

// RemoveRoomMember removes userID from the room. Leaving the open room
// yourself also closes it.
func (s *Store) RemoveRoomMember(ctx context.Context, roomID, userID int64) error {
	if err := s.api.RemoveRoomMember(ctx, roomID, userID); err != nil {
		return fmt.Errorf("remove member %d from room %d: %w", userID, roomID, err)
	}
	s.mu.Lock()
	leaving := s.self != 0 && userID == s.self
	if leaving && s.active == (View{Kind: ViewRoom, ID: roomID}) {
		s.activateLocked(View{})
	}
	s.mu.Unlock()
	if leaving {
		return nil
	}
	s.refreshMembers(ctx, roomID)
	return nil
}

func (s *Store) refreshMembers(ctx context.Context, roomID int64) {
	s.mu.RLock()
	_, known := s.rooms[roomID]
	s.mu.RUnlock()
	if !known {
		return
	}

	members, err := s.api.ListRoomMembers(ctx, roomID)
	if err != nil {
		s.log.Warn("refresh room members", zap.Int64("room_id", roomID), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.roomLocked(roomID).members = members
	s.mu.Unlock()
}

// Messages returns a copy of the direct conversation log with userID.
func (s *Store) Messages(userID int64) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conv, ok := s.directs[userID]; ok {
		return conv.log.snapshot()
	}
	return nil
}

func (s *Store) Unread(userID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conv, ok := s.directs[userID]; ok {
		return conv.unread
	}
	return 0
}

func (s *Store) RoomMessages(roomID int64) []domain.GroupMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rooms[roomID]; ok {
		return r.log.snapshot()
	}
	return nil
}

func (s *Store) Room(roomID int64) (*RoomSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	return r.snapshot(), true
}

func (s *Store) Conversations() []domain.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.summaries)
}

func (s *Store) Active() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Wait blocks until background best-effort calls have finished.
func (s *Store) Wait() {
	s.bg.Wait()
}

// Close stops new background calls from starting and waits for running ones.
// The store stays readable.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.bg.Wait()
}

func (s *Store) activateLocked(v View) uint64 {
	s.active = v
	s.openSeq++
	return s.openSeq
}

func (s *Store) directLocked(userID int64) *directConversation {
	conv, ok := s.directs[userID]
	if !ok {
		conv = &directConversation{log: newTimeline(directIdentity)}
		s.directs[userID] = conv
	}
	return conv
}

func (s *Store) roomLocked(roomID int64) *room {
	r, ok := s.rooms[roomID]
	if !ok {
		r = &room{log: newTimeline(groupIdentity)}
		s.rooms[roomID] = r
	}
	return r
}

func (r *room) snapshot() *RoomSnapshot {
	snap := &RoomSnapshot{
		Members:  slices.Clone(r.members),
		Messages: r.log.snapshot(),
	}
	if r.info != nil {
		info := *r.info
		snap.Room = &info
	}
	return snap
}

// touchSummaryLocked moves userID's preview to the top of the list with the
// conversation's latest message and unread counter.
func (s *Store) touchSummaryLocked(userID int64, conv *directConversation) {
	last, ok := conv.log.last()
	if !ok {
		return
	}

	idx := slices.IndexFunc(s.summaries, func(c domain.ConversationSummary) bool { return c.UserID == userID })
	var sum domain.ConversationSummary
	if idx >= 0 {
		sum = s.summaries[idx]
		s.summaries = slices.Delete(s.summaries, idx, idx+1)
	} else {
		sum.UserID = userID
		if peer := peerOf(last, userID); peer != nil {
			sum.Name = peer.Name
			sum.AvatarURL = peer.AvatarURL
		}
	}
	sum.LastMessage = last.Content
	sum.LastTime = last.CreatedAt.Format(time.RFC3339)
	sum.UnreadCount = conv.unread
	s.summaries = slices.Insert(s.summaries, 0, sum)
}

// markReadAsync is called with s.mu held, which orders bg.Add before Close.
func (s *Store) markReadAsync(userID int64) {
	if s.closed {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.MarkReadTimeout)
		defer cancel()
		if err := s.api.MarkRead(ctx, userID); err != nil {
			s.log.Warn("mark read", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()
}

func markReadFrom(tl *timeline[domain.Message], senderID int64) {
	for i := range tl.items {
		if tl.items[i].SenderID == senderID {
			tl.items[i].Read = true
		}
	}
}

func peerOf(m domain.Message, userID int64) *domain.User {
	if m.SenderID == userID {
		return m.Sender
	}
	return m.Receiver
}
