package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatclient/internal/domain"
	"chatclient/internal/logger"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4 << 10

type Options struct {
	BaseURL    string // e.g. http://localhost:8080/api
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the platform REST API with a bearer token.
type Client struct {
	base string
	http *http.Client
	log  *zap.Logger

	mu    sync.RWMutex
	token string
}

var _ domain.ChatAPI = (*Client)(nil)

func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q: %w", opts.BaseURL, domain.ErrInvalidInput)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		base:  strings.TrimRight(u.String(), "/"),
		http:  hc,
		log:   logger.OrNop(opts.Logger).Named("rest"),
		token: opts.Token,
	}, nil
}

// SetToken replaces the bearer credential used by subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	var out []domain.ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/messages/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListMessages(ctx context.Context, userID int64, page, limit int) ([]domain.Message, error) {
	var out []domain.Message
	path := "/messages/" + id(userID)
	if err := c.do(ctx, http.MethodGet, path, pageQuery(page, limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, userID int64, content string) (*domain.Message, error) {
	var out domain.Message
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, "/messages/"+id(userID), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead asks the server to mark userID's messages read. Servers that mark
// messages read while serving history answer 404, which is not an error here.
func (c *Client) MarkRead(ctx context.Context, userID int64) error {
	err := c.do(ctx, http.MethodPost, "/messages/"+id(userID)+"/read", nil, nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (c *Client) ListRooms(ctx context.Context) ([]domain.ChatRoom, error) {
	var out []domain.ChatRoom
	if err := c.do(ctx, http.MethodGet, "/chat-rooms", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateRoom(ctx context.Context, in domain.RoomCreateInput) (*domain.ChatRoom, error) {
	var out domain.ChatRoom
	if err := c.do(ctx, http.MethodPost, "/chat-rooms", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRoom(ctx context.Context, roomID int64) (*domain.ChatRoom, error) {
	var out domain.ChatRoom
	if err := c.do(ctx, http.MethodGet, "/chat-rooms/"+id(roomID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRoomMembers(ctx context.Context, roomID int64) ([]domain.ChatRoomMember, error) {
	var out []domain.ChatRoomMember
	if err := c.do(ctx, http.MethodGet, "/chat-rooms/"+id(roomID)+"/members", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddRoomMember(ctx context.Context, roomID, userID int64) error {
	body := map[string]int64{"user_id": userID}
	return c.do(ctx, http.MethodPost, "/chat-rooms/"+id(roomID)+"/members", nil, body, nil)
}

func (c *Client) RemoveRoomMember(ctx context.Context, roomID, userID int64) error {
	return c.do(ctx, http.MethodDelete, "/chat-rooms/"+id(roomID)+"/members/"+id(userID), nil, nil, nil)
}

func (c *Client) ListRoomMessages(ctx context.Context, roomID int64, page, limit int) ([]domain.GroupMessage, error) {
	var out []domain.GroupMessage
	path := "/chat-rooms/" + id(roomID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, pageQuery(page, limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendRoomMessage(ctx context.Context, roomID int64, content string) (*domain.GroupMessage, error) {
	var out domain.GroupMessage
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, "/chat-rooms/"+id(roomID)+"/messages", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		rd = bytes.NewReader(buf)
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	c.log.Debug("request", zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: %s: %w", op, errorText(resp), statusError(resp.StatusCode))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func statusError(code int) error {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrInvalidInput
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	default:
		return domain.ErrUpstream
	}
}

// errorText extracts {"error": "..."} or {"detail": "..."} from an error
// response, falling back to the status text.
func errorText(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode)
}

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
