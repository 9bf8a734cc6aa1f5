package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vnkhanh/forum-notify-backend/services"
)

var ErrHubClosed = errors.New("hub is closed")

// userEntry là các kết nối của một user trong tiến trình này, dùng chung một subscription.
type userEntry struct {
	clients []*Client
	sub     services.Subscription
	// ready đóng khi subscribe xong (thành công hoặc lỗi err).
	ready chan struct{}
	err   error
}

// Hub là registry user -> các kết nối đang mở. Mọi thay đổi đi qua h.mu.
type Hub struct {
	broadcast services.Broadcaster
	log       zerolog.Logger

	mu     sync.Mutex
	users  map[uuid.UUID]*userEntry
	closed bool
}

func NewHub(broadcast services.Broadcaster, log zerolog.Logger) *Hub {
	return &Hub{
		broadcast: broadcast,
		log:       log,
		users:     make(map[uuid.UUID]*userEntry),
	}
}

// Register thêm client vào registry. Khi trả về nil, mọi tin publish sau đó
// trên kênh của user sẽ tới client này.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return ErrHubClosed
		}

		e, ok := h.users[c.UserID]
		if !ok {
			e = &userEntry{ready: make(chan struct{})}
			h.users[c.UserID] = e
			h.mu.Unlock()
			return h.subscribe(ctx, c, e)
		}
		h.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return ctx.Err()
		}

		h.mu.Lock()
		if e.err == nil && h.users[c.UserID] == e && !h.closed {
			e.clients = append(e.clients, c)
			h.mu.Unlock()
			return nil
		}
		// Entry đã bị xoá hoặc subscribe lỗi: thử lại từ đầu.
		h.mu.Unlock()
		if e.err != nil {
			return e.err
		}
	}
}

// subscribe mở subscription cho entry mới, ngoài lock.
func (h *Hub) subscribe(ctx context.Context, c *Client, e *userEntry) error {
	sub, err := h.broadcast.Subscribe(ctx, c.UserID)

	h.mu.Lock()
	if err == nil && h.closed {
		err = ErrHubClosed
		sub.Close()
	}
	if err != nil {
		e.err = fmt.Errorf("subscribe user %s: %w", c.UserID, err)
		delete(h.users, c.UserID)
		close(e.ready)
		h.mu.Unlock()
		return e.err
	}
	e.sub = sub
	e.clients = append(e.clients, c)
	close(e.ready)
	h.mu.Unlock()

	go h.relay(c.UserID, e)
	return nil
}

// relay chuyển nguyên văn từng tin, theo đúng thứ tự nhận, tới mọi client của user.
// Client có hàng đợi đầy bị loại mà không ảnh hưởng client khác.
func (h *Hub) relay(userID uuid.UUID, e *userEntry) {
	for msg := range e.sub.Messages() {
		h.mu.Lock()
		clients := append([]*Client(nil), e.clients...)
		h.mu.Unlock()

		for _, c := range clients {
			// Client đã đóng thì handler của nó tự gỡ khỏi registry.
			if err := c.enqueue(msg); errors.Is(err, errSendQueueFull) {
				h.log.Warn().Str("user_id", userID.String()).Msg("dropping websocket client that cannot keep up")
				h.Unregister(c)
				c.closeSend()
			}
		}
	}

	// Subscription kết thúc mà entry vẫn còn: đóng các client để chúng kết nối lại.
	h.mu.Lock()
	var orphans []*Client
	if h.users[userID] == e {
		delete(h.users, userID)
		orphans = e.clients
		e.clients = nil
	}
	h.mu.Unlock()
	for _, c := range orphans {
		c.closeSend()
	}
}

// Unregister gỡ client. Entry rỗng bị xoá và subscription của nó được đóng.
func (h *Hub) Unregister(c *Client) {
	var sub services.Subscription

	h.mu.Lock()
	if e, ok := h.users[c.UserID]; ok {
		for i, existing := range e.clients {
			if existing == c {
				e.clients = append(e.clients[:i], e.clients[i+1:]...)
				if len(e.clients) == 0 && e.sub != nil {
					delete(h.users, c.UserID)
					sub = e.sub
				}
				break
			}
		}
	}
	h.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			h.log.Debug().Err(err).Str("user_id", c.UserID.String()).Msg("close subscription")
		}
	}
}

// Connections trả về số kết nối đang đăng ký của user.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.users[userID]; ok {
		return len(e.clients)
	}
	return 0
}

type Stats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

func (h *Hub) GetStats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Stats{}
	for _, e := range h.users {
		if len(e.clients) == 0 {
			continue
		}
		s.Users++
		s.Connections += len(e.clients)
	}
	return s
}

// Close đóng mọi subscription và kết nối. Register sau đó trả về ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	users := h.users
	h.users = make(map[uuid.UUID]*userEntry)
	h.mu.Unlock()

	for _, e := range users {
		if e.sub != nil {
			e.sub.Close()
		}
		for _, c := range e.clients {
			c.closeSend()
		}
	}
}
