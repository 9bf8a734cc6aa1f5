package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrReconnectThrottled = errors.New("broker reconnect throttled")
	ErrClosed             = errors.New("broker manager closed")
	ErrPublishNacked      = errors.New("broker did not confirm publish")
)

const (
	defaultDialTimeout    = 5 * time.Second
	defaultHeartbeat      = 10 * time.Second
	defaultReconnectEvery = 2 * time.Second
)

type Option func(*Manager)

// WithReconnectInterval đặt khoảng tối thiểu giữa hai lần kết nối lại của publisher.
func WithReconnectInterval(d time.Duration) Option {
	return func(m *Manager) { m.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithDeadLetterExchange phải trùng với cấu hình của consumer, vì cả hai cùng khai báo queue.
func WithDeadLetterExchange(name string) Option {
	return func(m *Manager) { m.deadLetterExchange = name }
}

func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) { m.dialTimeout = d }
}

// Manager giữ kết nối publish dùng chung và mở kết nối riêng cho consumer.
// Kết nối publish được mở lười; khi hỏng thì lần Publish kế tiếp sẽ kết nối lại,
// bị giới hạn bởi limiter để không chặn caller khi broker đang sập.
type Manager struct {
	url         string
	log         zerolog.Logger
	limiter     *rate.Limiter
	dialTimeout time.Duration

	deadLetterExchange string

	// lock là mutex 1 slot; chờ lock thì tôn trọng ctx của caller.
	lock   chan struct{}
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewManager(url string, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		url:         url,
		log:         log,
		limiter:     rate.NewLimiter(rate.Every(defaultReconnectEvery), 1),
		dialTimeout: defaultDialTimeout,
		lock:        make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Dial mở một kết nối mới. Consumer dùng kết nối riêng, không chung với publisher.
// Cả TCP connect lẫn handshake AMQP dừng ở dialTimeout hoặc deadline của ctx, tuỳ cái nào đến trước.
func (m *Manager) Dial(ctx context.Context) (*amqp.Connection, error) {
	var stop func() bool
	conn, err := amqp.DialConfig(m.url, amqp.Config{
		Heartbeat: defaultHeartbeat,
		Dial: func(network, addr string) (net.Conn, error) {
			deadline := time.Now().Add(m.dialTimeout)
			if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
				deadline = d
			}
			nc, err := (&net.Dialer{Deadline: deadline}).DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// amqp091 xoá deadline này khi handshake xong.
			if err := nc.SetDeadline(deadline); err != nil {
				_ = nc.Close()
				return nil, err
			}
			stop = context.AfterFunc(ctx, func() { _ = nc.Close() })
			return nc, nil
		},
	})
	if stop != nil && !stop() && err == nil {
		// ctx bị huỷ đúng lúc handshake vừa xong: socket đã bị đóng.
		_ = conn.Close()
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn, nil
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() { <-m.lock }

// Publish gửi body lên exchange notifications dưới dạng persistent và chờ broker xác nhận.
func (m *Manager) Publish(ctx context.Context, routingKey string, body []byte) error {
	if err := m.acquire(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	defer m.release()

	ch, err := m.channelLocked(ctx)
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, ExchangeName, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  ContentType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		m.resetLocked()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		m.resetLocked()
		return fmt.Errorf("wait confirm %s: %w", routingKey, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPublishNacked, routingKey)
	}
	return nil
}

func (m *Manager) channelLocked(ctx context.Context) (*amqp.Channel, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if m.ch != nil && !m.ch.IsClosed() {
		return m.ch, nil
	}
	if !m.limiter.Allow() {
		return nil, ErrReconnectThrottled
	}

	m.resetLocked()

	conn, err := m.Dial(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Queue phải tồn tại trước khi publish, kể cả khi chưa có worker nào chạy.
	if err := declareQueue(ch, m.deadLetterExchange); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	m.conn, m.ch = conn, ch
	m.log.Info().Msg("rabbitmq publisher connected")
	return ch, nil
}

func (m *Manager) resetLocked() {
	if m.ch != nil {
		_ = m.ch.Close()
		m.ch = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// Close đóng kết nối publish; các lần Publish sau trả về ErrClosed.
func (m *Manager) Close() error {
	m.lock <- struct{}{}
	defer m.release()
	m.closed = true
	m.resetLocked()
	return nil
}
