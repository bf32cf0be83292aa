package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("relayclient: not connected")

// Options configures a Client
type Options struct {
	// URL is the relay websocket endpoint, e.g. wss://relay.example.com/ws
	URL    string
	Token  string
	UserID string

	Dialer *websocket.Dialer
	// NewBackOff builds the reconnect schedule; exponential by default
	NewBackOff func() backoff.BackOff
	Logger     *zap.Logger

	// OnConnect runs after every (re)connect, once the user is registered and
	// rooms are re-joined. Sync is the usual choice.
	OnConnect func(ctx context.Context) error
	// OnFrame sees every frame after it was applied to the state
	OnFrame func(Frame)
}

func (o *Options) norm() {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Client keeps one websocket session to the relay alive and feeds everything
// it receives into a State
type Client struct {
	opts  Options
	state *State

	writeMu sync.Mutex
	conn    *websocket.Conn

	roomsMu sync.Mutex
	rooms   map[string]struct{}
}

func New(opts Options, state *State) *Client {
	opts.norm()
	if state == nil {
		state = NewState()
	}
	return &Client{
		opts:  opts,
		state: state,
		rooms: make(map[string]struct{}),
	}
}

func (c *Client) State() *State { return c.state }

// Run connects and reconnects until ctx is done
func (c *Client) Run(ctx context.Context) error {
	b := backoff.WithContext(c.opts.NewBackOff(), ctx)
	err := backoff.RetryNotify(func() error {
		err := c.session(ctx, b.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, b, func(err error, wait time.Duration) {
		c.opts.Logger.Warn("relay connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("wait", wait),
		)
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// session runs one connection until it drops
func (c *Client) session(ctx context.Context, connected func()) error {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.endpoint(), nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		_ = conn.Close()
	}()

	if err := c.resume(ctx); err != nil {
		return err
	}
	connected()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read relay: %w", err)
		}
		if _, err := c.state.Apply(f); err != nil {
			c.opts.Logger.Warn("dropping undecodable frame", zap.String("type", f.Type), zap.Error(err))
		}
		if c.opts.OnFrame != nil {
			c.opts.OnFrame(f)
		}
	}
}

// resume re-registers, re-joins rooms and syncs after a (re)connect
func (c *Client) resume(ctx context.Context) error {
	if c.opts.UserID != "" {
		if err := c.send(EventRegisterUser, c.opts.UserID); err != nil {
			return err
		}
	}
	for _, room := range c.Rooms() {
		if err := c.send(EventJoinRoom, room); err != nil {
			return err
		}
	}
	if c.opts.OnConnect != nil {
		if err := c.opts.OnConnect(ctx); err != nil {
			c.opts.Logger.Warn("resync after connect failed", zap.Error(err))
		}
	}
	return nil
}

func (c *Client) endpoint() string {
	if c.opts.Token == "" {
		return c.opts.URL
	}
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return c.opts.URL
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) send(event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(Frame{Type: event, Payload: raw})
}

// JoinRoom joins a conversation room now and after every reconnect
func (c *Client) JoinRoom(roomID string) error {
	c.roomsMu.Lock()
	c.rooms[roomID] = struct{}{}
	c.roomsMu.Unlock()

	if err := c.send(EventJoinRoom, roomID); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

func (c *Client) LeaveRoom(roomID string) error {
	c.roomsMu.Lock()
	delete(c.rooms, roomID)
	c.roomsMu.Unlock()

	if err := c.send(EventLeaveRoom, roomID); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

// Rooms returns the rooms re-joined on reconnect
func (c *Client) Rooms() []string {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()

	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (c *Client) SendMessage(conversationID, content string) error {
	return c.send(EventSendMessage, map[string]interface{}{
		"conversationId": conversationID,
		"senderId":       c.opts.UserID,
		"content":        content,
		"timestamp":      time.Now().UTC(),
	})
}

func (c *Client) SendConnectionRequest(receiverID, postID, message string) error {
	return c.send(EventSendConnectionRequest, map[string]string{
		"senderId":   c.opts.UserID,
		"receiverId": receiverID,
		"postId":     postID,
		"message":    message,
	})
}

// UpdateConnectionStatus moves a request to accepted, rejected or cancelled
func (c *Client) UpdateConnectionStatus(connectionID, status string) error {
	return c.send(EventUpdateConnectionStatus, map[string]string{
		"connectionId": connectionID,
		"status":       status,
	})
}
