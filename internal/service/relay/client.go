package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qrrelay/internal/dto"
	"qrrelay/internal/logger"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send while there is no live connection.
var ErrNotConnected = errors.New("relay is not connected")

const writeTimeout = 5 * time.Second

// Client keeps one websocket connection to the relay server.
// Reconnecting is manual: call Connect again after a failure.
type Client struct {
	url    string
	dialer *websocket.Dialer
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *logger.Logger
}

func NewClient(url string, logger *logger.Logger) *Client {
	return &Client{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) URL() string {
	return c.url
}

// Connect dials the server, replacing any existing connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	go c.readLoop(conn)
	c.logger.Info("Connected to relay server %s", c.url)
	return nil
}

// Disconnect closes the connection politely. Safe to call when not connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return conn.Close()
}

// Connected reports whether a live connection exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one event envelope. A failed write drops the connection.
func (c *Client) Send(event string, data interface{}) error {
	message, err := dto.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// SendScan relays a decoded payload.
func (c *Client) SendScan(payload, method string) error {
	return c.Send(dto.EventQRCodeScanned, dto.DecodedPayload{Data: payload, Method: method})
}

// readLoop drains server frames so control messages are handled, and
// notices when the server goes away.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warning("Relay connection lost: %v", err)
			}
			break
		}
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}
