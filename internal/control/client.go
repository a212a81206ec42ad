package control

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/genricoloni/screend/internal/cache"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const defaultCallTimeout = 2 * time.Minute

// Client talks to a running player's control channel
type Client struct {
	conn *websocket.Conn
}

// Dial connects to the control channel at addr (host:port)
func Dial(ctx context.Context, addr string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("player not reachable at %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close says goodbye and closes the connection
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// Call sends req and waits for its reply. A reply that is not OK is returned
// together with an error carrying the player's message.
func (c *Client) Call(ctx context.Context, req Request) (Reply, error) {
	req.ID = uuid.NewString()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultCallTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return Reply{}, err
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return Reply{}, fmt.Errorf("send %s: %w", req.Tag, err)
	}

	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return Reply{}, err
	}
	for {
		var reply Reply
		if err := c.conn.ReadJSON(&reply); err != nil {
			return Reply{}, fmt.Errorf("read %s reply: %w", req.Tag, err)
		}
		if reply.ID != req.ID {
			continue
		}
		if !reply.OK {
			return reply, errors.New(reply.Error)
		}
		return reply, nil
	}
}

func (c *Client) call(ctx context.Context, req Request) error {
	_, err := c.Call(ctx, req)
	return err
}

// Pair pairs the player with code
func (c *Client) Pair(ctx context.Context, code string, kiosk bool, exitPassword string) error {
	req := Request{Code: strings.TrimSpace(code), Kiosk: kiosk, ExitPassword: exitPassword}
	req.Tag = TagPair
	return c.call(ctx, req)
}

// Disconnect unpairs the player
func (c *Client) Disconnect(ctx context.Context) error {
	return c.call(ctx, Request{Request: cache.Request{Tag: TagDisconnect}})
}

// Status fetches the player's status
func (c *Client) Status(ctx context.Context) (Status, error) {
	reply, err := c.Call(ctx, Request{Request: cache.Request{Tag: TagStatus}})
	if err != nil {
		return Status{}, err
	}
	if reply.Status == nil {
		return Status{}, errors.New("status reply without a status")
	}
	return *reply.Status, nil
}

// CacheSize returns the offline cache size in bytes
func (c *Client) CacheSize(ctx context.Context) (int64, error) {
	reply, err := c.Call(ctx, Request{Request: cache.Request{Tag: cache.TagCacheSize}})
	return reply.Size, err
}

// ClearCache empties the offline cache
func (c *Client) ClearCache(ctx context.Context) error {
	return c.call(ctx, Request{Request: cache.Request{Tag: cache.TagClearCache}})
}

// Prefetch queues urls for download and returns how many were accepted
func (c *Client) Prefetch(ctx context.Context, urls []string) (int, error) {
	reply, err := c.Call(ctx, Request{Request: cache.Request{Tag: cache.TagCacheMedia, URLs: urls}})
	return reply.Cached, err
}

// KioskExit confirms a kiosk exit with password
func (c *Client) KioskExit(ctx context.Context, password string) error {
	req := Request{Password: password}
	req.Tag = TagKioskExit
	return c.call(ctx, req)
}

// KioskCancel closes an open exit prompt
func (c *Client) KioskCancel(ctx context.Context) error {
	return c.call(ctx, Request{Request: cache.Request{Tag: TagKioskCancel}})
}
