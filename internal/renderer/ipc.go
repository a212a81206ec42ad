package renderer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	commandTimeout = 2 * time.Second
	writeDeadline  = time.Second
	eventBuffer    = 64
)

var errIPCClosed = errors.New("mpv ipc connection closed")

// ipcRequest is the JSON structure sent to mpv's IPC socket
type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

// ipcMessage is either a reply (request_id set) or an event (event set)
type ipcMessage struct {
	RequestID *int64          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Event     string          `json:"event,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	FileError string          `json:"file_error,omitempty"`
	Name      string          `json:"name,omitempty"`
	Args      []string        `json:"args,omitempty"`
}

// Event is an asynchronous mpv notification
type Event struct {
	Name string
	// Reason of an end-file event: eof, stop, quit, error, redirect
	Reason    string
	FileError string
	// Property and Data of a property-change event
	Property string
	Data     json.RawMessage
	// Args of a client-message event
	Args []string
}

// ipcClient multiplexes commands and events over one mpv JSON-IPC connection.
// Replies are matched to commands by request_id.
type ipcClient struct {
	logger *zap.Logger
	conn   net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan ipcMessage

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newIPCClient(logger *zap.Logger, conn net.Conn) *ipcClient {
	c := &ipcClient{
		logger:  logger,
		conn:    conn,
		pending: make(map[int64]chan ipcMessage),
		events:  make(chan Event, eventBuffer),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Command sends one command and waits for its reply
func (c *ipcClient) Command(ctx context.Context, args ...any) (json.RawMessage, error) {
	reply := make(chan ipcMessage, 1)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	payload, err := json.Marshal(ipcRequest{Command: args, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	// mpv requires newline-delimited JSON
	_, err = c.conn.Write(append(payload, '\n'))
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	timer := time.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case msg := <-reply:
		if msg.Error != "" && msg.Error != "success" {
			return nil, fmt.Errorf("mpv %v: %s", args[0], msg.Error)
		}
		return msg.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errIPCClosed
	case <-timer.C:
		return nil, fmt.Errorf("mpv %v: no reply after %s", args[0], commandTimeout)
	}
}

// Events delivers mpv events until the connection closes
func (c *ipcClient) Events() <-chan Event {
	return c.events
}

// Done is closed when the connection is gone
func (c *ipcClient) Done() <-chan struct{} {
	return c.closed
}

func (c *ipcClient) Close() error {
	err := c.conn.Close()
	c.shutdown()
	return err
}

func (c *ipcClient) shutdown() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *ipcClient) readLoop() {
	defer close(c.events)
	defer c.shutdown()

	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			c.dispatch(line)
		}
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Debug("mpv ipc read ended", zap.Error(err))
			}
			return
		}
	}
}

func (c *ipcClient) dispatch(line []byte) {
	var msg ipcMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return // Skip unparseable lines
	}

	if msg.Event != "" {
		ev := Event{
			Name:      msg.Event,
			Reason:    msg.Reason,
			FileError: msg.FileError,
			Property:  msg.Name,
			Data:      msg.Data,
			Args:      msg.Args,
		}
		select {
		case c.events <- ev:
		default:
			c.logger.Warn("mpv event dropped, consumer too slow", zap.String("event", ev.Name))
		}
		return
	}

	if msg.RequestID == nil {
		return
	}
	c.mu.Lock()
	reply, ok := c.pending[*msg.RequestID]
	c.mu.Unlock()
	if ok {
		reply <- msg
	}
}
