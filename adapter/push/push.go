// Package push connects a session to the push-protocol feed: discrete
// JSON frames over a persistent websocket connection, with agent
// commands flowing the other way.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/marksim/candlefeed/feed"
)

// AgentCommand is a client→server agent management request.
type AgentCommand struct {
	Type      string             `json:"type"`
	Action    string             `json:"action"`
	AgentType string             `json:"agent_type,omitempty"`
	AgentID   string             `json:"agent_id,omitempty"`
	Config    map[string]float64 `json:"config,omitempty"`
}

// Conn is one live push-feed connection. Incoming frames are pumped
// into the session on a dedicated goroutine; when the connection ends,
// for any reason, the session is closed and no further frames are
// dispatched. There is no automatic reconnect — retry policy belongs
// to the caller.
type Conn struct {
	ws     *websocket.Conn
	sess   *feed.Session
	cancel context.CancelFunc

	writeMu sync.Mutex
	done    chan struct{}
}

// Dial connects to a push feed and starts consuming it into sess.
func Dial(ctx context.Context, url string, sess *feed.Session) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("push: dial %s: %w", url, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		ws:     ws,
		sess:   sess,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	sess.MarkConnected()
	go c.readLoop(ctx)
	return c, nil
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.done)
	defer c.sess.CloseStream()

	// Close the connection when the context is cancelled so the blocked
	// read returns.
	go func() {
		<-ctx.Done()
		c.writeMu.Lock()
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.ws.Close()
	}()

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("push: connection lost")
			}
			return
		}
		// Frames are whole messages; a trailing terminator turns each
		// one into a complete line for the session's decoder.
		c.sess.Feed(append(msg, '\n'))
	}
}

// SendAgentCommand sends an agent management command upstream. The
// result arrives later as an agent_response frame.
func (c *Conn) SendAgentCommand(cmd AgentCommand) error {
	cmd.Type = "agent_command"
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("push: encode command: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("push: send command: %w", err)
	}
	return nil
}

// Close aborts the connection. In-flight handlers finish; nothing is
// dispatched afterwards.
func (c *Conn) Close() {
	c.cancel()
	<-c.done
}
