package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/chat"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Maximum frame size allowed from peer
	maxFrameSize = 64 * 1024

	expiredChoice = "This choice has expired. Please pick again or ask your question."
)

// Frame types.
const (
	FrameMessage  = "message"
	FrameActions  = "actions"
	FrameAction   = "action"
	FrameFeedback = "feedback"
	FrameError    = "error"
)

// Frame is the JSON envelope exchanged over /ws in both directions.
type Frame struct {
	Type    string        `json:"type"`
	ID      string        `json:"id,omitempty"`
	Content string        `json:"content,omitempty"`
	Actions []chat.Action `json:"actions,omitempty"`
	Value   string        `json:"value,omitempty"`
	Query   string        `json:"query,omitempty"`
	Rating  string        `json:"rating,omitempty"`
}

var errConnClosed = errors.New("websocket connection closed")

// wsConn adapts a websocket to chat.Conn. Frames are read by readPump and
// consumed by the goroutine driving the session.
type wsConn struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	inbox chan Frame
	done  chan struct{}

	// pending holds a typed message that interrupted an action prompt.
	pending *Frame

	// onFeedback handles feedback frames that arrive during a prompt.
	onFeedback func(ctx context.Context, query, rating string) error
}

func newWSConn(conn *websocket.Conn, logger *zap.Logger) *wsConn {
	return &wsConn{
		conn:   conn,
		logger: logger,
		inbox:  make(chan Frame),
		done:   make(chan struct{}),
	}
}

// readPump decodes frames until the peer goes away, then closes inbox.
func (c *wsConn) readPump() {
	defer close(c.inbox)

	c.conn.SetReadLimit(maxFrameSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Debug("dropping malformed frame", zap.Error(err))
			continue
		}

		select {
		case c.inbox <- f:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) write(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *wsConn) Send(ctx context.Context, content string) error {
	return c.write(Frame{Type: FrameMessage, Content: content})
}

func (c *wsConn) SendError(ctx context.Context, content string) error {
	return c.write(Frame{Type: FrameError, Content: content})
}

// AskAction sends the prompt and waits for a matching action frame. A typed
// message abandons the prompt and is kept for the next call to next.
func (c *wsConn) AskAction(ctx context.Context, p chat.Prompt) (*chat.Action, error) {
	if err := c.write(Frame{Type: FrameActions, ID: p.ID, Content: p.Content, Actions: p.Actions}); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case f, ok := <-c.inbox:
			if !ok {
				return nil, errConnClosed
			}
			switch f.Type {
			case FrameAction:
				if f.ID != p.ID {
					if err := c.SendError(ctx, expiredChoice); err != nil {
						return nil, err
					}
					continue
				}
				for i := range p.Actions {
					if p.Actions[i].Value == f.Value {
						return &p.Actions[i], nil
					}
				}
				c.logger.Debug("unknown action value", zap.String("value", f.Value))
			case FrameMessage:
				c.pending = &f
				return nil, nil
			case FrameFeedback:
				if c.onFeedback != nil {
					if err := c.onFeedback(ctx, f.Query, f.Rating); err != nil {
						return nil, err
					}
				}
			}
		}
	}
}

// next returns the next inbound frame, starting with one left by AskAction.
func (c *wsConn) next(ctx context.Context) (Frame, error) {
	if c.pending != nil {
		f := *c.pending
		c.pending = nil
		return f, nil
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f, ok := <-c.inbox:
		if !ok {
			return Frame{}, errConnClosed
		}
		return f, nil
	}
}

// Chat handles GET /ws: one session per connection, driven by this goroutine.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	conn := newWSConn(ws, s.logger)
	sess := s.chats.Create(user, conn)
	logger := s.logger.With(zap.String("session", sess.ID()), zap.String("user", user))

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		close(conn.done)
		ws.Close()
		wg.Wait()
		s.chats.End(sess.ID())
		logger.Info("chat session closed")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		conn.readPump()
	}()
	conn.onFeedback = sess.HandleFeedback

	logger.Info("chat session opened", zap.String("remote", r.RemoteAddr))

	if err := sess.Start(ctx, s.chain); err != nil && !errors.Is(err, chat.ErrNotInitialized) {
		logger.Debug("session start ended", zap.Error(err))
		return
	}

	for {
		f, err := conn.next(ctx)
		if err != nil {
			return
		}

		switch f.Type {
		case FrameMessage:
			text := strings.TrimSpace(f.Content)
			if text == "" {
				continue
			}
			err = sess.HandleMessage(ctx, text)
		case FrameFeedback:
			err = sess.HandleFeedback(ctx, f.Query, f.Rating)
		case FrameAction:
			err = conn.SendError(ctx, expiredChoice)
		default:
			err = conn.SendError(ctx, "unsupported frame type: "+f.Type)
		}

		if errors.Is(err, chat.ErrNotInitialized) {
			continue
		}
		if err != nil {
			logger.Debug("chat turn ended", zap.Error(err))
			return
		}
	}
}
