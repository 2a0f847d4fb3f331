package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 只承载传输层：连接 id、socket 和发送队列。
// 用户身份和房间状态都在 session.Registry 里，按连接 id 查询。
type Client struct {
	connID string
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.RWMutex
	closed bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		connID: uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, 256),
	}
}

func (c *Client) trySend(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Serve 返回 /ws 的 gin handler：升级连接、注册会话并启动读写循环。
func (rt *Router) Serve() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("ws: upgrade")
			return
		}
		client := newClient(conn)
		rt.sessions.Add(client.connID)
		rt.hub.Register(client)
		log.Info().Str("conn_id", client.connID).Msg("ws: connected")

		ctx := context.Background()
		go client.writePump()
		client.readPump(ctx, rt)
	}
}

func (c *Client) readPump(ctx context.Context, rt *Router) {
	defer rt.Disconnect(ctx, c.connID)
	c.conn.SetReadLimit(rt.cfg.WsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// 同一条连接的事件在这里串行处理，保证到达顺序。
		rt.HandleFrame(ctx, c.connID, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
