package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"BucketFM/core/player"
	"BucketFM/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// MessageType WebSocket 消息类型
type MessageType string

const (
	MsgTypePing       MessageType = "ping"
	MsgTypePong       MessageType = "pong"
	MsgTypeError      MessageType = "error"
	MsgTypeProgress   MessageType = "progress"
	MsgTypeEnded      MessageType = "ended"
	MsgTypeMetadata   MessageType = "metadata"
	MsgTypeNowPlaying MessageType = "now_playing"

	// 客户端发出的控制指令
	MsgTypePlay   MessageType = "play"
	MsgTypePause  MessageType = "pause"
	MsgTypeResume MessageType = "resume"
	MsgTypeSeek   MessageType = "seek"
	MsgTypeNext   MessageType = "next"
	MsgTypePrev   MessageType = "prev"
)

// WSMessage WebSocket 消息
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ProgressData 播放进度
type ProgressData struct {
	Locator     string  `json:"locator"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// CommandData 客户端控制指令参数
type CommandData struct {
	Locator  string  `json:"locator,omitempty"`
	Position float64 `json:"position,omitempty"`
}

const (
	sendBuffer   = 64
	readLimit    = 4096
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Client 播放事件订阅连接
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub 管理所有播放事件订阅连接
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// NewClient 为连接分配 ID 并注册
func (h *Hub) NewClient(conn *websocket.Conn) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	logger.Info("播放事件订阅连接建立", logger.String("client", c.ID))
	return c
}

// Unregister 注销连接，可重复调用
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
		logger.Info("播放事件订阅连接断开", logger.String("client", c.ID))
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 发送给所有连接，缓冲区满的连接直接丢弃该消息
func (h *Hub) Broadcast(msgType MessageType, data any) {
	payload, err := encodeMessage(msgType, data)
	if err != nil {
		logger.Warn("编码广播消息失败", logger.String("type", string(msgType)), logger.ErrorField(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Close 断开所有连接
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

// PublishPlayerEvent 把播放事件转成 WebSocket 消息
func (h *Hub) PublishPlayerEvent(ev player.Event) {
	data := ProgressData{Locator: ev.Locator, CurrentTime: ev.CurrentTime}
	if player.IsValidDuration(ev.Duration) {
		data.Duration = ev.Duration
	}

	switch ev.Type {
	case player.EventProgress:
		h.Broadcast(MsgTypeProgress, data)
	case player.EventMetadataReady:
		h.Broadcast(MsgTypeMetadata, data)
	case player.EventEnded:
		h.Broadcast(MsgTypeEnded, data)
	case player.EventError:
		if ev.Err != nil {
			data.Error = ev.Err.Error()
		}
		h.Broadcast(MsgTypeError, data)
	}
}

func encodeMessage(msgType MessageType, data any) ([]byte, error) {
	msg := WSMessage{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

// Send 发送给单个连接
func (c *Client) Send(msgType MessageType, data any) {
	payload, err := encodeMessage(msgType, data)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.ID]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// ReadPump 读取客户端消息直到连接断开
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, c *Client, msg *WSMessage)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err), logger.String("client", c.ID))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("invalid message format", logger.ErrorField(err), logger.String("client", c.ID))
			continue
		}

		if msg.Type == MsgTypePing {
			c.Send(MsgTypePong, nil)
			continue
		}
		if handler != nil {
			handler(ctx, c, &msg)
		}
	}
}

// WritePump 把发送队列写到连接上，并定时发送 ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
