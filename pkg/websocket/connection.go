package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		// 节点只在本地网络提供服务，不校验 Origin
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: cfg.EnableCompression,
	}
}

// ServeWS 升级连接；groups 为初始订阅的事件组
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, groups ...string) error {
	upgrader := newUpgrader(h.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Connection{
		ID:       uuid.NewString(),
		Conn:     conn,
		Send:     make(chan []byte, h.config.MessageBufferSize),
		Hub:      h,
		LastPing: time.Now(),
		Groups:   make(map[string]bool),
	}
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			c.Groups[g] = true
		}
	}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close()
		return nil
	}

	go c.writePump()
	go c.readPump()
	return nil
}

// readPump 读取消息的协程
func (c *Connection) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.ctx.Done():
		}
		c.Conn.Close()
	}()

	if c.Hub.config.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	}
	c.touch()
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Errorf("WebSocket读取错误: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.LastPing = time.Now()
	c.mu.Unlock()
	if timeout := c.Hub.config.ConnectionTimeout; timeout > 0 {
		c.Conn.SetReadDeadline(time.Now().Add(timeout))
	}
}

// writePump 发送消息的协程
func (c *Connection) writePump() {
	pingEvery := time.Duration(float64(c.Hub.config.HeartbeatInterval) * 0.9)
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理客户端上行的控制消息
func (c *Connection) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(Message{Type: MessageTypeError, Data: "invalid message"})
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.touch()
		c.reply(Message{Type: MessageTypePong})
	case MessageTypeJoinGroup:
		if group, ok := msg.Data.(string); ok && group != "" {
			c.JoinGroup(group)
			c.reply(Message{Type: MessageTypeGroupJoined, Data: group})
			return
		}
		c.reply(Message{Type: MessageTypeError, Data: "invalid group"})
	case MessageTypeLeaveGroup:
		if group, ok := msg.Data.(string); ok && group != "" {
			c.LeaveGroup(group)
			c.reply(Message{Type: MessageTypeGroupLeft, Data: group})
			return
		}
		c.reply(Message{Type: MessageTypeError, Data: "invalid group"})
	default:
		c.reply(Message{Type: MessageTypeError, Data: "unknown message type"})
	}
}

// JoinGroup 订阅一个事件组
func (c *Connection) JoinGroup(group string) {
	c.Hub.mu.Lock()
	defer c.Hub.mu.Unlock()
	c.mu.Lock()
	c.Groups[group] = true
	c.mu.Unlock()
	if _, ok := c.Hub.connections[c.ID]; ok {
		c.Hub.addToGroup(group, c.ID)
	}
}

// LeaveGroup 取消订阅
func (c *Connection) LeaveGroup(group string) {
	c.Hub.mu.Lock()
	defer c.Hub.mu.Unlock()
	c.mu.Lock()
	delete(c.Groups, group)
	c.mu.Unlock()
	c.Hub.removeFromGroup(group, c.ID)
}

// reply 直接回给当前连接，缓冲满时丢弃
func (c *Connection) reply(msg Message) {
	msg.Timestamp = time.Now().UnixMilli()
	data, _ := json.Marshal(msg)

	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if _, ok := c.Hub.connections[c.ID]; !ok {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.Hub.log.Warnf("连接 %s 发送缓冲区已满", c.ID)
	}
}
