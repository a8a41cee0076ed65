package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message 下行推送与上行控制消息共用的结构
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Group     string      `json:"group,omitempty"`
}

// Connection 表示一个WebSocket连接
type Connection struct {
	ID       string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	LastPing time.Time
	mu       sync.RWMutex
	// 订阅的事件组；为空时接收全部事件
	Groups map[string]bool
}

// Hub 管理所有WebSocket连接
type Hub struct {
	connections      map[string]*Connection
	groupConnections map[string]map[string]bool
	broadcast        chan *Message
	register         chan *Connection
	unregister       chan *Connection
	connectionCount  int64
	config           *Config
	mu               sync.RWMutex
	ctx              context.Context
	cancel           context.CancelFunc
	done             chan struct{}
	log              *logrus.Entry

	// OnConnectionsChanged 在连接数变化时回调
	OnConnectionsChanged func(n int)
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval * time.Second
	}
	if config.MessageBufferSize <= 0 {
		config.MessageBufferSize = DefaultMessageBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		connections:      make(map[string]*Connection),
		groupConnections: make(map[string]map[string]bool),
		broadcast:        make(chan *Message, 256),
		register:         make(chan *Connection, 64),
		unregister:       make(chan *Connection, 64),
		config:           config,
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
		log:              logrus.WithField("component", "websocket"),
	}
	go hub.run()
	return hub
}

// run Hub主循环
func (h *Hub) run() {
	defer close(h.done)
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case message := <-h.broadcast:
			// 单次序列化减少重复开销
			data, err := json.Marshal(message)
			if err != nil {
				h.log.Errorf("消息序列化失败: %v", err)
				continue
			}
			h.fanout(message.Group, data)
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// registerConnection 注册连接
func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	if h.config.MaxConnections > 0 && atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		h.mu.Unlock()
		h.log.Warnf("达到最大连接数限制: %d", h.config.MaxConnections)
		close(conn.Send)
		return
	}
	h.connections[conn.ID] = conn
	n := atomic.AddInt64(&h.connectionCount, 1)
	for group := range conn.Groups {
		h.addToGroup(group, conn.ID)
	}
	h.mu.Unlock()

	h.log.WithField("conn", conn.ID).Infof("WebSocket连接已注册, 当前连接数: %d", n)
	h.notify(int(n))
}

// unregisterConnection 注销连接
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	if _, exists := h.connections[conn.ID]; !exists {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn.ID)
	n := atomic.AddInt64(&h.connectionCount, -1)
	conn.mu.RLock()
	for group := range conn.Groups {
		h.removeFromGroup(group, conn.ID)
	}
	conn.mu.RUnlock()
	close(conn.Send)
	h.mu.Unlock()

	h.log.WithField("conn", conn.ID).Infof("WebSocket连接已注销, 当前连接数: %d", n)
	h.notify(int(n))
}

func (h *Hub) addToGroup(group, connID string) {
	if h.groupConnections[group] == nil {
		h.groupConnections[group] = make(map[string]bool)
	}
	h.groupConnections[group][connID] = true
}

func (h *Hub) removeFromGroup(group, connID string) {
	if h.groupConnections[group] != nil {
		delete(h.groupConnections[group], connID)
		if len(h.groupConnections[group]) == 0 {
			delete(h.groupConnections, group)
		}
	}
}

// fanout 发给订阅了 group 的连接，以及未订阅任何组的连接
func (h *Hub) fanout(group string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, conn := range h.connections {
		conn.mu.RLock()
		want := len(conn.Groups) == 0 || conn.Groups[group]
		conn.mu.RUnlock()
		if !want {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			h.log.Warnf("连接 %s 发送缓冲区已满，消息被丢弃", id)
		}
	}
}

// Publish 推送一个事件，事件名的前缀（"record.created" 的 "record"）作为组名
func (h *Hub) Publish(name string, v interface{}) {
	group := name
	if i := strings.IndexByte(name, '.'); i > 0 {
		group = name[:i]
	}
	msg := &Message{Type: name, Data: v, Timestamp: time.Now().UnixMilli(), Group: group}
	select {
	case <-h.ctx.Done():
	case h.broadcast <- msg:
	default:
		h.log.Warnf("广播队列已满，事件 %s 被丢弃", name)
	}
}

// checkHeartbeats 检查心跳
func (h *Hub) checkHeartbeats() {
	if h.config.ConnectionTimeout <= 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		conn.mu.RLock()
		last := conn.LastPing
		conn.mu.RUnlock()
		if now.Sub(last) > h.config.ConnectionTimeout && conn.Conn != nil {
			h.log.Warnf("连接 %s 心跳超时，准备关闭", conn.ID)
			conn.Conn.Close()
		}
	}
}

func (h *Hub) notify(n int) {
	if h.OnConnectionsChanged != nil {
		h.OnConnectionsChanged(n)
	}
}

// GetConnectionCount 获取当前连接数
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// GetGroupConnections 获取组的连接数
func (h *Hub) GetGroupConnections(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groupConnections[group])
}

// Close 关闭Hub
func (h *Hub) Close() {
	h.cancel()
	<-h.done

	h.mu.Lock()
	for id, conn := range h.connections {
		if conn.Conn != nil {
			conn.Conn.Close()
		}
		close(conn.Send)
		delete(h.connections, id)
	}
	h.groupConnections = make(map[string]map[string]bool)
	atomic.StoreInt64(&h.connectionCount, 0)
	h.mu.Unlock()

	h.log.Info("WebSocket Hub已关闭")
}
