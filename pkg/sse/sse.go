package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event 一条推送消息
type Event struct {
	ID   string
	Name string
	Data string
}

func (e Event) encode() string {
	var b strings.Builder
	if e.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", e.ID)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Name)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return b.String()
}

type Client struct {
	id     string
	topics map[string]bool
	ch     chan string
	done   chan struct{}
}

// Messages 已编码、待写出的事件
func (c *Client) Messages() <-chan string { return c.ch }

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	interval time.Duration
	retryMs  int
	log      *logrus.Entry

	// OnClientsChanged 在客户端连接数变化时回调
	OnClientsChanged func(n int)
}

func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{
		clients:  make(map[string]*Client),
		interval: interval,
		retryMs:  5000,
		log:      logrus.WithField("component", "sse"),
	}
}

// AddClient 注册客户端；topics 为空时接收所有事件
func (h *Hub) AddClient(id string, topics ...string) *Client {
	c := &Client{id: id, topics: make(map[string]bool), ch: make(chan string, 64), done: make(chan struct{})}
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			c.topics[t] = true
		}
	}

	h.mu.Lock()
	if old, ok := h.clients[id]; ok {
		close(old.done)
	}
	h.clients[id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"client": id, "clients": n}).Info("client connected")
	h.notify(n)
	return c
}

func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		close(c.done)
		delete(h.clients, id)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.log.WithFields(logrus.Fields{"client": id, "clients": n}).Info("client disconnected")
		h.notify(n)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) notify(n int) {
	if h.OnClientsChanged != nil {
		h.OnClientsChanged(n)
	}
}

// Publish 向订阅了 name 的客户端推送 JSON 事件
func (h *Hub) Publish(name string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).WithField("event", name).Warn("marshal event failed")
		return
	}
	msg := Event{ID: uuid.NewString(), Name: name, Data: string(b)}.encode()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if len(c.topics) > 0 && !c.topics[name] && !c.topics[topicPrefix(name)] {
			continue
		}
		select {
		case c.ch <- msg:
		default:
			h.log.WithFields(logrus.Fields{"client": c.id, "event": name}).Warn("client buffer full, event dropped")
		}
	}
}

// topicPrefix record.created -> record
func topicPrefix(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// Serve 将当前请求升级为事件流，?topics=record,gateway 过滤
func (h *Hub) Serve(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)
	flusher.Flush()

	clientID := uuid.NewString()
	var topics []string
	if q := c.Query("topics"); q != "" {
		topics = strings.Split(q, ",")
	}
	client := h.AddClient(clientID, topics...)
	defer h.RemoveClient(clientID)

	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-client.Messages():
			c.Writer.WriteString(msg)
			flusher.Flush()
		}
	}
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.Lock()
	for id, c := range h.clients {
		close(c.done)
		delete(h.clients, id)
	}
	h.mu.Unlock()
	h.notify(0)
}
