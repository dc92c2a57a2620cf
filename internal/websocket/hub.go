// Package websocket 提供引擎信号的 WebSocket 实时推送
package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AnalyseDeCircuit/opspulse/internal/alerts"
	"github.com/AnalyseDeCircuit/opspulse/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 64
)

// Upgrader WebSocket升级器
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 非浏览器客户端通常不带 Origin
		return true
	},
}

// Client 代表一个 WebSocket 客户端连接
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub 事件推送中心
// 订阅事件总线，把每条信号序列化后广播给所有连接的客户端。
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	closed  bool
}

// NewHub 创建推送中心并订阅事件总线
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{
		clients: make(map[*Client]bool),
	}
	if bus != nil {
		bus.SubscribeAll(func(event events.Event) {
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("[WebSocket] failed to marshal event %s: %v", event.Kind, err)
				return
			}
			h.Broadcast(data)
		})
	}
	return h
}

// Broadcast 广播一条消息，发送缓冲满的客户端被断开
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// 慢客户端不阻塞广播
			go h.remove(client)
		}
	}
}

// ServeWS 处理 WebSocket 升级请求
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = true
	h.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown 断开所有客户端并拒绝新连接
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
}

// ============================================================================
//  通知渠道适配
// ============================================================================

// DashboardChannel 把告警通知作为专用消息推送给所有连接的客户端
type DashboardChannel struct {
	hub *Hub
}

// NewDashboardChannel 创建仪表盘通知渠道
func NewDashboardChannel(hub *Hub) *DashboardChannel {
	return &DashboardChannel{hub: hub}
}

// Name 渠道名
func (d *DashboardChannel) Name() string { return "dashboard" }

// Send 推送告警通知
func (d *DashboardChannel) Send(alert alerts.Alert) error {
	data, err := json.Marshal(map[string]interface{}{
		"kind":  "alert.notification",
		"alert": alert,
	})
	if err != nil {
		return err
	}
	d.hub.Broadcast(data)
	return nil
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	client.conn.Close()
}

// writePump 向客户端写消息并维持心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只消费控制帧，客户端消息被忽略
func (c *Client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
