package ws

import (
	"sync"

	"supportchat/internal/metrics"
)

// Hub 维护「房间频道 → 连接」的广播关系。
// 广播在触发它的事件处理器内同步读取接收者快照并写入各自的发送队列，
// 不经过异步循环，后续的成员变更不影响本次扇出。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[uint]map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[uint]map[string]*Client),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.connID] = c
	metrics.WsConnections.Inc()
}

// Unregister 把连接从全部房间频道移除并关闭发送队列。重复调用安全。
func (h *Hub) Unregister(connID string) bool {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
		for roomID, members := range h.rooms {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
		metrics.WsConnections.Dec()
	}
	h.mu.Unlock()
	if ok {
		c.close()
	}
	return ok
}

func (h *Hub) Join(connID string, roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[connID] = c
}

func (h *Hub) Leave(connID string, roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) OnlineInRoom(roomID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastRoom 把一帧发给当前在该房间频道里的每条连接，包括发送者自己。
func (h *Hub) BroadcastRoom(roomID uint, payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, payload)
}

func (h *Hub) BroadcastAll(payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, payload)
}

// SendTo 把一帧发给指定连接；连接不存在时返回 false。
func (h *Hub) SendTo(connID string, payload []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	h.deliver([]*Client{c}, payload)
	return true
}

// CloseConn 强制断开一条连接的传输层，清理由其读循环的退出路径完成。
func (h *Hub) CloseConn(connID string) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		c.close()
	}
}

// deliver 写入每个目标的发送队列；队列已满说明客户端读不过来，按掉线处理。
func (h *Hub) deliver(targets []*Client, payload []byte) {
	if payload == nil {
		return
	}
	var dropped []*Client
	for _, c := range targets {
		if !c.trySend(payload) {
			dropped = append(dropped, c)
		}
	}
	for _, c := range dropped {
		h.Unregister(c.connID)
	}
}
