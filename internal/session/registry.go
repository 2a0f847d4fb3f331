// Package session 保存每个连接的临时状态。
// 状态只通过连接 id 查询，不往传输对象上挂字段。
package session

import (
	"sync"

	"supportchat/internal/models"
)

// ConnectionState 对应一条活跃连接：认证前 UserID 为 0，
// Rooms 是该连接当前加入的房间频道集合。
type ConnectionState struct {
	ConnID string
	UserID uint
	User   models.User
	Rooms  map[uint]struct{}
}

func (s *ConnectionState) Authenticated() bool { return s.UserID != 0 }

type Registry struct {
	mu    sync.RWMutex
	conns map[string]*ConnectionState
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*ConnectionState)}
}

// Add 注册一条新连接，初始为未认证状态。
func (r *Registry) Add(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &ConnectionState{ConnID: connID, Rooms: make(map[uint]struct{})}
}

// Authenticate 把用户身份绑定到连接上。
func (r *Registry) Authenticate(connID string, user models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.conns[connID]; ok {
		st.UserID = user.ID
		st.User = user
	}
}

// User 返回连接上已认证的用户；未认证或连接不存在时 ok 为 false。
func (r *Registry) User(connID string) (models.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.conns[connID]
	if !ok || !st.Authenticated() {
		return models.User{}, false
	}
	return st.User, true
}

func (r *Registry) JoinRoom(connID string, roomID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.conns[connID]; ok {
		st.Rooms[roomID] = struct{}{}
	}
}

// LeaveRoom 把连接移出房间，返回此前是否确实在该房间里。
func (r *Registry) LeaveRoom(connID string, roomID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.conns[connID]
	if !ok {
		return false
	}
	if _, in := st.Rooms[roomID]; !in {
		return false
	}
	delete(st.Rooms, roomID)
	return true
}

// Rooms 返回连接当前加入的房间频道快照。
func (r *Registry) Rooms(connID string) []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.conns[connID]
	if !ok {
		return nil
	}
	out := make([]uint, 0, len(st.Rooms))
	for id := range st.Rooms {
		out = append(out, id)
	}
	return out
}

func (r *Registry) InRoom(connID string, roomID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.conns[connID]
	if !ok {
		return false
	}
	_, in := st.Rooms[roomID]
	return in
}

// Remove 注销连接并返回其最终状态，供断开清理使用。重复调用安全。
func (r *Registry) Remove(connID string) (*ConnectionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	return st, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
