// Package room 实现房间的业务规则：find-or-create 和发言权限。
package room

import "supportchat/internal/models"

// Store 是协调器需要的持久化子集，由 store.Store 满足。
type Store interface {
	FindRoomByOwner(userID uint) (*models.ChatRoom, error)
	CreateRoomWithMembers(ownerID uint) (*models.ChatRoom, error)
	IsMember(userID, roomID uint) (bool, error)
}

type Coordinator struct {
	store Store
}

func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{store: store}
}

// GetOrCreateRoomForUser 返回用户名下最近的房间，没有则原子地创建。
// 对同一用户重复调用是幂等的：永远返回同一个房间。
func (c *Coordinator) GetOrCreateRoomForUser(userID uint) (*models.ChatRoom, error) {
	existing, err := c.store.FindRoomByOwner(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return c.store.CreateRoomWithMembers(userID)
}

// AuthorizeSend 校验成员资格。拒绝时只返回 ErrNotAMember，
// 不区分「房间不存在」和「不是成员」，避免泄露房间信息。
func (c *Coordinator) AuthorizeSend(userID, roomID uint) error {
	ok, err := c.store.IsMember(userID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAMember
	}
	return nil
}
