// Package presence 维护「在线用户 → 当前连接」的映射。
// 一个用户同一时刻最多一条记录，后写覆盖先写。
package presence

import (
	"context"

	"supportchat/internal/models"
)

// Entry 是一条在线记录：连接 id 加上认证时的用户快照。
type Entry struct {
	ConnectionID string      `json:"connection_id"`
	User         models.User `json:"user"`
}

// Store 的实现要求：Get 对不存在的 key 返回 (nil, nil)；
// 损坏的条目按不存在处理并顺手清除，绝不向上抛错。
type Store interface {
	Set(ctx context.Context, userID uint, entry Entry) error
	Get(ctx context.Context, userID uint) (*Entry, error)
	Remove(ctx context.Context, userID uint) error
	ListAll(ctx context.Context) ([]Entry, error)
	ListByRole(ctx context.Context, role string) ([]Entry, error)
}
