package room

import "errors"

// 业务层通用错误，路由层据此映射到对应的出站错误事件。
var (
	ErrNotAMember       = errors.New("not a member of this room")
	ErrNotAdmin         = errors.New("admin role required")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRoomNotFound     = errors.New("room not found")
)
