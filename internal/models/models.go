package models

import "time"

// 用户角色与成员角色的取值，避免散落的魔法字符串。
const (
	UserTypeUser  = "user"
	UserTypeAdmin = "admin"

	MemberRoleMember = "member"
	MemberRoleAdmin  = "admin"

	RoomTypeSupport = "support"
)

type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"size:64;not null" json:"username"`
	Email      string    `gorm:"uniqueIndex;size:128;not null" json:"email"`
	UserType   string    `gorm:"size:16;not null;default:'user'" json:"user_type"`
	Avatar     string    `gorm:"size:256" json:"avatar,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func (u User) IsAdmin() bool { return u.UserType == UserTypeAdmin }

type ChatRoom struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DisplayName string    `gorm:"size:128" json:"display_name"`
	RoomType    string    `gorm:"size:32;not null;default:'support'" json:"room_type"`
	OwnerID     uint      `gorm:"index;not null" json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member 是房间成员关系行，复合主键保证同一用户在一个房间只有一行。
type Member struct {
	UserID            uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RoomID            uint      `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	Role              string    `gorm:"size:16;not null;default:'member'" json:"role"`
	JoinedAt          time.Time `json:"joined_at"`
	LastSeenMessageID *uint     `json:"last_seen_message_id,omitempty"`
}

// Message 一经创建不可修改，只支持软删除。
type Message struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	RoomID    uint       `gorm:"index:idx_msg_room_id;not null" json:"room_id"`
	SenderID  uint       `gorm:"index;not null" json:"sender_id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy *uint      `json:"deleted_by,omitempty"`
}
