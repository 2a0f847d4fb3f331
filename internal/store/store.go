package store

import (
	"errors"
	"fmt"
	"time"

	"supportchat/internal/models"

	"gorm.io/gorm"
)

// Store 封装所有持久化访问，每个方法对应一条参数化查询或一个事务。
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetUserByEmail 按邮箱查用户，不存在时返回 (nil, nil)。
func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrap("get user by email", err)
	}
	return &user, nil
}

func (s *Store) CreateUser(username, email, userType string) (*models.User, error) {
	if userType == "" {
		userType = models.UserTypeUser
	}
	user := models.User{Username: username, Email: email, UserType: userType, LastSeenAt: time.Now()}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, wrap("create user", err)
	}
	return &user, nil
}

// UpdateLastSeen 刷新用户的 last_seen_at 并返回最新的行。
func (s *Store) UpdateLastSeen(userID uint) (*models.User, error) {
	if err := s.db.Model(&models.User{}).Where("id = ?", userID).Update("last_seen_at", time.Now()).Error; err != nil {
		return nil, wrap("update last seen", err)
	}
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, wrap("update last seen reload", err)
	}
	return &user, nil
}

// FindRoomByOwner 返回 owner 名下最近的房间，不存在时返回 (nil, nil)。
func (s *Store) FindRoomByOwner(userID uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db.Where("owner_id = ?", userID).Order("created_at desc").First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrap("find room by owner", err)
	}
	return &room, nil
}

// CreateRoomWithMembers 在一个事务里创建房间和全部成员行：
// owner 一行 member 角色，创建时刻已存在的每个 admin 账号各一行 admin 角色。
// 任意一步失败整体回滚，不会出现零成员的房间。
// 事务内会再查一次 owner 名下是否已有房间，两个全新 owner 的认证同时到达时
// 仍可能各自建出一个房间（owner_id 上没有唯一约束），这是已知并记录的局限。
func (s *Store) CreateRoomWithMembers(ownerID uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.ChatRoom
		err := tx.Where("owner_id = ?", ownerID).Order("created_at desc").First(&existing).Error
		if err == nil {
			room = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var owner models.User
		if err := tx.First(&owner, ownerID).Error; err != nil {
			return err
		}

		room = models.ChatRoom{
			DisplayName: fmt.Sprintf("Support - %s", owner.Username),
			RoomType:    models.RoomTypeSupport,
			OwnerID:     ownerID,
		}
		if err := tx.Create(&room).Error; err != nil {
			return err
		}

		now := time.Now()
		members := []models.Member{{UserID: ownerID, RoomID: room.ID, Role: models.MemberRoleMember, JoinedAt: now}}

		var admins []models.User
		if err := tx.Where("user_type = ?", models.UserTypeAdmin).Find(&admins).Error; err != nil {
			return err
		}
		for _, a := range admins {
			if a.ID == ownerID {
				continue
			}
			members = append(members, models.Member{UserID: a.ID, RoomID: room.ID, Role: models.MemberRoleAdmin, JoinedAt: now})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, wrap("create room with members", err)
	}
	return &room, nil
}

func (s *Store) IsMember(userID, roomID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Member{}).Where("user_id = ? AND room_id = ?", userID, roomID).Count(&count).Error
	if err != nil {
		return false, wrap("is member", err)
	}
	return count > 0, nil
}

func (s *Store) GetRoomByID(roomID uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := s.db.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrap("get room by id", err)
	}
	return &room, nil
}

func (s *Store) InsertMessage(roomID, senderID uint, content string) (*models.Message, error) {
	msg := models.Message{RoomID: roomID, SenderID: senderID, Content: content}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, wrap("insert message", err)
	}
	return &msg, nil
}

// TouchRoomActivity 把房间的 updated_at 推到当前时间，供管理端列表排序。
func (s *Store) TouchRoomActivity(roomID uint) error {
	err := s.db.Model(&models.ChatRoom{}).Where("id = ?", roomID).Update("updated_at", time.Now()).Error
	return wrap("touch room activity", err)
}

// MessageWithSender 是带发送者展示字段的消息行。
type MessageWithSender struct {
	ID             uint      `json:"id"`
	RoomID         uint      `json:"roomId"`
	SenderID       uint      `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	SenderUsername string    `json:"senderUsername"`
	SenderRole     string    `json:"senderRole"`
}

// GetMessageWithSender 重新读取已落库的消息并附上发送者用户名和角色。
func (s *Store) GetMessageWithSender(messageID uint) (*MessageWithSender, error) {
	var row MessageWithSender
	err := s.db.Model(&models.Message{}).
		Select("messages.id, messages.room_id, messages.sender_id, messages.content, messages.created_at, users.username as sender_username, users.user_type as sender_role").
		Joins("JOIN users ON users.id = messages.sender_id").
		Where("messages.id = ?", messageID).
		Scan(&row).Error
	if err != nil {
		return nil, wrap("get message with sender", err)
	}
	if row.ID == 0 {
		return nil, wrap("get message with sender", gorm.ErrRecordNotFound)
	}
	return &row, nil
}

// ListMessages 按插入顺序返回房间消息（跳过软删除的行）。
func (s *Store) ListMessages(roomID uint, limit, offset int) ([]MessageWithSender, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var rows []MessageWithSender
	err := s.db.Model(&models.Message{}).
		Select("messages.id, messages.room_id, messages.sender_id, messages.content, messages.created_at, users.username as sender_username, users.user_type as sender_role").
		Joins("JOIN users ON users.id = messages.sender_id").
		Where("messages.room_id = ? AND messages.deleted_at IS NULL", roomID).
		Order("messages.id asc").
		Limit(limit).Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, wrap("list messages", err)
	}
	if rows == nil {
		rows = []MessageWithSender{}
	}
	return rows, nil
}

// RoomSummary 是管理端房间列表里的一行。
type RoomSummary struct {
	ID           uint               `json:"id"`
	DisplayName  string             `json:"display_name"`
	RoomType     string             `json:"room_type"`
	Owner        models.User        `json:"owner"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	MemberCount  int64              `json:"member_count"`
	MessageCount int64              `json:"message_count"`
	LastMessage  *MessageWithSender `json:"last_message,omitempty"`
}

// ListRoomsForAdmin 汇总所有房间：owner、成员数、消息数和最后一条消息，
// 按房间活跃时间倒序。
func (s *Store) ListRoomsForAdmin() ([]RoomSummary, error) {
	var rooms []models.ChatRoom
	if err := s.db.Order("updated_at desc").Find(&rooms).Error; err != nil {
		return nil, wrap("list rooms for admin", err)
	}
	if len(rooms) == 0 {
		return []RoomSummary{}, nil
	}

	roomIDs := make([]uint, 0, len(rooms))
	ownerIDs := make([]uint, 0, len(rooms))
	for _, r := range rooms {
		roomIDs = append(roomIDs, r.ID)
		ownerIDs = append(ownerIDs, r.OwnerID)
	}

	var owners []models.User
	if err := s.db.Where("id IN ?", ownerIDs).Find(&owners).Error; err != nil {
		return nil, wrap("list rooms for admin owners", err)
	}
	ownerByID := make(map[uint]models.User, len(owners))
	for _, u := range owners {
		ownerByID[u.ID] = u
	}

	type countRow struct {
		RoomID uint
		N      int64
	}
	var memberCounts []countRow
	err := s.db.Model(&models.Member{}).
		Select("room_id, count(*) as n").
		Where("room_id IN ?", roomIDs).
		Group("room_id").
		Scan(&memberCounts).Error
	if err != nil {
		return nil, wrap("list rooms for admin member counts", err)
	}
	membersByRoom := make(map[uint]int64, len(memberCounts))
	for _, c := range memberCounts {
		membersByRoom[c.RoomID] = c.N
	}

	var messageCounts []countRow
	err = s.db.Model(&models.Message{}).
		Select("room_id, count(*) as n").
		Where("room_id IN ? AND deleted_at IS NULL", roomIDs).
		Group("room_id").
		Scan(&messageCounts).Error
	if err != nil {
		return nil, wrap("list rooms for admin message counts", err)
	}
	messagesByRoom := make(map[uint]int64, len(messageCounts))
	for _, c := range messageCounts {
		messagesByRoom[c.RoomID] = c.N
	}

	var lastMessages []MessageWithSender
	err = s.db.Model(&models.Message{}).
		Select("messages.id, messages.room_id, messages.sender_id, messages.content, messages.created_at, users.username as sender_username, users.user_type as sender_role").
		Joins("JOIN users ON users.id = messages.sender_id").
		Where("messages.id IN (?)",
			s.db.Model(&models.Message{}).
				Select("max(id)").
				Where("room_id IN ? AND deleted_at IS NULL", roomIDs).
				Group("room_id")).
		Scan(&lastMessages).Error
	if err != nil {
		return nil, wrap("list rooms for admin last messages", err)
	}
	lastByRoom := make(map[uint]MessageWithSender, len(lastMessages))
	for _, m := range lastMessages {
		lastByRoom[m.RoomID] = m
	}

	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		summary := RoomSummary{
			ID:           r.ID,
			DisplayName:  r.DisplayName,
			RoomType:     r.RoomType,
			Owner:        ownerByID[r.OwnerID],
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
			MemberCount:  membersByRoom[r.ID],
			MessageCount: messagesByRoom[r.ID],
		}
		if lm, ok := lastByRoom[r.ID]; ok {
			lmCopy := lm
			summary.LastMessage = &lmCopy
		}
		out = append(out, summary)
	}
	return out, nil
}

// SoftDeleteMessage 标记消息删除，保留行本身。
func (s *Store) SoftDeleteMessage(messageID, deletedBy uint) error {
	now := time.Now()
	err := s.db.Model(&models.Message{}).
		Where("id = ? AND deleted_at IS NULL", messageID).
		Updates(map[string]interface{}{"deleted_at": &now, "deleted_by": deletedBy}).Error
	return wrap("soft delete message", err)
}

// UpdateMemberLastSeen 记录成员已读到的消息位置，未读数的计算不在范围内。
func (s *Store) UpdateMemberLastSeen(userID, roomID, messageID uint) error {
	err := s.db.Model(&models.Member{}).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Update("last_seen_message_id", messageID).Error
	return wrap("update member last seen", err)
}
