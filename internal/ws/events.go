package ws

import (
	"encoding/json"
	"time"

	"supportchat/internal/models"
	"supportchat/internal/store"

	"github.com/rs/zerolog/log"
)

// 入站与出站事件名。出站事件的载荷形状是前端契约，改动要同步前端。
const (
	EvtAuthenticate  = "authenticate"
	EvtSendMessage   = "send_message"
	EvtAdminJoinRoom = "admin_join_room"
	EvtAdminLeave    = "admin_leave_room"

	EvtAuthenticated = "authenticated"
	EvtAuthError     = "authentication_error"
	EvtOnlineUsers   = "online_users_update"
	EvtChatRooms     = "chat_rooms_update"
	EvtNewMessage    = "new_message"
	EvtRoomJoined    = "room_joined"
	EvtNewUserOnline = "new_user_online"
	EvtError         = "error"
)

// Frame 是线上传输的统一信封。
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type authenticatePayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	UserType string `json:"user_type"`
}

type sendMessagePayload struct {
	RoomID  uint   `json:"roomId"`
	Content string `json:"content"`
}

type adminRoomPayload struct {
	RoomID uint `json:"roomId"`
}

type authenticatedPayload struct {
	User  models.User     `json:"user"`
	Room  models.ChatRoom `json:"room"`
	Token string          `json:"token,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type onlineUser struct {
	ID         uint      `json:"id"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type roomJoinedPayload struct {
	Room     models.ChatRoom           `json:"room"`
	Messages []store.MessageWithSender `json:"messages"`
}

type newUserOnlinePayload struct {
	User models.User     `json:"user"`
	Room models.ChatRoom `json:"room"`
}

// frame 把事件和载荷编码成一条出站帧。载荷都是自家类型，编码失败属于编程错误。
func frame(event string, data interface{}) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("ws: marshal frame data")
		raw = []byte("null")
	}
	b, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("ws: marshal frame")
		return nil
	}
	return b
}

func errorFrame(msg string) []byte {
	return frame(EvtError, errorPayload{Message: msg})
}
