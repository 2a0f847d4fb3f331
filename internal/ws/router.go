package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"supportchat/internal/auth"
	"supportchat/internal/config"
	"supportchat/internal/metrics"
	"supportchat/internal/models"
	"supportchat/internal/presence"
	"supportchat/internal/room"
	"supportchat/internal/session"
	"supportchat/internal/store"

	"github.com/rs/zerolog/log"
)

// Store 是事件路由依赖的持久化子集，由 store.Store 满足；测试里用假实现替换。
type Store interface {
	GetUserByEmail(email string) (*models.User, error)
	CreateUser(username, email, userType string) (*models.User, error)
	UpdateLastSeen(userID uint) (*models.User, error)
	GetRoomByID(roomID uint) (*models.ChatRoom, error)
	InsertMessage(roomID, senderID uint, content string) (*models.Message, error)
	TouchRoomActivity(roomID uint) error
	GetMessageWithSender(messageID uint) (*store.MessageWithSender, error)
	ListMessages(roomID uint, limit, offset int) ([]store.MessageWithSender, error)
	ListRoomsForAdmin() ([]store.RoomSummary, error)
	UpdateMemberLastSeen(userID, roomID, messageID uint) error
}

// Router 是核心编排器：校验入站事件、调用房间协调器和持久化、
// 维护在线表，并把结果扇出给正确的连接集合。
//
// 每个事件处理器都是错误边界：内部任何失败都转成只发给来源连接的
// 错误事件，绝不影响其他连接或让进程退出。
type Router struct {
	cfg      config.Config
	store    Store
	rooms    *room.Coordinator
	presence presence.Store
	sessions *session.Registry
	hub      *Hub
}

func NewRouter(cfg config.Config, st Store, rooms *room.Coordinator, pres presence.Store, sessions *session.Registry, hub *Hub) *Router {
	return &Router{cfg: cfg, store: st, rooms: rooms, presence: pres, sessions: sessions, hub: hub}
}

// HandleFrame 解析一帧并按事件名分发。
func (rt *Router) HandleFrame(ctx context.Context, connID string, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		rt.hub.SendTo(connID, errorFrame("invalid frame"))
		return
	}
	switch f.Event {
	case EvtAuthenticate:
		rt.handleAuthenticate(ctx, connID, f.Data)
	case EvtSendMessage:
		rt.handleSendMessage(ctx, connID, f.Data)
	case EvtAdminJoinRoom:
		rt.handleAdminJoinRoom(connID, f.Data)
	case EvtAdminLeave:
		rt.handleAdminLeaveRoom(connID, f.Data)
	default:
		metrics.WsEventErrorsTotal.WithLabelValues("unknown").Inc()
		rt.hub.SendTo(connID, errorFrame("unknown event"))
	}
}

func (rt *Router) handleAuthenticate(ctx context.Context, connID string, raw json.RawMessage) {
	var p authenticatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		rt.authError(connID, "invalid authenticate payload")
		return
	}
	p.Username = strings.TrimSpace(p.Username)
	p.Email = strings.TrimSpace(p.Email)
	if p.Username == "" || p.Email == "" {
		rt.authError(connID, "username and email are required")
		return
	}

	user, err := rt.store.GetUserByEmail(p.Email)
	if err != nil {
		log.Error().Err(err).Str("conn_id", connID).Msg("authenticate: lookup user")
		rt.authError(connID, "authentication failed, please try again")
		return
	}
	if user == nil {
		user, err = rt.store.CreateUser(p.Username, p.Email, p.UserType)
		if err != nil {
			log.Error().Err(err).Str("conn_id", connID).Msg("authenticate: create user")
			rt.authError(connID, "authentication failed, please try again")
			return
		}
	} else {
		user, err = rt.store.UpdateLastSeen(user.ID)
		if err != nil {
			log.Error().Err(err).Str("conn_id", connID).Msg("authenticate: update last seen")
			rt.authError(connID, "authentication failed, please try again")
			return
		}
	}

	rm, err := rt.rooms.GetOrCreateRoomForUser(user.ID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("authenticate: resolve room")
		rt.authError(connID, "authentication failed, please try again")
		return
	}

	// 同一用户重复登录：在线表后写覆盖先写，被顶掉的旧连接直接断开，
	// 不让它留在「在线表之外还能发言」的模糊状态里。
	if prev, err := rt.presence.Get(ctx, user.ID); err == nil && prev != nil && prev.ConnectionID != connID {
		rt.hub.SendTo(prev.ConnectionID, errorFrame("signed in from another connection"))
		rt.hub.CloseConn(prev.ConnectionID)
	}

	rt.sessions.Authenticate(connID, *user)
	if err := rt.presence.Set(ctx, user.ID, presence.Entry{ConnectionID: connID, User: *user}); err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("authenticate: presence set")
	}

	rt.hub.Join(connID, rm.ID)
	rt.sessions.JoinRoom(connID, rm.ID)

	token, err := auth.GenerateAccessToken(user.ID, rt.cfg.JWTSecret, rt.cfg.AccessTokenTTLMinutes)
	if err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("authenticate: sign token")
	}
	rt.hub.SendTo(connID, frame(EvtAuthenticated, authenticatedPayload{User: *user, Room: *rm, Token: token}))

	rt.broadcastOnlineUsers(ctx)

	if user.IsAdmin() {
		rt.sendAdminRooms(connID)
		rt.broadcastToAdmins(ctx, frame(EvtNewUserOnline, newUserOnlinePayload{User: *user, Room: *rm}), connID)
	}
	log.Info().Uint("user_id", user.ID).Str("username", user.Username).Str("conn_id", connID).Msg("authenticated")
}

func (rt *Router) handleSendMessage(ctx context.Context, connID string, raw json.RawMessage) {
	user, ok := rt.sessions.User(connID)
	if !ok {
		rt.sendError(connID, EvtSendMessage, "not authenticated")
		return
	}
	var p sendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		rt.sendError(connID, EvtSendMessage, "invalid send_message payload")
		return
	}
	p.Content = strings.TrimSpace(p.Content)
	if p.Content == "" {
		rt.sendError(connID, EvtSendMessage, "message content is required")
		return
	}

	if err := rt.rooms.AuthorizeSend(user.ID, p.RoomID); err != nil {
		if errors.Is(err, room.ErrNotAMember) {
			rt.sendError(connID, EvtSendMessage, "you do not have permission to send messages in this room")
		} else {
			log.Error().Err(err).Uint("user_id", user.ID).Uint("room_id", p.RoomID).Msg("send_message: authorize")
			rt.sendError(connID, EvtSendMessage, "failed to send message, please try again")
		}
		return
	}

	msg, err := rt.store.InsertMessage(p.RoomID, user.ID, p.Content)
	if err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Uint("room_id", p.RoomID).Msg("send_message: insert")
		rt.sendError(connID, EvtSendMessage, "failed to send message, please try again")
		return
	}
	if err := rt.store.TouchRoomActivity(p.RoomID); err != nil {
		log.Error().Err(err).Uint("room_id", p.RoomID).Msg("send_message: touch room")
	}

	full, err := rt.store.GetMessageWithSender(msg.ID)
	if err != nil {
		log.Error().Err(err).Uint("message_id", msg.ID).Msg("send_message: reload")
		rt.sendError(connID, EvtSendMessage, "failed to send message, please try again")
		return
	}

	metrics.WsMessagesTotal.Inc()
	rt.hub.BroadcastRoom(p.RoomID, frame(EvtNewMessage, full))
	rt.pushAdminRooms(ctx)
}

func (rt *Router) handleAdminJoinRoom(connID string, raw json.RawMessage) {
	user, ok := rt.sessions.User(connID)
	if !ok {
		rt.sendError(connID, EvtAdminJoinRoom, "not authenticated")
		return
	}
	if !user.IsAdmin() {
		rt.sendError(connID, EvtAdminJoinRoom, "admin role required")
		return
	}
	var p adminRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == 0 {
		rt.sendError(connID, EvtAdminJoinRoom, "invalid admin_join_room payload")
		return
	}

	rm, err := rt.store.GetRoomByID(p.RoomID)
	if err != nil || rm == nil {
		if err != nil {
			log.Error().Err(err).Uint("room_id", p.RoomID).Msg("admin_join_room: load room")
		}
		rt.sendError(connID, EvtAdminJoinRoom, "failed to join room")
		return
	}
	messages, err := rt.store.ListMessages(p.RoomID, 200, 0)
	if err != nil {
		log.Error().Err(err).Uint("room_id", p.RoomID).Msg("admin_join_room: load history")
		rt.sendError(connID, EvtAdminJoinRoom, "failed to join room")
		return
	}

	// 管理员同一时刻只待在一个房间频道里，加入新房间隐式离开旧的。
	for _, joined := range rt.sessions.Rooms(connID) {
		if joined == p.RoomID {
			continue
		}
		rt.hub.Leave(connID, joined)
		rt.sessions.LeaveRoom(connID, joined)
	}
	rt.hub.Join(connID, p.RoomID)
	rt.sessions.JoinRoom(connID, p.RoomID)

	// 进房即视为读完已拉取的历史，记录已读位置。
	if len(messages) > 0 {
		last := messages[len(messages)-1].ID
		if err := rt.store.UpdateMemberLastSeen(user.ID, p.RoomID, last); err != nil {
			log.Error().Err(err).Uint("room_id", p.RoomID).Msg("admin_join_room: last seen")
		}
	}

	rt.hub.SendTo(connID, frame(EvtRoomJoined, roomJoinedPayload{Room: *rm, Messages: messages}))
	log.Info().Uint("admin_id", user.ID).Uint("room_id", p.RoomID).Int("history", len(messages)).Msg("admin joined room")
}

// handleAdminLeaveRoom 幂等：不在该房间时什么也不做，也不报错。
func (rt *Router) handleAdminLeaveRoom(connID string, raw json.RawMessage) {
	var p adminRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == 0 {
		return
	}
	if rt.sessions.LeaveRoom(connID, p.RoomID) {
		rt.hub.Leave(connID, p.RoomID)
	}
}

// Disconnect 清理一条连接：注销会话、移除频道成员，
// 并在在线表条目仍指向这条连接时删除它。重复调用是空操作。
func (rt *Router) Disconnect(ctx context.Context, connID string) {
	st, ok := rt.sessions.Remove(connID)
	removed := rt.hub.Unregister(connID)
	if !ok && !removed {
		return
	}
	if st != nil && st.Authenticated() {
		entry, err := rt.presence.Get(ctx, st.UserID)
		if err != nil {
			log.Error().Err(err).Uint("user_id", st.UserID).Msg("disconnect: presence get")
		}
		// 只删除本连接写入的那条在线记录，被覆盖的旧连接不碰新记录。
		if entry != nil && entry.ConnectionID == connID {
			if err := rt.presence.Remove(ctx, st.UserID); err != nil {
				log.Error().Err(err).Uint("user_id", st.UserID).Msg("disconnect: presence remove")
			}
		}
		rt.broadcastOnlineUsers(ctx)
		log.Info().Uint("user_id", st.UserID).Str("conn_id", connID).Msg("disconnected")
	}
}

// broadcastOnlineUsers 向所有连接推送当前在线用户列表。
func (rt *Router) broadcastOnlineUsers(ctx context.Context) {
	entries, err := rt.presence.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("presence: list all")
		return
	}
	users := make([]onlineUser, 0, len(entries))
	for _, e := range entries {
		users = append(users, onlineUser{
			ID:         e.User.ID,
			Username:   e.User.Username,
			Role:       e.User.UserType,
			LastSeenAt: e.User.LastSeenAt,
		})
	}
	rt.hub.BroadcastAll(frame(EvtOnlineUsers, users))
}

// sendAdminRooms 把完整的管理端房间列表发给一条连接。
func (rt *Router) sendAdminRooms(connID string) {
	summaries, err := rt.store.ListRoomsForAdmin()
	if err != nil {
		log.Error().Err(err).Msg("list rooms for admin")
		return
	}
	rt.hub.SendTo(connID, frame(EvtChatRooms, summaries))
}

// pushAdminRooms 重新汇总房间列表并推给每个在线的管理员连接。
func (rt *Router) pushAdminRooms(ctx context.Context) {
	summaries, err := rt.store.ListRoomsForAdmin()
	if err != nil {
		log.Error().Err(err).Msg("list rooms for admin")
		return
	}
	rt.broadcastToAdmins(ctx, frame(EvtChatRooms, summaries), "")
}

// broadcastToAdmins 通过在线表找出管理员连接并逐个发送，exceptConnID 可为空。
func (rt *Router) broadcastToAdmins(ctx context.Context, payload []byte, exceptConnID string) {
	admins, err := rt.presence.ListByRole(ctx, models.UserTypeAdmin)
	if err != nil {
		log.Error().Err(err).Msg("presence: list admins")
		return
	}
	for _, e := range admins {
		if e.ConnectionID == exceptConnID {
			continue
		}
		rt.hub.SendTo(e.ConnectionID, payload)
	}
}

func (rt *Router) authError(connID, msg string) {
	metrics.WsEventErrorsTotal.WithLabelValues(EvtAuthenticate).Inc()
	rt.hub.SendTo(connID, frame(EvtAuthError, errorPayload{Message: msg}))
}

func (rt *Router) sendError(connID, event, msg string) {
	metrics.WsEventErrorsTotal.WithLabelValues(event).Inc()
	rt.hub.SendTo(connID, errorFrame(msg))
}
