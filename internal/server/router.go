package server

import (
	"net/http"
	"strconv"
	"time"

	"supportchat/internal/auth"
	"supportchat/internal/config"
	"supportchat/internal/metrics"
	"supportchat/internal/mw"
	"supportchat/internal/store"
	"supportchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、只读 REST 接口和 WebSocket 端点。
// 实时聊天全部走 /ws，REST 只提供给前端拉历史数据用。
func SetupRouter(cfg config.Config, db *gorm.DB, st *store.Store, router *ws.Router) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.AllowedOrigins))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", router.Serve())

	// 需要 Bearer Token 的只读接口，token 在 socket 认证成功时下发。
	api := r.Group("/api/v1")
	api.Use(auth.AuthMiddleware(cfg, db))

	api.GET("/rooms", func(c *gin.Context) {
		user, ok := auth.GetUser(c)
		if !ok || !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		rooms, err := st.ListRoomsForAdmin()
		if err != nil {
			log.Error().Err(err).Msg("list rooms")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})

	// 软删除：行保留，列表接口和房间汇总不再返回。仅管理员可用。
	api.DELETE("/messages/:id", func(c *gin.Context) {
		user, ok := auth.GetUser(c)
		if !ok || !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		msgID, err := strconv.Atoi(c.Param("id"))
		if err != nil || msgID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
			return
		}
		if err := st.SoftDeleteMessage(uint(msgID), user.ID); err != nil {
			log.Error().Err(err).Int("message_id", msgID).Msg("delete message")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/rooms/:id/messages", func(c *gin.Context) {
		roomID, err := strconv.Atoi(c.Param("id"))
		if err != nil || roomID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
			return
		}
		user, _ := auth.GetUser(c)
		if !user.IsAdmin() {
			ok, err := st.IsMember(user.ID, uint(roomID))
			if err != nil {
				log.Error().Err(err).Int("room_id", roomID).Msg("list messages membership")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
				return
			}
			if !ok {
				// 和 socket 侧一致：不区分「房间不存在」和「不是成员」。
				c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
				return
			}
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		msgs, err := st.ListMessages(uint(roomID), limit, offset)
		if err != nil {
			log.Error().Err(err).Int("room_id", roomID).Msg("list messages")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	})

	return r
}
