package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/elahist/paint-together/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

// CreateRoomResponse 定义创建房间成功的响应结构体。
// creator_token 只在这里出现一次，客户端自行保存。
type CreateRoomResponse struct {
	RoomID       uint   `json:"room_id"`
	CreatorToken string `json:"creator_token"`
	GridWidth    int    `json:"grid_width"`
	GridHeight   int    `json:"grid_height"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	logCtx := logrus.WithField("client_ip", c.ClientIP())

	newRoom, token, err := h.roomService.CreateRoom(c.Request.Context(), c.ClientIP())
	if err != nil {
		logCtx.WithError(err).Error("Handler.CreateRoom: failed to create room via service")
		if errors.Is(err, service.ErrStorageUnavailable) {
			ErrorResponse(c, http.StatusServiceUnavailable, "Storage temporarily unavailable")
			return
		}
		ErrorResponse(c, http.StatusInternalServerError, "Failed to create room")
		return
	}

	logCtx.WithField("room_id", newRoom.ID).Info("Handler.CreateRoom: room created successfully")
	SuccessResponse(c, http.StatusOK, CreateRoomResponse{
		RoomID:       newRoom.ID,
		CreatorToken: token,
		GridWidth:    newRoom.GridWidth,
		GridHeight:   newRoom.GridHeight,
	})
}
