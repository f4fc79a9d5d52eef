package controller

import (
	"context"

	"codearena/internal/common/http/middleware"
	"codearena/internal/competition/realtime"
	"codearena/internal/competition/service"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RoomController handles competition endpoints and the websocket upgrade.
type RoomController struct {
	rooms *service.RoomService
	hub   *realtime.Hub
}

// NewRoomController creates a RoomController.
func NewRoomController(rooms *service.RoomService, hub *realtime.Hub) *RoomController {
	return &RoomController{rooms: rooms, hub: hub}
}

type CreateRoomRequest struct {
	ProblemID       int64 `json:"problemId"`
	MaxParticipants int   `json:"maxParticipants"`
}

type RoomSubmitRequest struct {
	Language   string `json:"language"`
	SourceCode string `json:"sourceCode"`
}

// Create opens a room with the caller as first participant.
func (h *RoomController) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Missing user identity")
		return
	}
	var req CreateRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request parameters")
			return
		}
	}
	room, err := h.rooms.Create(c.Request.Context(), service.CreateInput{
		CreatorID:       userID,
		ProblemID:       req.ProblemID,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, room)
}

// Get returns the room state for reconciliation after reconnects.
func (h *RoomController) Get(c *gin.Context) {
	room, err := h.rooms.Get(roomContext(c), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, room)
}

func (h *RoomController) Join(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Missing user identity")
		return
	}
	room, err := h.rooms.Join(roomContext(c), c.Param("code"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, room)
}

// Submit judges a competition attempt.
func (h *RoomController) Submit(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Missing user identity")
		return
	}
	var req RoomSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	result, err := h.rooms.Submit(roomContext(c), service.SubmitInput{
		Code:       c.Param("code"),
		UserID:     userID,
		Language:   req.Language,
		SourceCode: req.SourceCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Connect upgrades to the room event websocket.
func (h *RoomController) Connect(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Missing user identity")
		return
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, userID); err != nil {
		// The upgrader already wrote the HTTP error.
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
	}
}

// roomContext tags the request context with the room code so service logs carry it.
func roomContext(c *gin.Context) context.Context {
	return contextkey.WithRoomCode(c.Request.Context(), c.Param("code"))
}
