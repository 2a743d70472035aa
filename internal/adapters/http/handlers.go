package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/Consult/internal/app/preview"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionUserID      = "user_id"
	sessionDisplayName = "display_name"
)

type IdentityRequest struct {
	Name string `json:"name"`
}

type IdentityResponse struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type RoomResponse struct {
	MeetingID domain.MeetingID `json:"meetingId"`
}

type handlers struct {
	rooms   core.RoomProvider
	devices core.Devices
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) getIdentity(c *gin.Context) {
	id := c.GetString("user_id")
	if id == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no identity"})
		return
	}
	c.JSON(http.StatusOK, IdentityResponse{UserID: id, DisplayName: c.GetString("display_name")})
}

// postIdentity remembers the display name and mints a stable user id on first use.
func (h *handlers) postIdentity(c *gin.Context) {
	var req IdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	id := c.GetString("user_id")
	if id == "" {
		id = uuid.NewString()
	}
	name := strings.TrimSpace(req.Name)

	s := sessions.Default(c)
	s.Set(sessionUserID, id)
	s.Set(sessionDisplayName, name)
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, IdentityResponse{UserID: id, DisplayName: name})
}

func (h *handlers) listDevices(c *gin.Context) {
	m := preview.NewManager(h.devices, preview.Selection{WebcamOn: true, MicOn: true})
	list, err := m.ListDevices(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) createRoom(c *gin.Context) {
	ctx := c.Request.Context()
	token, err := h.rooms.GetToken(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := h.rooms.CreateRoom(ctx, token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, RoomResponse{MeetingID: id})
}

func (h *handlers) validateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	token, err := h.rooms.GetToken(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := h.rooms.ValidateRoom(ctx, domain.MeetingID(c.Param("id")), token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RoomResponse{MeetingID: id})
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusBadGateway, "transport"
	switch {
	case errors.Is(err, domain.ErrRoomInvalid):
		status, code = http.StatusNotFound, "room_invalid"
	case errors.Is(err, domain.ErrRoomExpired):
		status, code = http.StatusGone, "room_expired"
	case errors.Is(err, domain.ErrPermissionDenied):
		status, code = http.StatusForbidden, "permission_denied"
	}
	log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
