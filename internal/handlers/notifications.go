package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/models"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The CORS middleware already gates browser origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) listNotifications(c *gin.Context) {
	notifications, err := s.notificationService.List(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"total":         len(notifications),
	})
}

func (s *Server) getUnreadCount(c *gin.Context) {
	count, err := s.notificationService.UnreadCount(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (s *Server) markNotificationRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   "Invalid notification id",
			Code:    http.StatusBadRequest,
		})
		return
	}

	if err := s.notificationService.MarkRead(c.Request.Context(), actorFrom(c), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) markAllNotificationsRead(c *gin.Context) {
	if err := s.notificationService.MarkAllRead(c.Request.Context(), actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) notificationSocket(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade websocket: %v", err)
		return
	}

	s.hub.Join("user_"+actorFrom(c), conn)
}
