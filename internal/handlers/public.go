package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/models"
)

func (s *Server) getPublicForm(c *gin.Context) {
	form, err := s.formService.PublicForm(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, form)
}

func (s *Server) submitResponse(c *gin.Context) {
	var req models.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   "Invalid request format: " + err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	response, err := s.responseService.SubmitResponse(
		c.Request.Context(),
		c.Param("id"),
		&req,
		c.ClientIP(),
		c.GetHeader("User-Agent"),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"response_id": response.ID,
	})
}
