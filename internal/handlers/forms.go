package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/models"
)

func (s *Server) createForm(c *gin.Context) {
	var doc models.FormDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   "Invalid request format: " + err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	form, err := s.formService.CreateForm(c.Request.Context(), actorFrom(c), &doc)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, form)
}

func (s *Server) updateForm(c *gin.Context) {
	var doc models.FormDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   "Invalid request format: " + err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	form, err := s.formService.UpdateForm(c.Request.Context(), actorFrom(c), c.Param("id"), &doc)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, form)
}

func (s *Server) listForms(c *gin.Context) {
	forms, err := s.formService.ListForms(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"forms": forms,
		"total": len(forms),
	})
}

func (s *Server) getForm(c *gin.Context) {
	form, err := s.formService.GetForm(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, form)
}

func (s *Server) deleteForm(c *gin.Context) {
	if err := s.formService.DeleteForm(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) getFormAnalytics(c *gin.Context) {
	analytics, err := s.analyticsService.Analytics(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

func (s *Server) getDashboard(c *gin.Context) {
	summary, err := s.analyticsService.DashboardSummary(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
