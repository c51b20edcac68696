package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getFormResponses(c *gin.Context) {
	responses, err := s.responseService.ResponsesOf(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"responses": responses,
		"total":     len(responses),
	})
}

func (s *Server) getResponse(c *gin.Context) {
	response, err := s.responseService.GetResponse(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}
