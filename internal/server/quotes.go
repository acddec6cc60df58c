package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetQuoteByID(c *gin.Context) {
	item, err := s.quoteSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GetPolicyByID(c *gin.Context) {
	item, err := s.policySvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
