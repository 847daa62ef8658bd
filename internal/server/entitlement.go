package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/souqline/entitlements/internal/entitlement/domain"
)

type usageRequest struct {
	Action string  `json:"action" binding:"required"`
	Amount float64 `json:"amount" binding:"required"`
}

func (s *Server) kindService(c *gin.Context) (domain.Service, bool) {
	svc, ok := s.kinds[strings.TrimSpace(c.Param("kind"))]
	if !ok {
		AbortWithError(c, ErrUnknownKind)
		return nil, false
	}
	return svc, true
}

func (s *Server) GetEntity(c *gin.Context) {
	svc, ok := s.kindService(c)
	if !ok {
		return
	}

	rec, err := svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (s *Server) PutEntity(c *gin.Context) {
	svc, ok := s.kindService(c)
	if !ok {
		return
	}

	var rec domain.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := svc.Set(c.Request.Context(), c.Param("id"), &rec); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (s *Server) DeleteEntity(c *gin.Context) {
	svc, ok := s.kindService(c)
	if !ok {
		return
	}

	if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) RecordUsage(c *gin.Context) {
	svc, ok := s.kindService(c)
	if !ok {
		return
	}

	var req usageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accepted, err := svc.RecordUsage(c.Request.Context(), c.Param("id"), req.Action, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !accepted {
		AbortWithError(c, ErrQuotaExceeded)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"accepted": true}})
}

func (s *Server) ValidateUsage(c *gin.Context) {
	svc, ok := s.kindService(c)
	if !ok {
		return
	}

	var req usageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	valid, err := svc.ValidateUsage(c.Request.Context(), c.Param("id"), req.Action, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"valid": valid}})
}
