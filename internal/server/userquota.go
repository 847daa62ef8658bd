package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/souqline/entitlements/internal/userquota"
)

func (s *Server) ListQuotaGrants(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("user_id")

	var (
		grants []userquota.Grant
		err    error
	)
	if c.Query("active") == "true" {
		grants, err = s.quotaSvc.ListActive(ctx, userID)
	} else {
		grants, err = s.quotaSvc.List(ctx, userID)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if grants == nil {
		grants = []userquota.Grant{}
	}
	c.JSON(http.StatusOK, gin.H{"data": grants})
}

func (s *Server) UpsertQuotaGrant(c *gin.Context) {
	var grant userquota.Grant
	if err := c.ShouldBindJSON(&grant); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.quotaSvc.Upsert(c.Request.Context(), c.Param("user_id"), grant); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": grant})
}

func (s *Server) DeleteQuotaGrant(c *gin.Context) {
	err := s.quotaSvc.DeleteByTransaction(c.Request.Context(), c.Param("user_id"), c.Param("transaction_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
