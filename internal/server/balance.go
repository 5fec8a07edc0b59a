package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/fleetpass/fleetpass/internal/balance/domain"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	"github.com/gin-gonic/gin"
)

type openBalanceRequest struct {
	TenantID      string `json:"tenant_id"`
	InitialAmount string `json:"initial_amount"`
}

func (s *Server) OpenBalance(c *gin.Context) {
	var req openBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.balanceSvc.Open(c.Request.Context(), balancedomain.OpenBalanceRequest{
		TenantID:      strings.TrimSpace(req.TenantID),
		InitialAmount: strings.TrimSpace(req.InitialAmount),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type mutateBalanceRequest struct {
	TenantID    string `json:"tenant_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) CreditBalance(c *gin.Context) {
	var req mutateBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.balanceSvc.Credit(c.Request.Context(), balancedomain.MutationRequest{
		TenantID:    strings.TrimSpace(req.TenantID),
		Amount:      strings.TrimSpace(req.Amount),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DebitBalance(c *gin.Context) {
	var req mutateBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.balanceSvc.Debit(c.Request.Context(), balancedomain.MutationRequest{
		TenantID:    strings.TrimSpace(req.TenantID),
		Amount:      strings.TrimSpace(req.Amount),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTenantBalance(c *gin.Context) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, tenantdomain.ErrInvalidTenant)
		return
	}

	resp, err := s.balanceSvc.CurrentBalance(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTenantTransactions(c *gin.Context) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, tenantdomain.ErrInvalidTenant)
		return
	}

	resp, err := s.balanceSvc.ListTransactions(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
