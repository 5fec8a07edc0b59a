package server

import (
	"net/http"
	"strings"

	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	"github.com/gin-gonic/gin"
)

type createTenantRequest struct {
	Name         string `json:"name"`
	Code         string `json:"code"`
	Currency     string `json:"currency"`
	ContactEmail string `json:"contact_email"`
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.Create(c.Request.Context(), tenantdomain.CreateTenantRequest{
		Name:         strings.TrimSpace(req.Name),
		Code:         strings.TrimSpace(req.Code),
		Currency:     strings.TrimSpace(req.Currency),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTenants(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.List(c.Request.Context(), tenantdomain.ListTenantRequest{
		Status: strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTenantByID(c *gin.Context) {
	resp, err := s.tenantSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setPaymentModelRequest struct {
	PaymentModel string `json:"payment_model"`
}

func (s *Server) SetTenantPaymentModel(c *gin.Context) {
	var req setPaymentModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.SetPaymentModel(c.Request.Context(), tenantdomain.SetPaymentModelRequest{
		TenantID:     strings.TrimSpace(c.Param("id")),
		PaymentModel: tenantdomain.PaymentModel(strings.ToUpper(strings.TrimSpace(req.PaymentModel))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
