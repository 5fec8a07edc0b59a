package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	vehicledomain "github.com/fleetpass/fleetpass/internal/vehicle/domain"
	"github.com/gin-gonic/gin"
)

type createVehicleRequest struct {
	TenantID     string `json:"tenant_id"`
	Registration string `json:"registration"`
	Category     string `json:"category"`
}

func (s *Server) CreateVehicle(c *gin.Context) {
	var req createVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.vehicleSvc.Create(c.Request.Context(), vehicledomain.CreateVehicleRequest{
		TenantID:     strings.TrimSpace(req.TenantID),
		Registration: strings.TrimSpace(req.Registration),
		Category:     strings.TrimSpace(req.Category),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetVehicleByID(c *gin.Context) {
	resp, err := s.vehicleSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTenantVehicles(c *gin.Context) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, tenantdomain.ErrInvalidTenant)
		return
	}

	resp, err := s.vehicleSvc.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RetireVehicle(c *gin.Context) {
	if err := s.vehicleSvc.Retire(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": vehicledomain.VehicleStatusRetired}})
}
