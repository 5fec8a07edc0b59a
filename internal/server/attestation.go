package server

import (
	"net/http"
	"strings"

	attestationdomain "github.com/fleetpass/fleetpass/internal/attestation/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) IssueAttestationBatch(c *gin.Context) {
	var req attestationdomain.IssueBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.attestationSvc.IssueBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetAttestationByID(c *gin.Context) {
	resp, err := s.attestationSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTenantAttestations(c *gin.Context) {
	resp, err := s.attestationSvc.ListByTenant(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type cancelAttestationRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelAttestation(c *gin.Context) {
	var req cancelAttestationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.attestationSvc.Cancel(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ExpireAttestations triggers the sweep on demand, same as the scheduled run.
func (s *Server) ExpireAttestations(c *gin.Context) {
	expired, err := s.attestationSvc.ExpireAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"expired": expired}})
}

func (s *Server) VerifyAttestation(c *gin.Context) {
	resp, err := s.attestationSvc.Verify(c.Request.Context(), strings.TrimSpace(c.Param("reference")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenderAttestationDocument(c *gin.Context) {
	path, err := s.attestationSvc.RenderDocument(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"document_path": path}})
}
