package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/authorization"
	"github.com/gin-gonic/gin"
)

type authorizationPairRequest struct {
	TenantID       string `json:"tenant_id"`
	DocumentTypeID string `json:"document_type_id"`
}

func (r authorizationPairRequest) parse() (snowflake.ID, snowflake.ID, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(r.TenantID))
	if err != nil || tenantID == 0 {
		return 0, 0, authorization.ErrInvalidSubject
	}
	documentTypeID, err := snowflake.ParseString(strings.TrimSpace(r.DocumentTypeID))
	if err != nil || documentTypeID == 0 {
		return 0, 0, authorization.ErrInvalidObject
	}
	return tenantID, documentTypeID, nil
}

func (s *Server) GrantAuthorization(c *gin.Context) {
	var req authorizationPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, documentTypeID, err := req.parse()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.authzSvc.Grant(c.Request.Context(), tenantID, documentTypeID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"authorized": true}})
}

func (s *Server) RevokeAuthorization(c *gin.Context) {
	var req authorizationPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, documentTypeID, err := req.parse()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.authzSvc.Revoke(c.Request.Context(), tenantID, documentTypeID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"authorized": false}})
}

type bulkAuthorizationRequest struct {
	Entries []authorization.BulkEntry `json:"entries"`
}

func (s *Server) BulkUpdateAuthorizations(c *gin.Context) {
	var req bulkAuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Entries) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	results := s.authzSvc.ApplyBulkUpdate(c.Request.Context(), req.Entries)

	c.JSON(http.StatusOK, gin.H{"data": results})
}

func (s *Server) RequestAuthorization(c *gin.Context) {
	var req authorizationPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, documentTypeID, err := req.parse()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.authzSvc.RequestGrant(c.Request.Context(), tenantID, documentTypeID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"requested": true}})
}
