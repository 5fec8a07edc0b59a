package server

import (
	"net/http"
	"strings"
	"time"

	subscriptiondomain "github.com/fleetpass/fleetpass/internal/subscription/domain"
	"github.com/gin-gonic/gin"
)

type createSubscriptionRequest struct {
	TenantID string     `json:"tenant_id"`
	Kind     string     `json:"kind"`
	Limit    string     `json:"limit"`
	StartAt  time.Time  `json:"start_at"`
	EndAt    *time.Time `json:"end_at"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateSubscriptionRequest{
		TenantID: strings.TrimSpace(req.TenantID),
		Kind:     subscriptiondomain.SubscriptionKind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		Limit:    strings.TrimSpace(req.Limit),
		StartAt:  req.StartAt,
		EndAt:    req.EndAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	resp, err := s.subscriptionSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type changeSubscriptionStatusRequest struct {
	TargetStatus string `json:"target_status"`
	Reason       string `json:"reason"`
}

func (s *Server) ChangeSubscriptionStatus(c *gin.Context) {
	var req changeSubscriptionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.ChangeStatus(c.Request.Context(), subscriptiondomain.ChangeStatusRequest{
		SubscriptionID: strings.TrimSpace(c.Param("id")),
		TargetStatus:   subscriptiondomain.SubscriptionStatus(strings.ToUpper(strings.TrimSpace(req.TargetStatus))),
		Reason:         strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubscriptionStatusLogs(c *gin.Context) {
	resp, err := s.subscriptionSvc.ListStatusLogs(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
