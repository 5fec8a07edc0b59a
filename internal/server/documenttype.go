package server

import (
	"net/http"
	"strings"

	documenttypedomain "github.com/fleetpass/fleetpass/internal/documenttype/domain"
	"github.com/gin-gonic/gin"
)

type createDocumentTypeRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Currency  string `json:"currency"`
}

func (s *Server) CreateDocumentType(c *gin.Context) {
	var req createDocumentTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.documentTypeSvc.Create(c.Request.Context(), documenttypedomain.CreateDocumentTypeRequest{
		Code:      strings.TrimSpace(req.Code),
		Name:      strings.TrimSpace(req.Name),
		UnitPrice: strings.TrimSpace(req.UnitPrice),
		Currency:  strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListDocumentTypes(c *gin.Context) {
	resp, err := s.documentTypeSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDocumentTypeByID(c *gin.Context) {
	resp, err := s.documentTypeSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updatePriceRequest struct {
	UnitPrice string `json:"unit_price"`
}

func (s *Server) UpdateDocumentTypePrice(c *gin.Context) {
	var req updatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.documentTypeSvc.UpdatePrice(c.Request.Context(), documenttypedomain.UpdatePriceRequest{
		ID:        strings.TrimSpace(c.Param("id")),
		UnitPrice: strings.TrimSpace(req.UnitPrice),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
