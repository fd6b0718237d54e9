package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopscout/shopscout/internal/middleware"
	"github.com/shopscout/shopscout/internal/service"
)

type PriceHandler struct {
	submit *service.SubmitService
}

func NewPriceHandler(submit *service.SubmitService) *PriceHandler {
	return &PriceHandler{submit: submit}
}

func (h *PriceHandler) Submit(c *gin.Context) {
	var req struct {
		StoreID      string     `json:"store_id" binding:"required"`
		UPC          string     `json:"upc" binding:"required"`
		PriceCents   int64      `json:"price_cents" binding:"required"`
		EvidenceType string     `json:"evidence_type"`
		ObservedAt   *time.Time `json:"observed_at"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "INVALID_BODY"})
		return
	}

	storeID, err := uuid.Parse(req.StoreID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "INVALID_STORE_ID"})
		return
	}

	snapshotID, err := h.submit.Submit(c.Request.Context(), service.Submission{
		StoreID:      storeID,
		UPC:          req.UPC,
		PriceCents:   req.PriceCents,
		EvidenceType: req.EvidenceType,
		ObservedAt:   req.ObservedAt,
		SessionID:    middleware.SessionID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"snapshot_id": snapshotID})
}
