package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopscout/shopscout/internal/middleware"
	"github.com/shopscout/shopscout/internal/service"
)

type QuoteHandler struct {
	quotes *service.QuoteService
	carts  service.CartSource
}

func NewQuoteHandler(quotes *service.QuoteService, carts service.CartSource) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, carts: carts}
}

func (h *QuoteHandler) Quote(c *gin.Context) {
	var req struct {
		StoreIDs []string           `json:"store_ids" binding:"required"`
		Lines    []service.CartLine `json:"lines"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "INVALID_BODY"})
		return
	}

	storeIDs := make([]uuid.UUID, 0, len(req.StoreIDs))
	for _, raw := range req.StoreIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error_code": "INVALID_STORE_ID"})
			return
		}
		storeIDs = append(storeIDs, id)
	}

	sessionID := middleware.SessionID(c)

	lines := req.Lines
	if len(lines) == 0 && h.carts != nil {
		// The cart collaborator owns cart contents; pull the session's cart
		// when the request does not carry lines inline.
		stored, err := h.carts.Lines(c.Request.Context(), sessionID)
		if err != nil {
			respondError(c, err)
			return
		}
		lines = stored
	}

	result, err := h.quotes.Quote(c.Request.Context(), sessionID, lines, storeIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
