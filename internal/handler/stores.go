package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopscout/shopscout/internal/middleware"
	"github.com/shopscout/shopscout/internal/service"
)

const (
	defaultRadiusMeters = 5000
	maxRadiusMeters     = 25000
)

type StoreHandler struct {
	discovery *service.Discovery
}

func NewStoreHandler(discovery *service.Discovery) *StoreHandler {
	return &StoreHandler{discovery: discovery}
}

func (h *StoreHandler) Search(c *gin.Context) {
	location := c.Query("location")
	if location == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error_code": "EMPTY_QUERY"})
		return
	}

	radius := defaultRadiusMeters
	if raw := c.Query("radius"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error_code": "INVALID_RADIUS"})
			return
		}
		radius = parsed
	}
	if radius > maxRadiusMeters {
		radius = maxRadiusMeters
	}

	result, err := h.discovery.Search(c.Request.Context(), location, radius, middleware.SessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
