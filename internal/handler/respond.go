package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/shopscout/shopscout/internal/apperr"
	"github.com/sirupsen/logrus"
)

// respondError maps a service error to its stable code and HTTP status.
func respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	code := apperr.Code(err)

	if status >= 500 {
		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			logrus.WithFields(logrus.Fields{
				"request_id": c.GetString("request_id"),
				"path":       c.Request.URL.Path,
			}).WithError(err).Error("unhandled error")
		}
	}

	c.JSON(status, gin.H{"error_code": code})
}
