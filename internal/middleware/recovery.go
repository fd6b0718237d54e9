package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logrus.WithFields(logrus.Fields{
					"request_id": c.GetString("request_id"),
					"panic":      err,
				}).Error("request panicked")

				c.JSON(http.StatusInternalServerError, gin.H{
					"error_code": "INTERNAL",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
