package middleware

import (
	"errors"
	"net/http"

	"github.com/Sonarrati/Cryptra-App/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last gin error as a structured errutil payload.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": last.Error(),
			},
		})
	}
}
