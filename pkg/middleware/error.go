package middleware

import (
	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error once the handler
// chain returns. Internal errors are logged in full and answered with a
// generic message.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		be := errutil.From(err)

		log := logger.FromContext(c.Request.Context(),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
		)
		switch be.Code.HTTPStatus() / 100 {
		case 5:
			log.Error("request failed", zap.Error(err))
			if be.Code == errutil.StatusInternal {
				be.Message = "internal server error"
				be.Details = nil
			}
		default:
			log.Debug("request rejected", zap.String("code", string(be.Code)), zap.Error(err))
		}

		c.AbortWithStatusJSON(be.Code.HTTPStatus(), be.JSON())
	}
}
