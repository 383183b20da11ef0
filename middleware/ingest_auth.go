package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitepulse/api/config"
	"sitepulse/api/ingest"
)

// IngestAuth guards the ingest endpoint with the shared secret. A deployment
// missing the secret or the owner id answers 500 to every request.
func IngestAuth(cfg config.IngestConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if missing := cfg.Missing(); len(missing) > 0 {
			logger.Error("Ingest request refused: configuration incomplete", zap.Strings("missing", missing))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Config Error: missing " + strings.Join(missing, ", "),
			})
			return
		}

		if err := ingest.Authenticate(cfg.SecretKey, c.Request.Header); err != nil {
			if errors.Is(err, ingest.ErrConfiguration) {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Config Error"})
				return
			}
			logger.Info("Ingest request unauthorized", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
