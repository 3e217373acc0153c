package server

import (
	"github.com/aspect-build/jingui/internal/attestation"
	"github.com/aspect-build/jingui/internal/server/handler"
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the Gin router serving the local
// aTLS development fixture: a health check and the /tdx_quote
// endpoint answered with the canned DefaultQuoteFixture.
func NewRouter(cfg *Config) *gin.Engine {
	r := gin.Default()

	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORS(cfg.CORSOrigins))
	}

	r.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})

	collector := attestation.NewDstackInfoCollector("")
	r.POST("/tdx_quote", handler.HandleTdxQuote(handler.DefaultQuoteFixture(), collector))

	return r
}
