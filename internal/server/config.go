package server

import (
	"os"
	"strings"
)

// Config holds fixture-server configuration loaded from environment
// variables. The server this Config drives hosts only the /tdx_quote
// development fixture (see internal/server/handler/quote.go), so it
// carries no admin-auth or storage settings.
type Config struct {
	ListenAddr  string
	CORSOrigins []string
}

// LoadConfig loads server configuration from environment variables.
func LoadConfig() (*Config, error) {
	listenAddr := os.Getenv("JINGUI_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	var corsOrigins []string
	if v := os.Getenv("JINGUI_CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				corsOrigins = append(corsOrigins, o)
			}
		}
	}

	return &Config{
		ListenAddr:  listenAddr,
		CORSOrigins: corsOrigins,
	}, nil
}
