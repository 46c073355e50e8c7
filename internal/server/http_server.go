package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Run serves the router on addr until the listener fails.
func Run(router *gin.Engine, addr string, log *zap.Logger) {
	log.Info("listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil && err != http.ErrServerClosed {
		log.Fatal("server stopped", zap.Error(err))
	}
}
