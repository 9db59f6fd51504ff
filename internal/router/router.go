package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"timekeeper/backend/internal/handler"
	"timekeeper/backend/internal/middleware"
	"timekeeper/backend/internal/service"
	"timekeeper/backend/internal/ws"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	hub *ws.Hub,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", middleware.Auth(authService), authHandler.Me)

	// The hub authenticates the upgrade request itself; the bearer token
	// travels in the Authorization header of the upgrade.
	engine.GET("/ws/timer", hub.Handle)

	return engine
}
