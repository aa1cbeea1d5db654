package api

import (
	"time"

	"github.com/Domenick1991/tripboard/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Sessions       session.Store
	Boards         Boards
	AllowedOrigins []string
}

// NewRouter builds the public API under /api/v1.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Location", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(deps.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = deps.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	router.Use(cors.New(corsCfg))

	v1 := router.Group("/api/v1")
	v1.Use(RequireSession(deps.Sessions))
	NewTripsHandler(deps.Boards).Register(v1.Group("/trips"))
	NewSessionHandler(deps.Sessions, deps.Boards).Register(v1.Group("/session"))

	return router
}
