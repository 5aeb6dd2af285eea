package http

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/postbox/internal/store"
	"github.com/sujalbistaa/postbox/internal/ws"
)

// SetupRoutes configures all application routes and middleware.
// adminSecret is the shared admin credential; empty disables every
// administrative route while leaving the public ones open.
func SetupRoutes(router *gin.Engine, st *store.Store, hub *ws.Hub, adminSecret string) {

	// --- Dependencies ---
	env := &Env{Store: st, Hub: hub}

	// --- Middleware ---
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := os.Getenv("CORS_ORIGIN")
	if corsOrigin == "" {
		corsOrigin = "*" // Default to allow all for local dev
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// --- Rate Limiter Setup ---
	limiter := NewIPRateLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)
	go func() {
		for {
			time.Sleep(10 * time.Minute)
			limiter.mu.Lock()
			for ip, v := range limiter.visitors {
				// A refilled limiter has been idle long enough to drop.
				if v.Tokens() >= float64(rateLimitBurst) {
					delete(limiter.visitors, ip)
				}
			}
			limiter.mu.Unlock()
		}
	}()

	// --- API Routes ---

	api := router.Group("/api/contact")
	{
		api.POST("/send-message", RateLimitMiddleware(limiter), env.SendMessage)
		api.POST("/check-reply", env.CheckReply)
		api.GET("/public-messages", env.PublicMessages)

		admin := api.Group("/admin", AdminAuthMiddleware(adminSecret))
		{
			admin.GET("/messages", env.AdminMessages)
			admin.POST("/reply/:key", env.AdminReply)
			admin.GET("/stats", env.AdminStats)
			admin.POST("/toggle-public/:key", env.AdminTogglePublic)
			admin.DELETE("/message/:key", env.AdminDelete)
		}
	}

	// --- WebSocket Route ---
	// Admin event feed. Browsers cannot set headers on websocket
	// upgrades, so the credential is also accepted as ?token=.
	router.GET("/ws/admin", func(c *gin.Context) {
		token := BearerToken(c.Request)
		if token == "" {
			token = c.Query("token")
		}
		if adminSecret == "" || token != adminSecret {
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Invalid authentication credentials",
			})
			return
		}
		ws.ServeWs(hub, c.Writer, c.Request)
	})

	// --- Health / status root ---
	router.GET("/", env.Health)
}
