package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/postbox/internal/store"
	"github.com/sujalbistaa/postbox/internal/ws"
)

// --- Configuration Constants ---
const (
	minMessageLength = 10
	maxMessageLength = 500
	rateLimitRPS     = 1.0 / 3.0 // 1 message every 3 seconds per IP
	rateLimitBurst   = 3
)

// --- Structs for request binding ---
type SendMessageInput struct {
	Message string `json:"message" binding:"required"`
	Public  bool   `json:"public"`
}
type CheckReplyInput struct {
	Key string `json:"key" binding:"required"`
}
type ReplyInput struct {
	Reply string `json:"reply" binding:"required"`
}

// WsMessage is the envelope broadcast on the admin event feed.
type WsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// --- Rate Limiter ---
type IPRateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.RWMutex
	rps      rate.Limit
	burst    int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*rate.Limiter),
		mu:       sync.RWMutex{},
		rps:      r,
		burst:    b,
	}
}

func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, exists := rl.visitors[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[ip] = limiter
	}
	return limiter
}

func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "Too many requests. Please wait.",
			})
			return
		}
		c.Next()
	}
}

// ValidKeyFormat reports whether a presented key looks like a retrieval
// key: exactly 16 characters, all letters, digits or hyphens, with at
// least one character that is not a hyphen. Checked before any storage
// access.
func ValidKeyFormat(key string) bool {
	if len(key) != store.KeyLength {
		return false
	}
	alnum := 0
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			alnum++
		case r == '-':
		default:
			return false
		}
	}
	return alnum > 0
}

// --- Handlers ---
type Env struct {
	Store *store.Store
	Hub   *ws.Hub
}

// Health is the root endpoint: liveness plus live stats and an
// endpoint index.
func (e *Env) Health(c *gin.Context) {
	stats, err := e.Store.GetStats()
	if err != nil {
		log.Printf("Error fetching stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to fetch stats",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "running",
		"message": "Anonymous Contact API is running",
		"stats":   stats,
		"endpoints": gin.H{
			"send_message":    "/api/contact/send-message",
			"check_reply":     "/api/contact/check-reply",
			"public_messages": "/api/contact/public-messages",
			"admin_messages":  "/api/contact/admin/messages (requires auth)",
			"admin_reply":     "/api/contact/admin/reply/{key} (requires auth)",
			"admin_stats":     "/api/contact/admin/stats (requires auth)",
		},
	})
}

func (e *Env) SendMessage(c *gin.Context) {
	var input SendMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid input: " + err.Error(),
		})
		return
	}

	body := strings.TrimSpace(input.Message)
	if n := utf8.RuneCountInString(body); n < minMessageLength || n > maxMessageLength {
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "Message must be between 10 and 500 characters.",
		})
		return
	}

	key, err := e.Store.StoreMessage(body, input.Public)
	if err != nil {
		log.Printf("Error storing message: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "An unexpected error occurred while sending your message.",
		})
		return
	}

	e.broadcast(WsMessage{Type: "new_message", Data: gin.H{
		"key":    key,
		"public": input.Public,
	}})

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Message sent successfully! Save your key to check for replies.",
		"key":     key,
	})
}

func (e *Env) CheckReply(c *gin.Context) {
	var input CheckReplyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid input: " + err.Error(),
		})
		return
	}

	if !ValidKeyFormat(input.Key) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "Invalid key format.",
		})
		return
	}

	if _, err := e.Store.GetMessage(input.Key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "error",
				"message": "Invalid key. No message found with this key.",
			})
			return
		}
		log.Printf("Error fetching message: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "An unexpected error occurred while checking for replies.",
		})
		return
	}

	reply, err := e.Store.GetReply(input.Key)
	if err != nil {
		log.Printf("Error fetching reply: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "An unexpected error occurred while checking for replies.",
		})
		return
	}
	if reply == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "No reply yet. Please check back later.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"reply":  reply.Body,
	})
}

// publicFeedEntry deliberately omits the retrieval key: the feed is
// anonymous in both directions.
type publicFeedEntry struct {
	Message   string    `json:"message"`
	Replied   bool      `json:"replied"`
	Reply     string    `json:"reply,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e *Env) PublicMessages(c *gin.Context) {
	msgs, err := e.Store.ListPublicMessages()
	if err != nil {
		log.Printf("Error fetching public messages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to fetch public messages",
		})
		return
	}
	feed := make([]publicFeedEntry, 0, len(msgs))
	for _, m := range msgs {
		entry := publicFeedEntry{
			Message:   m.Body,
			Replied:   m.Replied,
			CreatedAt: m.CreatedAt,
		}
		if m.Reply != nil {
			entry.Reply = m.Reply.Body
		}
		feed = append(feed, entry)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"messages": feed,
	})
}

func (e *Env) AdminMessages(c *gin.Context) {
	msgs, err := e.Store.ListAllMessages()
	if err != nil {
		log.Printf("Error listing messages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to list messages",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (e *Env) AdminReply(c *gin.Context) {
	key := c.Param("key")
	var input ReplyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid input: " + err.Error(),
		})
		return
	}

	if err := e.Store.StoreReply(key, input.Reply); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "error",
				"message": "Message key not found",
			})
			return
		}
		log.Printf("Error storing reply: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to store reply",
		})
		return
	}

	e.broadcast(WsMessage{Type: "reply", Data: gin.H{"key": key}})

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Reply stored successfully",
	})
}

func (e *Env) AdminStats(c *gin.Context) {
	stats, err := e.Store.GetStats()
	if err != nil {
		log.Printf("Error fetching stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to fetch stats",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (e *Env) AdminTogglePublic(c *gin.Context) {
	key := c.Param("key")
	public, err := e.Store.TogglePublic(key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "error",
				"message": "Message key not found",
			})
			return
		}
		log.Printf("Error toggling visibility: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to toggle visibility",
		})
		return
	}

	e.broadcast(WsMessage{Type: "visibility", Data: gin.H{"key": key, "public": public}})

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"public": public,
	})
}

func (e *Env) AdminDelete(c *gin.Context) {
	key := c.Param("key")
	if err := e.Store.DeleteMessage(key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "error",
				"message": "Message key not found",
			})
			return
		}
		log.Printf("Error deleting message: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to delete message",
		})
		return
	}

	e.broadcast(WsMessage{Type: "delete", Data: gin.H{"key": key}})

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Message deleted",
	})
}

func (e *Env) broadcast(msg WsMessage) {
	if e.Hub == nil {
		return
	}
	jsonMsg, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshalling WS message: %v", err)
		return
	}
	e.Hub.Broadcast <- jsonMsg
}
