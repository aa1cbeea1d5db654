package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	LoginPath  = "/login"
	sessionKey = "session"
)

// RequestLogger tags every request with a request ID and logs its outcome.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		entry := log.FromContext(c.Request.Context()).WithField("request_id", requestID)
		c.Request = c.Request.WithContext(log.ToContext(c.Request.Context(), entry))

		c.Next()

		log.FromContext(c.Request.Context()).
			WithField("method", c.Request.Method).
			WithField("path", c.FullPath()).
			WithField("status", c.Writer.Status()).
			Info("request handled")
	}
}

// RequireSession loads the bearer session. Unknown or expired tokens get a 401
// that points the client at the login page.
func RequireSession(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			unauthorized(c, "sign in to see your trips")
			return
		}

		sess, err := store.Load(c.Request.Context(), token)
		if errors.Is(err, session.ErrNotFound) {
			unauthorized(c, "your session has expired")
			return
		}
		if err != nil {
			log.FromContext(c.Request.Context()).WithError(err).Error("session store unavailable")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: "please try again", Retryable: true})
			return
		}

		ctx := session.ToContext(c.Request.Context(), sess)
		ctx = log.ToContext(ctx, log.FromContext(ctx).WithField("user_id", sess.UserID))
		c.Request = c.Request.WithContext(ctx)
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(*session.Session); ok {
			return sess
		}
	}
	return session.FromContext(c.Request.Context())
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("Location", LoginPath)
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: msg, Redirect: LoginPath})
}

type SessionHandler struct {
	store  session.Store
	boards Boards
}

func NewSessionHandler(store session.Store, boards Boards) *SessionHandler {
	return &SessionHandler{store: store, boards: boards}
}

func (h *SessionHandler) Register(router *gin.RouterGroup) {
	router.DELETE("", h.clear)
}

// clear signs the traveler out and tears down their board.
func (h *SessionHandler) clear(c *gin.Context) {
	sess := currentSession(c)
	h.boards.Drop(sess.Token)
	if err := h.store.Clear(c.Request.Context(), sess.Token); err != nil {
		log.FromContext(c.Request.Context()).WithError(err).Warn("could not clear session")
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "please try again", Retryable: true})
		return
	}
	c.Header("Location", LoginPath)
	c.Status(http.StatusNoContent)
}
