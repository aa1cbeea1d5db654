package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Domenick1991/tripboard/internal/domain"
	"github.com/Domenick1991/tripboard/internal/log"
	"github.com/Domenick1991/tripboard/internal/service/trips"
	"github.com/gin-gonic/gin"
)

// TripBoard is the per-session pipeline the handlers drive.
type TripBoard interface {
	Load(ctx context.Context) (trips.View, error)
	Refresh(ctx context.Context) (trips.View, error)
	Cancel(ctx context.Context, bookingID, reason string) (trips.View, error)
	View() trips.View
	Watch(buffer int) (<-chan domain.Notification, func())
}

type Boards interface {
	Board(token, userID string) TripBoard
	Drop(token string)
}

// ManagerBoards exposes a trips.Manager as Boards.
type ManagerBoards struct {
	Manager *trips.Manager
}

func (m ManagerBoards) Board(token, userID string) TripBoard { return m.Manager.Get(token, userID) }

func (m ManagerBoards) Drop(token string) { m.Manager.Drop(token) }

type TripsHandler struct {
	boards Boards
}

type cancelRequest struct {
	Reason  string `json:"reason" binding:"max=500"`
	Confirm bool   `json:"confirm"`
}

type errorResponse struct {
	Error     string      `json:"error"`
	Retryable bool        `json:"retryable,omitempty"`
	Redirect  string      `json:"redirect,omitempty"`
	View      *trips.View `json:"view,omitempty"`
}

func NewTripsHandler(boards Boards) *TripsHandler {
	return &TripsHandler{boards: boards}
}

func (h *TripsHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.view)
	router.POST("/refresh", h.refresh)
	router.POST("/:id/cancel", h.cancel)
	router.GET("/live", h.live)
}

func (h *TripsHandler) board(c *gin.Context) TripBoard {
	sess := currentSession(c)
	return h.boards.Board(sess.Token, sess.UserID)
}

// view returns the current board, running the pipeline on first load. Only the
// first load may use a cached booking list; POST /refresh always reads the store.
func (h *TripsHandler) view(c *gin.Context) {
	board := h.board(c)
	view := board.View()
	if view.RefreshedAt.IsZero() {
		var err error
		view, err = board.Load(c.Request.Context())
		if err != nil {
			respondStoreError(c, err, &view)
			return
		}
	}
	c.JSON(http.StatusOK, view)
}

func (h *TripsHandler) refresh(c *gin.Context) {
	view, err := h.board(c).Refresh(c.Request.Context())
	if err != nil {
		respondStoreError(c, err, &view)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *TripsHandler) cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if !req.Confirm {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "cancellation must be confirmed"})
		return
	}

	view, err := h.board(c).Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondStoreError(c, err, &view)
		return
	}
	c.JSON(http.StatusOK, view)
}

// live streams every notification appended to the board as server-sent events.
func (h *TripsHandler) live(c *gin.Context) {
	ch, stop := h.board(c).Watch(32)
	defer stop()

	ctx := c.Request.Context()
	logger := log.FromContext(ctx)
	logger.Debug("live stream attached")

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case rec, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("notification", rec)
			return true
		}
	})
	logger.Debug("live stream detached")
}

func respondStoreError(c *gin.Context, err error, view *trips.View) {
	status := http.StatusServiceUnavailable
	resp := errorResponse{Error: err.Error(), View: view}

	var se *domain.StoreError
	if errors.As(err, &se) && se.Message != "" {
		resp.Error = se.Message
	}

	switch {
	case domain.IsUnauthorized(err):
		unauthorized(c, resp.Error)
		return
	case domain.IsConflict(err):
		status = http.StatusConflict
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsRejected(err):
		status = http.StatusUnprocessableEntity
	default:
		resp.Retryable = true
	}
	if view != nil && view.RefreshedAt.IsZero() {
		resp.View = nil
	}

	log.FromContext(c.Request.Context()).WithError(err).WithField("status", status).Warn("trip board request failed")
	c.JSON(status, resp)
}
