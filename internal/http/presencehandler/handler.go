package presencehandler

import (
	"net/http"

	"chatrelay/internal/relay"

	"github.com/gin-gonic/gin"
)

// StatusText is what GET / answers with.
const StatusText = "Server status : Running"

type Handler struct {
	relay *relay.Relay
}

func New(rl *relay.Relay) *Handler { return &Handler{relay: rl} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/", h.status)
	r.GET("/health", h.health)
	r.GET("/users", h.users)
	r.GET("/users/:id", h.user)
	r.GET("/rooms", h.rooms)
}

func (h *Handler) status(c *gin.Context) {
	c.String(http.StatusOK, StatusText)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Connections: h.relay.Hub().Len(),
		Users:       h.relay.Users().Len(),
		Rooms:       h.relay.Rooms().Len(),
	})
}

// users returns the same snapshot update_user_list carries.
func (h *Handler) users(c *gin.Context) {
	c.JSON(http.StatusOK, UsersResponse{Users: h.relay.Users().Snapshot()})
}

func (h *Handler) user(c *gin.Context) {
	rec, ok := h.relay.Users().Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not connected"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.relay.Rooms().List())
}
