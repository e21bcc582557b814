package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const checkTimeout = 2 * time.Second

// Check reports whether one dependency is usable
type Check func(ctx context.Context) error

type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves liveness and readiness probes. Readiness runs every check
// in parallel under one deadline and lists only the failures.
type Handler struct {
	checks map[string]Check
}

func NewHandler(checks map[string]Check) *Handler {
	return &Handler{checks: checks}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health/live", h.live)
	r.GET("/health/ready", h.ready)
}

func (h *Handler) live(c *gin.Context) {
	c.JSON(http.StatusOK, status{Status: "UP"})
}

func (h *Handler) ready(c *gin.Context) {
	failures := h.run(c.Request.Context())
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, status{Status: "DOWN", Checks: failures})
		return
	}
	c.JSON(http.StatusOK, status{Status: "UP"})
}

func (h *Handler) run(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures = map[string]string{}
	)
	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			if err := check(ctx); err != nil {
				mu.Lock()
				failures[name] = err.Error()
				mu.Unlock()
			}
		}(name, check)
	}
	wg.Wait()
	return failures
}
