// Package health exposes the liveness and readiness probes for the server.
//
// /healthz reports liveness and always answers 200 while the process can
// serve HTTP. /readyz runs every registered dependency probe concurrently
// and answers 200 only when all of them pass, 503 otherwise. Both respond
// with a JSON body carrying an overall status and per-probe detail.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// probeTimeout bounds how long the readiness probes may run.
const probeTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil while the dependency is
// usable and must respect context cancellation.
type Checker struct {
	// Name labels the probe in the JSON response ("database", "live").
	Name string

	Check func(ctx context.Context) error
}

// probeDetail is the per-checker entry in the readiness response.
type probeDetail struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// probeResponse is the JSON body for both probes.
type probeResponse struct {
	Status string                 `json:"status"`
	Checks map[string]probeDetail `json:"checks,omitempty"`
}

// Handler evaluates a fixed set of checkers. Safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a Handler over the given checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts /healthz and /readyz on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.live)
	e.GET("/readyz", h.ready)
}

func (h *Handler) live(c echo.Context) error {
	return c.JSON(http.StatusOK, probeResponse{Status: "ok"})
}

// ready runs all checkers concurrently under one shared deadline.
func (h *Handler) ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		details = make(map[string]probeDetail, len(h.checkers))
		healthy = true
	)

	for _, chk := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := chk.Check(ctx)
			d := probeDetail{
				Status:  "ok",
				Latency: time.Since(start).Round(time.Microsecond).String(),
			}
			if err != nil {
				d.Status = "fail"
				d.Error = err.Error()
			}
			mu.Lock()
			details[chk.Name] = d
			if err != nil {
				healthy = false
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	resp := probeResponse{Status: "ok", Checks: details}
	code := http.StatusOK
	if !healthy {
		resp.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
