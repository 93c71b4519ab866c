// Package handlers contains the HTTP endpoints the bridge exposes.
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// PingHandler answers liveness probes.
type PingHandler struct{}

// NewPingHandler creates the probe handler.
func NewPingHandler() *PingHandler {
	return &PingHandler{}
}

// Register mounts the probe routes.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.handle)
	e.GET("/health", h.handle)
}

func (h *PingHandler) handle(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
