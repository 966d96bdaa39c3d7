package api

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/printlink/tunnel/pkg/tunnel"
)

var errInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidInput, fmt.Sprintf(format, args...))
}

// parseID reads a positive integer from a path or query value.
func parseID(name, raw string) (int64, error) {
	if raw == "" {
		return 0, invalid("%s is required", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

// parseTarget builds a target from the user and printer values and the
// transport query parameter, defaulting the transport to ws.
func parseTarget(c echo.Context, user, printer string) (tunnel.Target, error) {
	userID, err := parseID("user", user)
	if err != nil {
		return tunnel.Target{}, err
	}
	printerID, err := parseID("printer", printer)
	if err != nil {
		return tunnel.Target{}, err
	}
	transport := tunnel.Transport(c.QueryParam("transport"))
	if transport == "" {
		transport = tunnel.TransportWebSocket
	}
	target := tunnel.Target{UserID: userID, PrinterID: printerID, Transport: transport}
	if err := target.Validate(); err != nil {
		return tunnel.Target{}, invalid("%v", err)
	}
	return target, nil
}
