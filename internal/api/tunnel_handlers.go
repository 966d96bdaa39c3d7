package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/printlink/tunnel/pkg/tunnel"
)

// RefHeader carries the reference of a tunneled exchange on the response.
const RefHeader = "X-Tunnel-Ref"

// tunnelRequest handles POST /api/v1/users/:user/printers/:printer/requests.
// The agent's envelope is written back as the HTTP response.
func (s *Server) tunnelRequest(c echo.Context) error {
	target, err := parseTarget(c, c.Param("user"), c.Param("printer"))
	if err != nil {
		return s.handleError(c, err)
	}

	var req tunnel.Request
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, invalid("request body: %v", err))
	}
	if req.Method == "" || req.Path == "" {
		return s.handleError(c, invalid("method and path are required"))
	}

	env, ok, err := s.gateway.Do(c.Request().Context(), target, &req)
	if err != nil {
		return s.handleError(c, err)
	}
	if !ok {
		return c.JSON(http.StatusGatewayTimeout, errorResponse{
			Error:   "no_response",
			Message: "The printer did not respond in time",
		})
	}
	if env.Status < 100 || env.Status > 999 {
		return s.handleError(c, errors.Join(tunnel.ErrDecode, errors.New("envelope has no valid status")))
	}

	header := c.Response().Header()
	for k, values := range env.Headers {
		if k == echo.HeaderContentLength {
			continue
		}
		for _, v := range values {
			header.Add(k, v)
		}
	}
	header.Set(RefHeader, env.Ref.String())

	contentType := header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(env.Status, contentType, env.Body)
}

// pushResponse handles POST /api/v1/tunnel/responses/:ref. The body is an
// encoded envelope; the target query parameters attribute its size in the
// traffic stats.
func (s *Server) pushResponse(c echo.Context) error {
	ref := tunnel.Reference(c.Param("ref"))
	if err := ref.Validate(); err != nil {
		return s.handleError(c, err)
	}
	target, err := parseTarget(c, c.QueryParam("user"), c.QueryParam("printer"))
	if err != nil {
		return s.handleError(c, err)
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return s.handleError(c, invalid("read body: %v", err))
	}

	if err := s.responder.RespondRaw(c.Request().Context(), target, ref, data); err != nil {
		// A malformed envelope from the producer is the caller's fault here.
		if errors.Is(err, tunnel.ErrDecode) {
			return s.handleError(c, invalid("%v", err))
		}
		return s.handleError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"ref":   ref,
		"bytes": len(data),
	})
}
