package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/printlink/tunnel/internal/printercache"
)

type cacheBody struct {
	// Null values are dropped before the write.
	Fields map[string]*string `json:"fields"`
	TTL    string             `json:"ttl,omitempty"`
}

type cacheResponse struct {
	PrinterID int64             `json:"printerId"`
	Kind      string            `json:"kind"`
	Fields    map[string]string `json:"fields"`
}

func parseCachePath(c echo.Context) (int64, string, error) {
	printerID, err := parseID("printer", c.Param("printer"))
	if err != nil {
		return 0, "", err
	}
	kind := c.Param("kind")
	switch kind {
	case printercache.KindStatus, printercache.KindPic, printercache.KindSettings:
		return printerID, kind, nil
	}
	return 0, "", invalid("unknown snapshot kind %q", kind)
}

// getPrinterCache handles GET /api/v1/printers/:printer/cache/:kind.
func (s *Server) getPrinterCache(c echo.Context) error {
	printerID, kind, err := parseCachePath(c)
	if err != nil {
		return s.handleError(c, err)
	}
	fields, err := s.cache.Get(c.Request().Context(), printerID, kind)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, cacheResponse{PrinterID: printerID, Kind: kind, Fields: fields})
}

// getPrinterCacheField handles GET /api/v1/printers/:printer/cache/:kind/:field.
func (s *Server) getPrinterCacheField(c echo.Context) error {
	printerID, kind, err := parseCachePath(c)
	if err != nil {
		return s.handleError(c, err)
	}
	field := c.Param("field")
	val, ok, err := s.cache.GetField(c.Request().Context(), printerID, kind, field)
	if err != nil {
		return s.handleError(c, err)
	}
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{
			Error:   "not_found",
			Message: "field " + field + " is not set",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{field: val})
}

// setPrinterCache handles PUT /api/v1/printers/:printer/cache/:kind.
func (s *Server) setPrinterCache(c echo.Context) error {
	printerID, kind, err := parseCachePath(c)
	if err != nil {
		return s.handleError(c, err)
	}
	var body cacheBody
	if err := c.Bind(&body); err != nil {
		return s.handleError(c, invalid("request body: %v", err))
	}
	var ttl time.Duration
	if body.TTL != "" {
		if ttl, err = time.ParseDuration(body.TTL); err != nil || ttl < 0 {
			return s.handleError(c, invalid("ttl must be a non-negative duration, got %q", body.TTL))
		}
	}

	ctx := c.Request().Context()
	if err := s.cache.Set(ctx, printerID, kind, body.Fields, ttl); err != nil {
		return s.handleError(c, err)
	}
	fields, err := s.cache.Get(ctx, printerID, kind)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, cacheResponse{PrinterID: printerID, Kind: kind, Fields: fields})
}

// deletePrinterCache handles DELETE /api/v1/printers/:printer/cache/:kind.
func (s *Server) deletePrinterCache(c echo.Context) error {
	printerID, kind, err := parseCachePath(c)
	if err != nil {
		return s.handleError(c, err)
	}
	if err := s.cache.Delete(c.Request().Context(), printerID, kind); err != nil {
		return s.handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
