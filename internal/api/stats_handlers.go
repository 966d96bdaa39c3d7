package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/printlink/tunnel/internal/stats"
)

type statsResponse struct {
	Month  string       `json:"month"`
	Key    string       `json:"key"`
	Fields stats.Bucket `json:"fields"`
}

// getStats handles GET /api/v1/stats/:month. Optional user and printer
// query parameters narrow the bucket to one scope.
func (s *Server) getStats(c echo.Context) error {
	month, err := stats.ParseMonth(c.Param("month"))
	if err != nil {
		return s.handleError(c, invalid("%v", err))
	}

	bucket, err := s.stats.Get(c.Request().Context(), month)
	if err != nil {
		return s.handleError(c, err)
	}

	bucket, err = scopeBucket(bucket, c.QueryParam("user"), c.QueryParam("printer"))
	if err != nil {
		return s.handleError(c, err)
	}

	return c.JSON(http.StatusOK, statsResponse{
		Month:  stats.MonthOf(month),
		Key:    s.stats.Key(month),
		Fields: bucket,
	})
}

// getStatsRange handles GET /api/v1/stats?from=YYYYMM&to=YYYYMM. to
// defaults to the current month.
func (s *Server) getStatsRange(c echo.Context) error {
	from, err := stats.ParseMonth(c.QueryParam("from"))
	if err != nil {
		return s.handleError(c, invalid("from: %v", err))
	}
	to := time.Now()
	if raw := c.QueryParam("to"); raw != "" {
		if to, err = stats.ParseMonth(raw); err != nil {
			return s.handleError(c, invalid("to: %v", err))
		}
	}
	if to.Before(from) {
		return s.handleError(c, invalid("to %s is before from %s", stats.MonthOf(to), stats.MonthOf(from)))
	}
	if to.Sub(from) > 5*366*24*time.Hour {
		return s.handleError(c, invalid("range is limited to five years"))
	}

	months, err := s.stats.Months(c.Request().Context(), from, to)
	if err != nil {
		return s.handleError(c, err)
	}

	for m, bucket := range months {
		scoped, err := scopeBucket(bucket, c.QueryParam("user"), c.QueryParam("printer"))
		if err != nil {
			return s.handleError(c, err)
		}
		months[m] = scoped
	}
	return c.JSON(http.StatusOK, months)
}

func scopeBucket(bucket stats.Bucket, user, printer string) (stats.Bucket, error) {
	if user == "" {
		if printer != "" {
			return nil, invalid("printer requires user")
		}
		return bucket, nil
	}
	userID, err := parseID("user", user)
	if err != nil {
		return nil, err
	}
	if printer == "" {
		return bucket.User(userID), nil
	}
	printerID, err := parseID("printer", printer)
	if err != nil {
		return nil, err
	}
	return bucket.Printer(userID, printerID), nil
}
