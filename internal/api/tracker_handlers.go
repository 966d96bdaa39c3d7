package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/printlink/tunnel/internal/tracker"
)

type countResponse struct {
	PrintID int64 `json:"printId"`
	Count   int64 `json:"count"`
}

type progressBody struct {
	Percent *int `json:"percent"`
}

type progressResponse struct {
	PrintID int64 `json:"printId"`
	Percent int   `json:"percent"`
}

type highPredictionBody struct {
	Confidence *float64 `json:"confidence"`
	// Timestamp defaults to the current time in RFC 3339.
	Timestamp string `json:"timestamp"`
}

type highPredictionsResponse struct {
	PrintID     int64                `json:"printId"`
	Predictions []tracker.Prediction `json:"predictions"`
}

// trackerError counts a failed tracker operation before mapping it.
func (s *Server) trackerError(c echo.Context, op string, err error) error {
	s.metrics.RecordTrackerFailure(op)
	return s.handleError(c, err)
}

// getPredictionCount handles GET /api/v1/prints/:id/predictions.
func (s *Server) getPredictionCount(c echo.Context) error {
	printID, err := parseID("print id", c.Param("id"))
	if err != nil {
		return s.handleError(c, err)
	}
	n, err := s.tracker.GetPredictionCount(c.Request().Context(), printID)
	if err != nil {
		return s.trackerError(c, "get_prediction_count", err)
	}
	return c.JSON(http.StatusOK, countResponse{PrintID: printID, Count: n})
}

// incrementPredictionCount handles POST /api/v1/prints/:id/predictions.
func (s *Server) incrementPredictionCount(c echo.Context) error {
	printID, err := parseID("print id", c.Param("id"))
	if err != nil {
		return s.handleError(c, err)
	}
	ctx := c.Request().Context()
	if err := s.tracker.IncrementPredictionCount(ctx, printID); err != nil {
		return s.trackerError(c, "increment_prediction_count", err)
	}
	n, err := s.tracker.GetPredictionCount(ctx, printID)
	if err != nil {
		return s.trackerError(c, "get_prediction_count", err)
	}
	return c.JSON(http.StatusOK, countResponse{PrintID: printID, Count: n})
}

// deletePredictionCount handles DELETE /api/v1/prints/:id/predictions.
func (s *Server) deletePredictionCount(c echo.Context) error {
	printID, err := parseID("print id", c.Param("id"))
	if err != nil {
		return s.handleError(c, err)
	}
	if err := s.tracker.DeletePredictionCount(c.Request().Context(), printID); err != nil {
		return s.trackerError(c, "delete_prediction_count", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// getHighPredictions handles GET /api/v1/prints/:id/predictions/high.
func (s *Server) getHighPredictions(c echo.Context) error {
	printID, err := parseID("print id", c.Param("id"))
	if err != nil {
		return s.handleError(c, err)
	}
	preds, err := s.tracker.HighestPredictions(c.Request().Context(), printID)
	if err != nil {
		return s.trackerError(c, "highest_predictions", err)
	}
	return c.JSON(http.StatusOK, highPredictionsResponse{PrintID: printID, Predictions: preds})
}

// addHighPrediction handles POST /api/v1/prints/:id/predictions/high.
func (s *Server) addHighPrediction(c echo.Context) error {
	printID, err := parseID("print id", c.Param("id"))
	if err != nil {
		return s.handleError(c, err)
	}
	var body highPredictionBody
	if err := c.Bind(&body); err != nil {
		return s.handleError(c, invalid("request body: %v", err))
	}
	if body.Confidence == nil {
		return s.handleError(c, invalid("confidence is required"))
	}
	if body.Timestamp == "" {
		body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := s.tracker.AddHighPrediction(c.Request().Context(), printID, *body.Confidence, body.Timestamp); err != nil {
		return s.trackerError(c, "add_high_prediction", err)
	}
	return c.JSON(http.StatusCreated, tracker.Prediction{Timestamp: body.Timestamp, Confidence: *body.Confidence})
}

// getProgress handles GET /api/v1/prints/:id/progress.
func (s *Server) getProgress(c echo.Context) error {
	printID, err := parseID("print id", c.Param("id"))
	if err != nil {
		return s.handleError(c, err)
	}
	pct, err := s.tracker.GetProgress(c.Request().Context(), printID)
	if err != nil {
		return s.trackerError(c, "get_progress", err)
	}
	return c.JSON(http.StatusOK, progressResponse{PrintID: printID, Percent: pct})
}

// setProgress handles PUT /api/v1/prints/:id/progress.
func (s *Server) setProgress(c echo.Context) error {
	printID, err := parseID("print id", c.Param("id"))
	if err != nil {
		return s.handleError(c, err)
	}
	var body progressBody
	if err := c.Bind(&body); err != nil {
		return s.handleError(c, invalid("request body: %v", err))
	}
	if body.Percent == nil {
		return s.handleError(c, invalid("percent is required"))
	}
	if *body.Percent < 0 || *body.Percent > 100 {
		return s.handleError(c, invalid("percent must be within 0-100, got %d", *body.Percent))
	}

	if err := s.tracker.SetProgress(c.Request().Context(), printID, *body.Percent); err != nil {
		return s.trackerError(c, "set_progress", err)
	}
	return c.JSON(http.StatusOK, progressResponse{PrintID: printID, Percent: *body.Percent})
}
