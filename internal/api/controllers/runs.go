package controllers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/rangefetch/internal/app"
	"github.com/datallboy/rangefetch/internal/domain"
	"github.com/datallboy/rangefetch/internal/engine"
)

const defaultListLimit = 20

type RunsController struct {
	App *app.Context
}

// List returns the live queue and the most recent history.
func (ctrl *RunsController) List(c *echo.Context) error {
	limit := defaultListLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		}
		limit = n
	}

	resp := RunListResponse{
		Pending: make([]*domain.Run, 0),
		History: make([]*domain.Run, 0),
	}

	if q := ctrl.App.Queue; q != nil {
		resp.Active = q.Active()
		resp.Pending = append(resp.Pending, q.Pending()...)
	}

	if ctrl.App.Store != nil {
		runs, err := ctrl.App.Store.ListRuns(limit)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		resp.History = append(resp.History, runs...)
	}

	return c.JSON(http.StatusOK, resp)
}

func (ctrl *RunsController) Get(c *echo.Context) error {
	id := c.Param("id")

	if q := ctrl.App.Queue; q != nil {
		if run, ok := q.Get(id); ok {
			return c.JSON(http.StatusOK, run)
		}
	} else if ctrl.App.Store != nil {
		run, err := ctrl.App.Store.GetRun(id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		if run != nil {
			return c.JSON(http.StatusOK, run)
		}
	}

	return c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found"})
}

// Submit queues a download. The endpoint defaults to the configured one.
func (ctrl *RunsController) Submit(c *echo.Context) error {
	if ctrl.App.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "download queue disabled"})
	}

	var req SubmitRequest
	if c.Request().ContentLength != 0 {
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		}
	}

	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = ctrl.App.Config.Endpoint
	}
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "endpoint must be host:port"})
	}

	run, err := ctrl.App.Queue.Submit(endpoint)
	if err != nil {
		if errors.Is(err, engine.ErrQueueFull) {
			return c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusAccepted, run)
}

func (ctrl *RunsController) Cancel(c *echo.Context) error {
	if ctrl.App.Queue == nil || !ctrl.App.Queue.Cancel(c.Param("id")) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not queued or running"})
	}
	return c.NoContent(http.StatusNoContent)
}
