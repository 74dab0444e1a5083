package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/segmentio/ksuid"

	"github.com/kvantos/patchbay/internal/app"
	"github.com/kvantos/patchbay/internal/domain"
	"github.com/kvantos/patchbay/internal/updater"
)

type PatcherController struct {
	App *app.Context
}

// Health answers the shell's liveness probe.
func (ctrl *PatcherController) Health(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: "patcher-backend",
	})
}

// GetConfig returns the current configuration in its wire shape. A daemon
// that has never been configured answers with defaults rather than an
// error, so a fresh install can render the settings form.
func (ctrl *PatcherController) GetConfig(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.WireConfig())
}

// SaveConfig persists a wire-shaped configuration to config.yaml.
func (ctrl *PatcherController) SaveConfig(c *echo.Context) error {
	var cfg domain.AppConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	if err := ctrl.App.SaveWireConfig(cfg); err != nil {
		ctrl.App.Logger.Error().Err(err).Msg("failed to save config")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	ctrl.App.Logger.Info().Msg("configuration saved")
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// StartUpdate persists the submitted configuration, resets the progress
// tracker and launches one update run in the background. The response
// confirms only that the run was accepted; progress is read from /status.
func (ctrl *PatcherController) StartUpdate(c *echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	if err := ctrl.App.SaveWireConfig(req.Config); err != nil {
		ctrl.App.Logger.Error().Err(err).Msg("failed to save config before update")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	ctrl.App.Tracker.Reset()

	runID := ksuid.New().String()
	if ctrl.App.Store != nil {
		if err := ctrl.App.Store.BeginRun(runID, time.Now()); err != nil {
			ctrl.App.Logger.Warn().Err(err).Msg("failed to record run start")
		}
	}

	go ctrl.runUpdate(runID)

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Update process started",
	})
}

func (ctrl *PatcherController) runUpdate(runID string) {
	engine := updater.New(ctrl.App.PatchConfig(), ctrl.App.Tracker, ctrl.App.HTTP)
	report, err := engine.Run(context.Background())

	var errMsg string
	if err != nil {
		errMsg = err.Error()
		ctrl.App.Logger.Error().Err(err).Str("run", runID).Msg("update run failed")
		ctrl.App.Tracker.Fail(errMsg)
	} else {
		ctrl.App.Tracker.Complete(&report)
	}

	if ctrl.App.Store != nil {
		if err := ctrl.App.Store.FinishRun(runID, &report, errMsg); err != nil {
			ctrl.App.Logger.Warn().Err(err).Str("run", runID).Msg("failed to record run result")
		}
	}
}

// Status returns the current progress snapshot. Before any run has
// started this is the zero snapshot, never an error.
func (ctrl *PatcherController) Status(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Tracker.Snapshot())
}

// History lists recent update runs, newest first.
func (ctrl *PatcherController) History(c *echo.Context) error {
	if ctrl.App.Store == nil {
		return c.JSON(http.StatusOK, HistoryResponse{Runs: nil})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	runs, err := ctrl.App.Store.ListRuns(limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, HistoryResponse{Runs: runs})
}
