package webapi

import (
	"net/http"
	"sync"

	"github.com/apex/log"
	"github.com/labstack/echo/v4"
	"github.com/materials-commons/mcsync/pkg/clog"
	"github.com/pkg/errors"
)

// LogController changes the level and output of the global logger at
// runtime. Outputs other than stdout and stderr are rotating log files.
type LogController struct {
	mu              sync.Mutex
	CurrentLogLevel string `json:"current_log_level"`
	CurrentLogFile  string `json:"current_log_file"`
}

func NewLogController(level, output string) *LogController {
	if level == "" {
		level = log.InfoLevel.String()
	}

	if output == "" {
		output = "stdout"
	}

	return &LogController{CurrentLogLevel: level, CurrentLogFile: output}
}

func (c *LogController) SetLogging(ctx echo.Context) error {
	var req struct {
		LogLevel  string `json:"log_level"`
		LogOutput string `json:"log_output"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	oldLevel := c.CurrentLogLevel
	if err := c.setLoggingLevel(req.LogLevel); err != nil {
		return err
	}

	if err := c.setLoggingOutput(req.LogOutput); err != nil {
		// Both or neither.
		_ = c.setLoggingLevel(oldLevel)
		return err
	}

	return ctx.JSON(http.StatusOK, c)
}

func (c *LogController) SetLogLevel(ctx echo.Context) error {
	var req struct {
		LogLevel string `json:"log_level"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setLoggingLevel(req.LogLevel); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, c)
}

func (c *LogController) setLoggingLevel(logLevel string) error {
	if err := clog.SetGlobalLoggerLevelFromString(logLevel); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.Wrapf(err, "invalid log level %s", logLevel).Error())
	}

	c.CurrentLogLevel = logLevel
	return nil
}

func (c *LogController) SetLogOutput(ctx echo.Context) error {
	var req struct {
		LogOutput string `json:"log_output"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setLoggingOutput(req.LogOutput); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, c)
}

func (c *LogController) setLoggingOutput(logOutput string) error {
	w, err := clog.OpenOutput(logOutput)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := clog.SetGlobalOutput(w); err != nil {
		return err
	}

	c.CurrentLogFile = logOutput
	return nil
}

func (c *LogController) ShowCurrentLogging(ctx echo.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ctx.JSON(http.StatusOK, c)
}
