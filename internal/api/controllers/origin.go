package controllers

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v5"
)

// OriginController serves one file as the resource a downloader fetches.
type OriginController struct {
	Path string
}

// Serve answers GET / with the whole file or the requested byte range.
// Content-Length and Range handling come from net/http.
func (ctrl *OriginController) Serve(c *echo.Context) error {
	if ctrl.Path == "" {
		return c.String(http.StatusNotFound, "No origin file configured")
	}

	f, err := os.Open(ctrl.Path)
	if err != nil {
		return c.String(http.StatusNotFound, "Origin file unavailable")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/octet-stream")
	http.ServeContent(c.Response(), c.Request(), info.Name(), info.ModTime(), f)
	return nil
}
