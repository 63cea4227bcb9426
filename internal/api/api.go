// Package api holds the gin handlers for the studio proxy: model dispatch,
// template compositing, batch streaming and the cloud-storage passthrough.
package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/clearcut-studio/studio-server/internal/app"
)

// EnvDiskToken is the server-side storage token consulted when a request
// carries none of its own.
const EnvDiskToken = "STUDIO_DISK_TOKEN"

func appFrom(c *gin.Context) *app.App {
	return c.MustGet("app").(*app.App)
}

// requestToken resolves the storage token for one request: explicit query
// or form value first, then the configured server-side default, then the
// environment.
func requestToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	if token := c.PostForm("token"); token != "" {
		return token
	}

	a := appFrom(c)
	if cfg := a.Config(); cfg != nil && cfg.Disk.Token != "" {
		return cfg.Disk.Token
	}

	return os.Getenv(EnvDiskToken)
}

func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	content, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer content.Close()

	return io.ReadAll(content)
}

// detail mirrors the error body shape clients parse.
func detail(c *gin.Context, status int, format string, args ...any) {
	c.JSON(status, gin.H{"detail": fmt.Sprintf(format, args...)})
}

func badRequest(c *gin.Context, format string, args ...any) {
	detail(c, http.StatusBadRequest, format, args...)
}
