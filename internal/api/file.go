package api

import (
	"net/http"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/clearcut-studio/studio-server/internal/config"
	"github.com/clearcut-studio/studio-server/internal/filestorage"
)

// UploadFile stores an artifact through the async uploader and returns
// its serving URL.
func UploadFile(c *gin.Context) {
	a := appFrom(c)

	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}

	content, err := readFormFile(file)
	if err != nil {
		badRequest(c, "failed to read file: %v", err)
		return
	}

	url := make(chan string, 1)
	a.Uploader().UploadBytes(content, filepath.Ext(file.Filename), url)

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data":   gin.H{"url": <-url},
	})
}

// GetFile serves processed artifacts from the configured artifact store.
func GetFile(c *gin.Context) {
	filename := c.Param("filename")
	a := appFrom(c)

	storage, err := filestorage.NewFileStorage(a.Config())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	if a.Config().Filesystem == config.FilesystemS3 {
		file, err := storage.GetFile(filename)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "file not found"})
			return
		}

		c.Data(http.StatusOK, mimetype.Detect(file.Content).String(), file.Content)
		return
	}

	file, err := storage.ResolveFile(filename, "", false)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "file not found"})
		return
	}

	c.File(file)
}
