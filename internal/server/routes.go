package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clearcut-studio/studio-server/internal/api"
	"github.com/clearcut-studio/studio-server/internal/app"
)

func (s *Server) SetupRoutes(app *app.App) {
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Not an API, just a simple file server endpoint
	s.ginEngine.GET("/file/:filename", handlerWrapper(app, api.GetFile))

	root := s.ginEngine.Group("/api")

	root.POST("/upload", handlerWrapper(app, api.UploadFile))
	root.POST("/process", handlerWrapper(app, api.ProcessImage))
	root.POST("/place-template", handlerWrapper(app, api.PlaceTemplate))
	root.POST("/place-on-background", handlerWrapper(app, api.PlaceOnBackground))
	root.POST("/batch-process-folders", handlerWrapper(app, api.BatchProcessFolders))

	yandex := root.Group("/yandex")
	yandex.GET("/check", handlerWrapper(app, api.DiskCheck))
	yandex.GET("/get-env-token", handlerWrapper(app, api.DiskEnvToken))
	yandex.GET("/folders", handlerWrapper(app, api.DiskFolders))
	yandex.GET("/files", handlerWrapper(app, api.DiskFiles))
	yandex.GET("/structure", handlerWrapper(app, api.DiskStructure))
	yandex.GET("/account-info", handlerWrapper(app, api.DiskAccountInfo))
	yandex.GET("/download", handlerWrapper(app, api.DiskDownload))
	yandex.GET("/download-public", handlerWrapper(app, api.DiskDownloadPublic))
	yandex.GET("/public-files", handlerWrapper(app, api.DiskPublicFiles))
	yandex.POST("/upload", handlerWrapper(app, api.DiskUpload))
	yandex.POST("/create-folder", handlerWrapper(app, api.DiskCreateFolder))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
