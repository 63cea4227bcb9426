// Package uploader persists artifacts off the request path through a
// bounded worker pool.
package uploader

import (
	"github.com/gammazero/workerpool"
	"go.uber.org/zap"

	"github.com/clearcut-studio/studio-server/internal/filestorage"
	"github.com/clearcut-studio/studio-server/internal/utils/hashutil"
	"github.com/clearcut-studio/studio-server/pkg/logger"
)

type Uploader struct {
	wp          *workerpool.WorkerPool
	filestorage filestorage.FileStorage
	logger      *zap.Logger
}

func NewUploader(fs filestorage.FileStorage, maxWorkers int) *Uploader {
	return &Uploader{
		wp:          workerpool.New(maxWorkers),
		filestorage: fs,
		logger:      logger.GetLogger(),
	}
}

// Stop waits for queued uploads to drain.
func (w *Uploader) Stop() {
	w.wp.StopWait()
}

func (w *Uploader) Upload(file filestorage.FileInfo, response chan string) {
	w.wp.Submit(func() {
		w.upload(file, response)
	})
}

// UploadBytes stores content under its blake3 hash so identical results
// are stored once.
func (w *Uploader) UploadBytes(content []byte, extension string, response chan string) {
	w.Upload(filestorage.FileInfo{
		Name:      hashutil.Blake3Hash(content),
		Extension: extension,
		Content:   content,
		IsTemp:    false,
	}, response)
}

func (w *Uploader) upload(file filestorage.FileInfo, response chan string) {
	if w.filestorage == nil {
		return
	}

	url, err := w.filestorage.Upload(file)
	if err != nil {
		w.logger.Error("artifact upload failed",
			zap.String("name", file.Name), zap.Error(err))
		if response != nil {
			response <- ""
		}
		return
	}

	if response != nil {
		response <- url
	}
}
