package api

import (
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/clearcut-studio/studio-server/internal/batch"
	"github.com/clearcut-studio/studio-server/internal/compositor"
	"github.com/clearcut-studio/studio-server/internal/mq"
)

// BatchProcessFolders starts a batch job and streams its progress back as
// chunked `data: <json>` lines, one event per line. The worker publishes
// msgpack events to the queue; this handler re-frames them as JSON.
func BatchProcessFolders(c *gin.Context) {
	a := appFrom(c)

	basePath := c.PostForm("base_path")
	if basePath == "" {
		badRequest(c, "base_path is required")
		return
	}

	model := c.PostForm("model")
	if model == "" {
		badRequest(c, "model is required")
		return
	}

	width, _ := strconv.Atoi(c.PostForm("width"))
	height, _ := strconv.Atoi(c.PostForm("height"))
	if width <= 0 {
		width = compositor.DefaultCanvas
	}
	if height <= 0 {
		height = compositor.DefaultCanvas
	}

	job := batch.Job{
		BasePath:     basePath,
		Model:        model,
		APIKey:       c.PostForm("apiKey"),
		Token:        requestToken(c),
		Width:        width,
		Height:       height,
		OutputFolder: c.PostForm("output_folder"),
	}

	jobID := uuid.NewString()
	topic := batch.TopicFor(jobID)

	// The worker runs on the app context so a dropped client connection
	// does not abort uploads already in flight.
	go func() {
		if err := a.Batch.Run(a.Context(), jobID, job); err != nil {
			a.Logger.Warn("batch job failed",
				zap.String("job_id", jobID), zap.Error(err))
		}
	}()

	queue := a.MQ()
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")

	completed := false
	c.Stream(func(w io.Writer) bool {
		message, err := queue.Receive(ctx, topic)
		if err != nil {
			return false
		}

		payload, err := queue.GetMessageData(message)
		if err != nil {
			return false
		}

		var ev batch.Event
		if err := msgpack.Unmarshal(payload, &ev); err != nil {
			a.Logger.Warn("dropping undecodable event", zap.Error(err))
			_ = queue.Ack(topic, message)
			return true
		}

		line, err := json.Marshal(&ev)
		if err != nil {
			_ = queue.Ack(topic, message)
			return true
		}

		w.Write([]byte("data: "))
		w.Write(line)
		w.Write([]byte("\n"))
		_ = queue.Ack(topic, message)

		if ev.Type == batch.EventComplete {
			completed = true
			return false
		}
		return true
	})

	// Publishes block when the topic buffer fills, so a client that drops
	// mid-run would otherwise strand the worker. Keep draining until the
	// run ends and closes its topic.
	if !completed {
		go drainTopic(a.Context(), queue, topic)
	}
}

func drainTopic(ctx context.Context, queue mq.MQ, topic string) {
	for {
		message, err := queue.Receive(ctx, topic)
		if err != nil {
			return
		}
		_ = queue.Ack(topic, message)

		payload, err := queue.GetMessageData(message)
		if err != nil {
			continue
		}

		var ev batch.Event
		if msgpack.Unmarshal(payload, &ev) == nil && ev.Type == batch.EventComplete {
			return
		}
	}
}
