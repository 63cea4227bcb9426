package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clearcut-studio/studio-server/internal/batch"
	"github.com/clearcut-studio/studio-server/internal/client"

	"go.uber.org/zap"
)

// RecentFolder is one line of the locally persisted batch history.
type RecentFolder struct {
	Name           string
	Path           string
	FilesProcessed int
	DesignCreated  bool
	Errors         []string
	Timestamp      time.Time
}

// RecentStore persists completed folder results, deduplicated by
// (path, name) and capped at a fixed number of entries.
type RecentStore interface {
	AddRecentFolder(ctx context.Context, rec RecentFolder) error
}

const pausePollInterval = 200 * time.Millisecond

// Runner drives one batch job against the batch endpoint and consumes its
// progress stream. Folders and files are processed strictly one at a time
// in server-dictated order; the runner never reorders or parallelizes.
// At most one job is active per Runner.
type Runner struct {
	baseURL string
	http    *http.Client
	storage *client.StorageClient
	recents RecentStore
	logger  *zap.Logger

	running atomic.Bool
	paused  atomic.Bool
	stopped atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	progress float64
	log      []string
	summary  *batch.Summary
}

func NewRunner(baseURL string, httpClient *http.Client, storage *client.StorageClient, recents RecentStore, logger *zap.Logger) *Runner {
	if httpClient == nil {
		// No overall timeout: the stream stays open for the whole batch.
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		baseURL: baseURL,
		http:    httpClient,
		storage: storage,
		recents: recents,
		logger:  logger,
	}
}

// Pause suspends reading from the stream. No data is consumed while
// paused; the request stays open.
func (r *Runner) Pause() { r.paused.Store(true) }

// Resume lifts a pause.
func (r *Runner) Resume() { r.paused.Store(false) }

// Stop requests cooperative cancellation. It takes effect at the next
// read boundary; the in-flight remote call for the current file is allowed
// to complete server-side. A stop is not an error.
func (r *Runner) Stop() {
	r.stopped.Store(true)

	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (r *Runner) Paused() bool { return r.paused.Load() }
func (r *Runner) Stopped() bool { return r.stopped.Load() }
func (r *Runner) Running() bool { return r.running.Load() }

// Progress is the running completion ratio in [0,1].
func (r *Runner) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Log returns a copy of the append-only progress log.
func (r *Runner) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

// Summary returns the terminal summary of the last completed run, if any.
func (r *Runner) Summary() *batch.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Start posts the job and consumes the progress stream until it completes,
// errors, or is stopped. A stopped run returns (nil, nil). A stream that
// ends without a terminal `complete` record fails with
// *client.IncompleteBatchError.
func (r *Runner) Start(ctx context.Context, job batch.Job, onEvent func(batch.Event)) (*batch.Summary, error) {
	if r.running.Swap(true) {
		return nil, &client.ValidationError{Message: "a batch job is already running"}
	}
	defer r.running.Store(false)

	r.paused.Store(false)
	r.stopped.Store(false)
	r.mu.Lock()
	r.progress = 0
	r.log = nil
	r.summary = nil
	r.mu.Unlock()

	if r.storage != nil {
		ok, err := r.storage.CheckAuth(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &client.ValidationError{Message: "storage authentication required"}
		}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	resp, err := r.open(streamCtx, job)
	if err != nil {
		if r.stopped.Load() {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &client.StorageError{StatusCode: resp.StatusCode, Message: "batch endpoint rejected the job"}
	}

	var (
		framer  lineFramer
		summary *batch.Summary
		buf     = make([]byte, 4096)
	)

	for {
		// Cooperative stop: checked before every read.
		if r.stopped.Load() {
			r.appendLog("processing stopped")
			return nil, nil
		}

		// While paused nothing is read from the stream; poll at a short
		// fixed interval until resumed or stopped.
		for r.paused.Load() && !r.stopped.Load() {
			select {
			case <-streamCtx.Done():
				r.appendLog("processing stopped")
				return nil, nil
			case <-time.After(pausePollInterval):
			}
		}
		if r.stopped.Load() {
			r.appendLog("processing stopped")
			return nil, nil
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range framer.feed(buf[:n]) {
				if ev, ok := decodeEvent(line); ok {
					summary = r.handleEvent(*ev, summary, onEvent)
				}
			}
		}

		if readErr != nil {
			if r.stopped.Load() {
				// Cancellation surfaces as a read error; not a failure.
				r.appendLog("processing stopped")
				return nil, nil
			}

			if !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
				return nil, &client.StorageError{Message: readErr.Error()}
			}
			break
		}
	}

	// The stream may end without a trailing newline on the last record.
	if ev, ok := decodeEvent(framer.rest()); ok {
		summary = r.handleEvent(*ev, summary, onEvent)
	}

	if summary == nil {
		return nil, &client.IncompleteBatchError{}
	}

	r.recordFolders(ctx, summary)

	r.mu.Lock()
	r.summary = summary
	r.progress = 1
	r.mu.Unlock()

	return summary, nil
}

func (r *Runner) open(ctx context.Context, job batch.Job) (*http.Response, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"base_path":     job.BasePath,
		"model":         job.Model,
		"width":         strconv.Itoa(job.Width),
		"height":        strconv.Itoa(job.Height),
		"output_folder": job.OutputFolder,
	}
	if job.APIKey != "" {
		fields["apiKey"] = job.APIKey
	}
	if job.Token != "" {
		fields["token"] = job.Token
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, &client.StorageError{Message: err.Error()}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, &client.StorageError{Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/batch-process-folders", &body)
	if err != nil {
		return nil, &client.StorageError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, &client.StorageError{Message: err.Error()}
	}

	return resp, nil
}

// handleEvent updates the log and progress ratio and captures the
// terminal summary. Intermediate records are display-only; the `complete`
// record alone populates final results.
func (r *Runner) handleEvent(ev batch.Event, summary *batch.Summary, onEvent func(batch.Event)) *batch.Summary {
	if ev.Message != "" {
		r.appendLog(ev.Message)
	}

	r.mu.Lock()
	// Folder counters take precedence over file counters.
	if ev.TotalFolders > 0 {
		r.progress = float64(ev.FolderIndex) / float64(ev.TotalFolders)
	} else if ev.TotalFiles > 0 {
		r.progress = float64(ev.FileIndex) / float64(ev.TotalFiles)
	}
	if ev.Type == batch.EventComplete {
		r.progress = 1
	}
	r.mu.Unlock()

	if onEvent != nil {
		onEvent(ev)
	}

	if ev.Type == batch.EventComplete && ev.Summary != nil {
		return ev.Summary
	}

	return summary
}

func (r *Runner) recordFolders(ctx context.Context, summary *batch.Summary) {
	if r.recents == nil {
		return
	}

	now := time.Now()
	for _, folder := range summary.Folders {
		rec := RecentFolder{
			Name:           folder.Name,
			Path:           folder.Path,
			FilesProcessed: folder.FilesProcessed,
			DesignCreated:  folder.DesignCreated,
			Errors:         folder.Errors,
			Timestamp:      now,
		}
		if err := r.recents.AddRecentFolder(ctx, rec); err != nil {
			r.logger.Warn("failed to record folder history",
				zap.String("path", folder.Path), zap.Error(err))
		}
	}
}

func (r *Runner) appendLog(line string) {
	r.mu.Lock()
	r.log = append(r.log, line)
	r.mu.Unlock()
}
