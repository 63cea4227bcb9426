package client

import "fmt"

// ValidationError reports bad or missing local input. It is raised before
// any network call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ProcessingError is a failed background-removal call. Message carries the
// server-supplied detail when the body was parseable.
type ProcessingError struct {
	StatusCode int
	Message    string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed: %s", e.Message)
}

// TemplateError is a failed template compositing call.
type TemplateError struct {
	StatusCode int
	Message    string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template compositing failed: %s", e.Message)
}

// BackgroundError is a failed generative background placement call.
type BackgroundError struct {
	StatusCode int
	Message    string
}

func (e *BackgroundError) Error() string {
	return fmt.Sprintf("background placement failed: %s", e.Message)
}

// StorageError is a failed remote storage call, including network-level
// failures during the batch stream.
type StorageError struct {
	StatusCode int
	Message    string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage request failed: %s", e.Message)
}

// DownloadError reports a download that returned no usable bytes. Some
// storage failures answer HTTP 200 with an empty body, so a zero-length
// blob counts as a failure too.
type DownloadError struct {
	Path    string
	Message string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %q failed: %s", e.Path, e.Message)
}

// IncompleteBatchError means the batch stream ended without a terminal
// `complete` record. That record is the only authoritative summary, so a
// stream without one is a protocol violation.
type IncompleteBatchError struct{}

func (e *IncompleteBatchError) Error() string {
	return "batch stream ended without a complete record"
}
