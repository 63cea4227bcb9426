package config

import "errors"

const DefaultStudioHome = "~/.clearcut-studio"

var (
	DefaultBatchTopic  = "clearcut-studio/batches"
	DefaultBatchPrefix = DefaultBatchTopic + ":"
)

var (
	ErrHomeNotSet       = errors.New("studio home directory is not set")
	ErrHomeExpandFailed = errors.New("failed to expand studio home directory")
)
