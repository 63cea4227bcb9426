package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/clearcut-studio/studio-server/internal/batch"
)

// lineFramer accumulates stream chunks and yields complete lines, holding
// back a possibly-incomplete trailing line until more bytes arrive.
type lineFramer struct {
	buf []byte
}

func (f *lineFramer) feed(p []byte) []string {
	f.buf = append(f.buf, p...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}

		line := string(bytes.TrimRight(f.buf[:i], "\r"))
		f.buf = f.buf[i+1:]
		lines = append(lines, line)
	}

	return lines
}

// rest returns the held-back tail, used once the stream has ended.
func (f *lineFramer) rest() string {
	return string(bytes.TrimRight(f.buf, "\r"))
}

// decodeEvent parses a `data: <json>` line. Blank lines, comments and any
// other non-conforming content are discarded.
func decodeEvent(line string) (*batch.Event, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return nil, false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return nil, false
	}

	var ev batch.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, false
	}
	if ev.Type == "" {
		return nil, false
	}

	return &ev, true
}
