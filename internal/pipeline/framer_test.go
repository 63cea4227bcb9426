package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcut-studio/studio-server/internal/batch"
)

func TestLineFramerHoldsIncompleteTail(t *testing.T) {
	var f lineFramer

	lines := f.feed([]byte("data: {\"type\":\"start\"}\ndata: {\"ty"))
	require.Len(t, lines, 1)
	assert.Equal(t, `data: {"type":"start"}`, lines[0])

	lines = f.feed([]byte("pe\":\"complete\"}\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, `data: {"type":"complete"}`, lines[0])
	assert.Empty(t, f.rest())
}

func TestLineFramerSplitsMultipleLines(t *testing.T) {
	var f lineFramer

	lines := f.feed([]byte("data: {\"type\":\"a\"}\ndata: {\"type\":\"b\"}\ndata: {\"type\":\"c\"}\n"))
	assert.Len(t, lines, 3)
}

func TestLineFramerStripsCarriageReturn(t *testing.T) {
	var f lineFramer

	lines := f.feed([]byte("data: {\"type\":\"start\"}\r\n"))
	require.Len(t, lines, 1)

	ev, ok := decodeEvent(lines[0])
	require.True(t, ok)
	assert.Equal(t, batch.EventStart, ev.Type)
}

func TestLineFramerRestReturnsFinalPartialLine(t *testing.T) {
	var f lineFramer

	f.feed([]byte("data: {\"type\":\"complete\"}"))
	ev, ok := decodeEvent(f.rest())
	require.True(t, ok)
	assert.Equal(t, batch.EventComplete, ev.Type)
}

func TestDecodeEventSkipsJunk(t *testing.T) {
	cases := []string{
		"",
		"keepalive",
		"data: not-json",
		`data: {"message":"no type"}`,
		`{"type":"start"}`,
	}

	for _, line := range cases {
		_, ok := decodeEvent(line)
		assert.False(t, ok, "line %q should not decode", line)
	}
}

func TestDecodeEventParsesCounters(t *testing.T) {
	ev, ok := decodeEvent(`data: {"type":"file_start","folder":"shoes","file":"a.jpg","file_index":2,"total_files":5}`)
	require.True(t, ok)
	assert.Equal(t, batch.EventFileStart, ev.Type)
	assert.Equal(t, "shoes", ev.Folder)
	assert.Equal(t, 2, ev.FileIndex)
	assert.Equal(t, 5, ev.TotalFiles)
}
