package sse

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloStream = "data: {\"text\":\"Hel\"}\n\ndata: {\"text\":\"lo\"}\n\ndata: [DONE]\n\n"

func feedInChunks(p *Parser, input string, size int) []Frame {
	var frames []Frame
	for start := 0; start < len(input); start += size {
		end := min(start+size, len(input))
		frames = append(frames, p.Feed([]byte(input[start:end]))...)
	}
	return frames
}

func TestParserSingleRead(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte(helloStream))

	require.Len(t, frames, 3)
	assert.Equal(t, Frame{Data: `{"text":"Hel"}`}, frames[0])
	assert.Equal(t, Frame{Data: `{"text":"lo"}`}, frames[1])
	assert.True(t, frames[2].Done)
	assert.Zero(t, p.Pending())
}

func TestParserArbitraryChunkBoundaries(t *testing.T) {
	want := (&Parser{}).Feed([]byte(helloStream))

	for size := 1; size <= len(helloStream); size++ {
		var p Parser
		got := feedInChunks(&p, helloStream, size)
		assert.Equal(t, want, got, "chunk size %d", size)
		assert.Zero(t, p.Pending(), "chunk size %d", size)
	}
}

func TestParserKeepsIncompleteTail(t *testing.T) {
	var p Parser

	frames := p.Feed([]byte("data: {\"text\":\"a\"}\n\ndata: [DO"))
	require.Len(t, frames, 1)
	assert.Equal(t, len("data: [DO"), p.Pending())

	frames = p.Feed([]byte("NE]\n"))
	assert.Empty(t, frames)

	frames = p.Feed([]byte("\n"))
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Done)
}

func TestParserCRLFAndFields(t *testing.T) {
	var p Parser
	input := ": keep-alive\r\n\r\nevent: message\r\nid: 7\r\ndata: {\"text\":\"x\"}\r\n\r\n"

	frames := feedInChunks(&p, input, 3)
	require.Len(t, frames, 1)
	assert.Equal(t, `{"text":"x"}`, frames[0].Data)
}

func TestParserMultiLineData(t *testing.T) {
	var p Parser
	frames := p.Feed([]byte("data: line one\ndata:line two\n\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, "line one\nline two", frames[0].Data)
}

func TestParserFlush(t *testing.T) {
	var p Parser
	assert.Empty(t, p.Feed([]byte("data: {\"text\":\"tail\"}")))

	f, ok := p.Flush()
	require.True(t, ok)
	assert.Equal(t, `{"text":"tail"}`, f.Data)

	_, ok = p.Flush()
	assert.False(t, ok)
}

func TestWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	require.NoError(t, w.WriteJSON(map[string]string{"text": "Hel"}))
	require.NoError(t, w.WriteDone())

	assert.Equal(t, "data: {\"text\":\"Hel\"}\n\ndata: [DONE]\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)

	// Round-trip through the parser.
	var p Parser
	frames := p.Feed(rec.Body.Bytes())
	require.Len(t, frames, 2)
	assert.True(t, frames[1].Done)
}

func TestWriterPlainWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteDone())
	assert.Equal(t, "data: [DONE]\n\n", buf.String())
}
