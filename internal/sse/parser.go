// Package sse implements the text event-stream framing used between the chat
// endpoint and its clients: blocks of "data: <payload>" lines terminated by a blank
// line, with a "data: [DONE]" block marking normal termination.
package sse

import (
	"bytes"
	"strings"
)

// DoneSentinel is the payload of the block that ends a stream.
const DoneSentinel = "[DONE]"

// Frame is one complete event block.
type Frame struct {
	// Data holds the block's data lines joined with "\n".
	Data string
	// Done is set for the termination sentinel.
	Done bool
}

// Parser splits a byte stream into frames. Reads may end anywhere, including in the
// middle of a block or of the sentinel; the incomplete tail is kept for the next Feed.
type Parser struct {
	buf []byte
}

var blockEnd = []byte("\n\n")

// Feed appends chunk to the pending input and returns every frame it completes.
func (p *Parser) Feed(chunk []byte) []Frame {
	for _, b := range chunk {
		if b != '\r' {
			p.buf = append(p.buf, b)
		}
	}

	var frames []Frame
	for {
		i := bytes.Index(p.buf, blockEnd)
		if i < 0 {
			break
		}
		block := string(p.buf[:i])
		p.buf = p.buf[i+len(blockEnd):]
		if f, ok := parseBlock(block); ok {
			frames = append(frames, f)
		}
	}
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return frames
}

// Flush returns the unterminated block left at end of input, if it holds data.
func (p *Parser) Flush() (Frame, bool) {
	block := string(p.buf)
	p.buf = nil
	return parseBlock(block)
}

// Pending reports how many bytes are buffered waiting for a block terminator.
func (p *Parser) Pending() int {
	return len(p.buf)
}

func parseBlock(block string) (Frame, bool) {
	var data []string
	for _, line := range strings.Split(block, "\n") {
		value, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// comments, event/id/retry fields and blank lines carry no payload
			continue
		}
		data = append(data, strings.TrimPrefix(value, " "))
	}
	if len(data) == 0 {
		return Frame{}, false
	}

	payload := strings.Join(data, "\n")
	if strings.TrimSpace(payload) == DoneSentinel {
		return Frame{Data: DoneSentinel, Done: true}, true
	}
	return Frame{Data: payload}, true
}
