package stream

import (
	"bytes"
	"strings"
)

// Frame is a single fully-assembled SSE event/data pair.
type Frame struct {
	Index     int    // ordinal within this request's stream
	EventType string // plan, execute, replan, result, error, done
	RawData   string // raw JSON string from the data: line
	RawBytes  int    // byte length of the data: line including newline
}

// Parser maintains state across chunks to handle SSE lines that span
// chunk boundaries. The trailing partial line is held back and never
// emitted as part of a frame.
type Parser struct {
	buffer     []byte
	frameIndex int
	eventType  string // pending event: field value for the next data: line
}

func NewParser() *Parser {
	return &Parser{}
}

// ParseChunk appends raw bytes from the stream and yields every frame
// that is now complete. A frame is complete once its data: line has
// been terminated by a newline.
func (p *Parser) ParseChunk(chunk []byte) []Frame {
	p.buffer = append(p.buffer, chunk...)
	var frames []Frame

	for {
		idx := bytes.IndexByte(p.buffer, '\n')
		if idx == -1 {
			break
		}

		line := string(p.buffer[:idx])
		p.buffer = p.buffer[idx+1:]
		line = strings.TrimRight(line, "\r")

		if line == "" {
			// Blank separator. Accepted but not required by the agent
			// protocol; drops any event type left dangling without data.
			p.eventType = ""
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			p.eventType = strings.TrimSpace(line[7:])
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			p.frameIndex++
			frames = append(frames, Frame{
				Index:     p.frameIndex,
				EventType: p.eventType,
				RawData:   line[6:],
				RawBytes:  len(line) + 1, // +1 for newline
			})
			// Each data: line consumes the pending event type.
			p.eventType = ""
		}
	}

	return frames
}

// Pending reports whether a partial line is still buffered. Checked at
// stream end to detect a truncated final frame.
func (p *Parser) Pending() bool {
	return len(p.buffer) > 0
}
