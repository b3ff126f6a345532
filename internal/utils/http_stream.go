package utils

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxSSELineSize is the maximum size of a single SSE line (1 MB). The default
// bufio.Scanner limit of 64 KiB is too small for long generated replies.
const maxSSELineSize = 1 * 1024 * 1024

// SSEScanner reads Server-Sent Events from an io.Reader.
// It joins multi-line data fields, skips comments and empty lines, remembers
// the most recent "event:" name, and stops at the [DONE] sentinel used by
// OpenAI-compatible gateways. A bare JSON object line outside any field is
// returned as a payload of its own: error replies sometimes arrive that way
// under a text/event-stream content type.
type SSEScanner struct {
	scanner   *bufio.Scanner
	lastEvent string
	pending   string
}

// NewSSEScanner creates an SSEScanner reading from reader. Lines longer than
// 1 MB make Next return an error wrapping bufio.ErrTooLong.
func NewSSEScanner(reader io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEScanner{scanner: scanner}
}

// Event returns the name carried by the last "event:" field, if any.
func (sseScanner *SSEScanner) Event() string {
	return sseScanner.lastEvent
}

// Next returns the next data payload. Consecutive "data:" lines of one event
// are joined with newlines. Returns io.EOF at end of input or on [DONE].
func (sseScanner *SSEScanner) Next() (string, error) {
	if sseScanner.pending != "" {
		payload := sseScanner.pending
		sseScanner.pending = ""
		return payload, nil
	}

	var dataLines []string

	for sseScanner.scanner.Scan() {
		line := sseScanner.scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				return strings.Join(dataLines, "\n"), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "event:") {
			sseScanner.lastEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return "", io.EOF
			}
			dataLines = append(dataLines, data)
			continue
		}

		if strings.HasPrefix(strings.TrimSpace(line), "{") {
			if len(dataLines) > 0 {
				sseScanner.pending = line
				return strings.Join(dataLines, "\n"), nil
			}
			return line, nil
		}

		// id: and retry: fields carry nothing the SDK uses.
	}

	if err := sseScanner.scanner.Err(); err != nil {
		return "", fmt.Errorf("SSE scanner error: %w", err)
	}

	if len(dataLines) > 0 {
		return strings.Join(dataLines, "\n"), nil
	}

	return "", io.EOF
}
