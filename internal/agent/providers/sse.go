package providers

import (
	"bufio"
	"io"
	"strings"
)

const maxSSELine = 4 * 1024 * 1024

// readSSEData calls fn with the payload of every "data:" line until the
// stream ends, fn returns false, or a "[DONE]" sentinel arrives. Other SSE
// fields (event, id, retry, comments) are ignored.
func readSSEData(r io.Reader, fn func(payload string) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return nil
		}
		if !fn(payload) {
			return nil
		}
	}
	return scanner.Err()
}
