package master

import (
	"strings"
)

// DecodeOutput turns raw output streams into text lines, in stream order.
// Invalid UTF-8 is replaced with U+FFFD, CRLF endings are accepted and
// blank lines are dropped.
func DecodeOutput(streams ...[]byte) []string {
	var lines []string
	for _, stream := range streams {
		if len(stream) == 0 {
			continue
		}
		text := strings.ToValidUTF8(string(stream), "\uFFFD")
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimRight(line, "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			lines = append(lines, line)
		}
	}
	return lines
}
