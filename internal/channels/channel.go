// Package channels resolves configured messaging channels and holds the
// transport-neutral helpers shared by channel implementations: text chunking,
// truncation and per-sender rate limiting. The LINE transport lives in
// channels/line.
package channels

import (
	"strings"
	"unicode/utf8"
)

// ChannelLine is the channel name recorded on inbound messages and audit rows.
const ChannelLine = "line"

// DefaultChunkSize is the per-message rune limit used for replies.
const DefaultChunkSize = 900

// ChunkText splits text into ceil(runes/size) pieces of at most size runes. A
// piece ends at the last newline in the second half of its window when cutting
// there does not add a piece. Chunks keep their order and concatenate back to
// the input. Empty input yields no chunks.
func ChunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= size {
			chunks = append(chunks, string(runes))
			break
		}
		cut := size
		budget := pieces(len(runes), size)
		for i := size - 1; i >= size/2; i-- {
			if runes[i] == '\n' {
				if 1+pieces(len(runes)-(i+1), size) <= budget {
					cut = i + 1
				}
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}

func pieces(n, size int) int {
	return (n + size - 1) / size
}

// Truncate shortens s to at most maxRunes runes without splitting a character.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes])
}

// Preview shortens s for log lines, appending "..." when cut.
func Preview(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return Truncate(s, maxRunes) + "..."
}
